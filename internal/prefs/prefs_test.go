package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"github.com/kjannette/lab-dashboard/internal/models"
	"go.uber.org/zap/zaptest"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func defaults() dashboard.FilterState {
	return dashboard.DefaultFilterState([]models.Machine{
		{MachineID: "m1", Active: true},
		{MachineID: "m2", Active: false},
	})
}

func TestFilters_DefaultsWhenNothingSaved(t *testing.T) {
	svc := NewService(NewMemoryStore(), 0, zaptest.NewLogger(t))

	fs, err := svc.Filters(context.Background(), "", defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fs.Machines.Values["m1"] || fs.Machines.Values["m2"] {
		t.Errorf("machines = %v, want m1 on and m2 off", fs.Machines.Values)
	}
	if !fs.IncludeMinClose {
		t.Error("default should include min-close trades")
	}
}

func TestFilters_SavedStateMergedOverDefaults(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), 0, zaptest.NewLogger(t))

	saved := defaults()
	saved.Signals = dashboard.Selection{Values: map[string]bool{"Spike": true, "Kicker": false}}
	saved.IncludeMinClose = false
	if err := svc.SaveFilters(ctx, "alice", saved); err != nil {
		t.Fatalf("SaveFilters: %v", err)
	}

	fs, err := svc.Filters(ctx, "alice", defaults())
	if err != nil {
		t.Fatalf("Filters: %v", err)
	}
	if fs.IncludeMinClose {
		t.Error("saved IncludeMinClose=false was lost")
	}
	if fs.Signals.Values["Kicker"] {
		t.Error("saved Kicker=false was overwritten by defaults")
	}
	// signals the saved state never knew about appear selected
	for _, sig := range dashboard.DefaultSignals {
		if _, ok := fs.Signals.Values[sig]; !ok {
			t.Errorf("signal %q missing after merge", sig)
		}
	}

	other, err := svc.Filters(ctx, "bob", defaults())
	if err != nil {
		t.Fatalf("Filters(bob): %v", err)
	}
	if !other.IncludeMinClose {
		t.Error("profiles must not share state")
	}
}

func TestFilters_CorruptValueFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Set(ctx, key("filters", "x"), []byte("{not json"), 0)
	svc := NewService(store, 0, zaptest.NewLogger(t))

	fs, err := svc.Filters(ctx, "x", defaults())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fs.IncludeMinClose || len(fs.Signals.Values) != len(dashboard.DefaultSignals) {
		t.Errorf("expected defaults, got %+v", fs)
	}
}

func TestFilters_StoreErrorReturnsDefaults(t *testing.T) {
	svc := NewService(failingStore{}, 0, zaptest.NewLogger(t))

	fs, err := svc.Filters(context.Background(), "x", defaults())
	if err == nil {
		t.Fatal("expected store error")
	}
	if len(fs.Signals.Values) != len(dashboard.DefaultSignals) {
		t.Error("defaults should still be returned on error")
	}
	if err := svc.SaveFilters(context.Background(), "x", fs); err == nil {
		t.Error("expected save error")
	}
}

func TestView_RoundTripAndNormalize(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), 0, zaptest.NewLogger(t))

	v, err := svc.View(ctx, "alice")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if v != DefaultView() {
		t.Errorf("View = %+v, want defaults", v)
	}

	in := ViewPrefs{Layout: 99, FontSize: 7, Chart: ChartPrefs{Layout: 0, ShowRSI: false}, SelectedBucket: "Total_Stats"}
	if err := svc.SaveView(ctx, "alice", in); err != nil {
		t.Fatalf("SaveView: %v", err)
	}
	got, err := svc.View(ctx, "alice")
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	want := ViewPrefs{Layout: 3, FontSize: 7, Chart: ChartPrefs{Layout: 3}, SelectedBucket: "Total_Stats"}
	if got != want {
		t.Errorf("View = %+v, want %+v", got, want)
	}
}

func TestReset_RestoresDefaults(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), 0, zaptest.NewLogger(t))

	saved := defaults()
	saved.IncludeMinClose = false
	if err := svc.SaveFilters(ctx, "alice", saved); err != nil {
		t.Fatalf("SaveFilters: %v", err)
	}
	if err := svc.SaveView(ctx, "alice", ViewPrefs{Layout: 5, FontSize: 9, SelectedBucket: "Total_Stats"}); err != nil {
		t.Fatalf("SaveView: %v", err)
	}
	if err := svc.SaveFilters(ctx, "bob", saved); err != nil {
		t.Fatalf("SaveFilters(bob): %v", err)
	}

	if err := svc.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fs, _ := svc.Filters(ctx, "alice", defaults())
	if !fs.IncludeMinClose {
		t.Error("filters not reset")
	}
	if v, _ := svc.View(ctx, "alice"); v != DefaultView() {
		t.Errorf("view = %+v, want defaults", v)
	}
	if other, _ := svc.Filters(ctx, "bob", defaults()); other.IncludeMinClose {
		t.Error("reset leaked into another profile")
	}
}

func TestReset_StoreError(t *testing.T) {
	svc := NewService(failingStore{}, 0, zaptest.NewLogger(t))
	if err := svc.Reset(context.Background(), "x"); err == nil {
		t.Fatal("expected delete error")
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.Set(ctx, "b", []byte("2"), 0)

	now = now.Add(2 * time.Minute)
	if _, found, _ := s.Get(ctx, "a"); found {
		t.Error("expired key still returned")
	}
	if v, found, _ := s.Get(ctx, "b"); !found || string(v) != "2" {
		t.Errorf("persistent key = %q, %v", v, found)
	}

	s.Delete(ctx, "b")
	if _, found, _ := s.Get(ctx, "b"); found {
		t.Error("deleted key still returned")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	in := []byte("abc")
	s.Set(ctx, "k", in, 0)
	in[0] = 'x'

	out, _, _ := s.Get(ctx, "k")
	if string(out) != "abc" {
		t.Fatalf("stored value changed to %q", out)
	}
	out[0] = 'y'
	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value changed to %q", again)
	}
}

func TestKey(t *testing.T) {
	if got := key("view", "  "); got != "labdash:view:default" {
		t.Errorf("key = %q", got)
	}
	if got := key("filters", "ops"); got != "labdash:filters:ops" {
		t.Errorf("key = %q", got)
	}
}
