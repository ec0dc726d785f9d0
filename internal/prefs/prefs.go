// Package prefs persists per-profile dashboard preferences: the filter
// state and the view settings.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "labdash:"
	DefaultProfile = "default"
)

// ChartPrefs are the kline chart settings.
type ChartPrefs struct {
	Layout     int  `json:"layout"`
	ShowRSI    bool `json:"showRSI"`
	ShowVolume bool `json:"showVolume"`
}

// ViewPrefs are the layout settings plus the drill-down selection.
type ViewPrefs struct {
	Layout         int        `json:"layout"`
	FontSize       int        `json:"fontSize"`
	Chart          ChartPrefs `json:"chart"`
	SelectedBucket string     `json:"selectedBucket,omitempty"`
}

func DefaultView() ViewPrefs {
	return ViewPrefs{
		Layout:   3,
		FontSize: 3,
		Chart:    ChartPrefs{Layout: 3, ShowRSI: true, ShowVolume: true},
	}
}

// Normalize resets out-of-range values to their defaults.
func (v *ViewPrefs) Normalize() {
	def := DefaultView()
	if v.Layout < 1 || v.Layout > 14 {
		v.Layout = def.Layout
	}
	if v.FontSize < 1 || v.FontSize > 20 {
		v.FontSize = def.FontSize
	}
	if v.Chart.Layout < 1 || v.Chart.Layout > 14 {
		v.Chart.Layout = def.Chart.Layout
	}
}

type Service struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewService(store Store, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{store: store, ttl: ttl, log: log.Named("prefs")}
}

// Filters returns the saved filter state merged over defaults, or a copy of
// defaults when nothing usable is stored.
func (s *Service) Filters(ctx context.Context, profile string, defaults dashboard.FilterState) (dashboard.FilterState, error) {
	var fs dashboard.FilterState
	found, err := s.load(ctx, key("filters", profile), &fs)
	if err != nil {
		return defaults.Clone(), err
	}
	if !found {
		return defaults.Clone(), nil
	}
	fs.MergeDefaults(defaults)
	return fs, nil
}

func (s *Service) SaveFilters(ctx context.Context, profile string, fs dashboard.FilterState) error {
	return s.save(ctx, key("filters", profile), fs)
}

func (s *Service) View(ctx context.Context, profile string) (ViewPrefs, error) {
	v := DefaultView()
	found, err := s.load(ctx, key("view", profile), &v)
	if err != nil || !found {
		return DefaultView(), err
	}
	v.Normalize()
	return v, nil
}

func (s *Service) SaveView(ctx context.Context, profile string, v ViewPrefs) error {
	v.Normalize()
	return s.save(ctx, key("view", profile), v)
}

// Reset deletes the profile's saved filters and view. Both deletes are
// attempted even if one fails.
func (s *Service) Reset(ctx context.Context, profile string) error {
	var errs []error
	for _, kind := range []string{"filters", "view"} {
		if err := s.store.Delete(ctx, key(kind, profile)); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key(kind, profile), err))
		}
	}
	if len(errs) == 0 {
		s.log.Info("preferences reset", zap.String("profile", profile))
	}
	return errors.Join(errs...)
}

// load decodes the value at k into dst. Corrupt values are logged and
// treated as absent.
func (s *Service) load(ctx context.Context, k string, dst any) (bool, error) {
	b, found, err := s.store.Get(ctx, k)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", k, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		s.log.Warn("discarding unreadable preferences", zap.String("key", k), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Service) save(ctx context.Context, k string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", k, err)
	}
	if err := s.store.Set(ctx, k, b, s.ttl); err != nil {
		return fmt.Errorf("save %s: %w", k, err)
	}
	return nil
}

func key(kind, profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = DefaultProfile
	}
	return keyPrefix + kind + ":" + profile
}
