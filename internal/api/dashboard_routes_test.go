package api

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/kjannette/lab-dashboard/internal/prefs"
	"github.com/kjannette/lab-dashboard/internal/scheduler"
)

type reportBody struct {
	FilteredCount int `json:"filteredCount"`
	Buckets       []struct {
		Name    string  `json:"name"`
		Count   int     `json:"count"`
		Plus    float64 `json:"plus"`
		Minus   float64 `json:"minus"`
		Total   float64 `json:"total"`
		Display struct {
			Total string `json:"total"`
		} `json:"display"`
	} `json:"buckets"`
	AssignCount int                       `json:"assignCount"`
	Investment  float64                   `json:"totalInvestment"`
	Available   float64                   `json:"investmentAvailable"`
	Selected    *string                   `json:"selectedBucket"`
	SnapshotAt  *string                   `json:"snapshotAt"`
	BuySell     map[string]map[string]int `json:"buySell"`
}

func metrics(t *testing.T, s *Server, profile string) reportBody {
	t.Helper()
	rr := do(t, s, http.MethodGet, "/api/dashboard/metrics?profile="+profile, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d: %s", rr.Code, rr.Body.String())
	}
	var body reportBody
	decode(t, rr, &body)
	return body
}

func TestHandleMetrics(t *testing.T) {
	s := newTestServer(t, Deps{}, "")
	body := metrics(t, s, "")

	if body.FilteredCount != 4 {
		t.Fatalf("filteredCount = %d, want 4", body.FilteredCount)
	}
	if len(body.Buckets) != dashboard.DefaultRegistry().Len() {
		t.Fatalf("buckets = %d", len(body.Buckets))
	}
	if body.Buckets[0].Name != "Total_Trades" {
		t.Errorf("first bucket = %q, want registry order", body.Buckets[0].Name)
	}
	tt := body.Buckets[0]
	if tt.Count != 4 || tt.Plus != 15.5 || tt.Minus != -4 || tt.Total != 11.5 || tt.Display.Total != "11.50" {
		t.Errorf("Total_Trades = %+v", tt)
	}
	if body.Buckets[1].Name != "Closed_Profit" || body.Buckets[1].Count != 2 || body.Buckets[1].Total != 8.5 {
		t.Errorf("Closed_Profit = %+v", body.Buckets[1])
	}
	if body.AssignCount != 1 || body.Investment != 400 || body.Available != 600 {
		t.Errorf("assign=%d investment=%v available=%v", body.AssignCount, body.Investment, body.Available)
	}
	if body.BuySell["BUY"]["closed"] != 2 || body.BuySell["BUY"]["runningDirect"] != 1 || body.BuySell["SELL"]["total"] != 1 {
		t.Errorf("buySell = %v", body.BuySell)
	}
	if body.Selected != nil {
		t.Errorf("selected = %q, want none", *body.Selected)
	}
	if body.SnapshotAt == nil {
		t.Error("expected snapshotAt")
	}
}

func TestHandleMetrics_NoSnapshotYet(t *testing.T) {
	s := newTestServer(t, Deps{Snapshots: &fakeSnapshots{healthy: true}}, "")
	body := metrics(t, s, "")

	if body.FilteredCount != 0 {
		t.Fatalf("filteredCount = %d, want 0", body.FilteredCount)
	}
	for _, b := range body.Buckets {
		if b.Count != 0 || b.Total != 0 {
			t.Fatalf("bucket %s not empty: %+v", b.Name, b)
		}
	}
}

func TestHandleBuckets(t *testing.T) {
	s := newTestServer(t, Deps{}, "")
	rr := do(t, s, http.MethodGet, "/api/dashboard/buckets", "")
	var body struct {
		Buckets []bucketInfo `json:"buckets"`
	}
	decode(t, rr, &body)
	if len(body.Buckets) != dashboard.DefaultRegistry().Len() {
		t.Fatalf("buckets = %d", len(body.Buckets))
	}
	for _, b := range body.Buckets {
		if b.Name == "Buy_Sell_Stats" && len(b.SubReports) != 2 {
			t.Errorf("Buy_Sell_Stats sub-reports = %v", b.SubReports)
		}
	}
}

type rowsBody struct {
	Bucket string           `json:"bucket"`
	Rows   []map[string]any `json:"rows"`
	Total  int              `json:"total"`
	Count  struct {
		Count int `json:"count"`
	} `json:"summary"`
}

func rows(t *testing.T, s *Server, target string) rowsBody {
	t.Helper()
	rr := do(t, s, http.MethodGet, target, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("%s: status = %d: %s", target, rr.Code, rr.Body.String())
	}
	var body rowsBody
	decode(t, rr, &body)
	return body
}

func TestHandleBucketRows(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	body := rows(t, s, "/api/dashboard/buckets/Closed%20Profit")
	if body.Bucket != "Closed_Profit" || body.Total != 2 || body.Count.Count != 2 {
		t.Fatalf("Closed_Profit rows = %+v", body)
	}

	body = rows(t, s, "/api/dashboard/buckets/Closed_Count_Stats?sub=profit")
	if body.Total != 1 || body.Rows[0]["Pair"] != "BTCUSDT" {
		t.Fatalf("profit sub-report = %+v", body)
	}

	body = rows(t, s, "/api/dashboard/buckets/Total_Trades?search=sol")
	if body.Total != 1 || body.Rows[0]["Pair"] != "SOLUSDT" {
		t.Fatalf("search = %+v", body)
	}

	body = rows(t, s, "/api/dashboard/buckets/Total_Trades?col.Pair=BTCUSDT,ETHUSDT")
	if body.Total != 2 {
		t.Fatalf("column filter total = %d, want 2", body.Total)
	}

	body = rows(t, s, "/api/dashboard/buckets/Total_Trades?sort=Pl_after_comm&dir=desc&limit=1&page=1")
	if body.Total != 4 || len(body.Rows) != 1 || body.Rows[0]["Pair"] != "BTCUSDT" {
		t.Fatalf("sorted page = %+v", body)
	}
}

func TestHandleBucketRows_Errors(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	if rr := do(t, s, http.MethodGet, "/api/dashboard/buckets/No_Such_Bucket", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown bucket: status = %d, want 404", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/api/dashboard/buckets/Total_Trades?sub=profit", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown sub-report: status = %d, want 400", rr.Code)
	}
}

func TestFilterEdits(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	rr := do(t, s, http.MethodPost, "/api/dashboard/filters/toggle", `{"dimension":"actions","key":"SELL"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", rr.Code, rr.Body.String())
	}
	var fs dashboard.FilterState
	decode(t, rr, &fs)
	if fs.Actions.Values["SELL"] {
		t.Fatal("SELL still selected after toggle")
	}
	if got := metrics(t, s, "").FilteredCount; got != 3 {
		t.Fatalf("after toggle filteredCount = %d, want 3", got)
	}

	rr = do(t, s, http.MethodPost, "/api/dashboard/filters/all", `{"dimension":"actions","selected":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("all status = %d", rr.Code)
	}
	if got := metrics(t, s, "").FilteredCount; got != 4 {
		t.Fatalf("after select-all filteredCount = %d, want 4", got)
	}

	rr = do(t, s, http.MethodPost, "/api/dashboard/filters/radio", `{"dimension":"actions","radio":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("radio status = %d", rr.Code)
	}
	decode(t, rr, &fs)
	if !fs.Actions.Radio || !fs.Actions.Values["BUY"] || fs.Actions.Values["SELL"] {
		t.Fatalf("radio actions = %+v", fs.Actions)
	}
	if got := metrics(t, s, "").FilteredCount; got != 3 {
		t.Fatalf("after radio filteredCount = %d, want 3", got)
	}

	// other profiles are untouched
	if got := metrics(t, s, "alice").FilteredCount; got != 4 {
		t.Fatalf("alice filteredCount = %d, want 4", got)
	}
}

func TestFilterEdits_BadRequests(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	cases := []struct {
		path, body string
	}{
		{"/api/dashboard/filters/toggle", `{"dimension":"colours","key":"red"}`},
		{"/api/dashboard/filters/toggle", `{"dimension":"actions"}`},
		{"/api/dashboard/filters/radio", `{"dimension":"actions"}`},
		{"/api/dashboard/filters/all", `{"dimension":"signals"}`},
		{"/api/dashboard/filters/all", `not json`},
	}
	for _, tc := range cases {
		if rr := do(t, s, http.MethodPost, tc.path, tc.body); rr.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d, want 400", tc.path, tc.body, rr.Code)
		}
	}
}

func TestPutFilters(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	rr := do(t, s, http.MethodPut, "/api/dashboard/filters?profile=ops",
		`{"signals":{"values":{"Spike":false},"radio":false},"includeMinClose":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var fs dashboard.FilterState
	decode(t, rr, &fs)
	if fs.Signals.Values["Spike"] || !fs.Signals.Values["Kicker"] {
		t.Errorf("signals = %v, want Spike off and defaults merged in", fs.Signals.Values)
	}
	if !fs.Machines.Values["m1"] {
		t.Errorf("machines = %v, want m1 merged in", fs.Machines.Values)
	}
	if got := metrics(t, s, "ops").FilteredCount; got != 0 {
		t.Fatalf("filteredCount = %d, want 0", got)
	}

	rr = do(t, s, http.MethodGet, "/api/dashboard/filters?profile=ops", "")
	decode(t, rr, &fs)
	if fs.Signals.Values["Spike"] {
		t.Error("saved filters not returned by GET")
	}

	if rr := do(t, s, http.MethodPut, "/api/dashboard/filters", `{"fromDate":"2024-06-01T00:00:00Z","toDate":"2024-05-01T00:00:00Z"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("inverted range: status = %d, want 400", rr.Code)
	}
	if rr := do(t, s, http.MethodPut, "/api/dashboard/filters", `{`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rr.Code)
	}
}

func selection(t *testing.T, s *Server, bucket string) selectionResponse {
	t.Helper()
	rr := do(t, s, http.MethodPost, "/api/dashboard/selection", `{"bucket":"`+bucket+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("selection status = %d: %s", rr.Code, rr.Body.String())
	}
	var body selectionResponse
	decode(t, rr, &body)
	return body
}

func TestSelection(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	got := selection(t, s, "Closed Profit")
	if got.Selected == nil || *got.Selected != "Closed_Profit" || got.Total != 2 {
		t.Fatalf("select = %+v", got)
	}
	if sel := metrics(t, s, "").Selected; sel == nil || *sel != "Closed_Profit" {
		t.Fatal("metrics should report the selected bucket")
	}

	got = selection(t, s, "Closed_Profit")
	if got.Selected != nil || got.Total != 0 {
		t.Fatalf("re-click = %+v, want cleared", got)
	}

	selection(t, s, "Running_Profit")
	got = selection(t, s, "Hedge_Stats")
	if got.Selected != nil {
		t.Fatalf("click on empty bucket = %+v, want cleared", got)
	}

	rr := do(t, s, http.MethodPost, "/api/dashboard/selection", `{"bucket":"Nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown bucket: status = %d, want 404", rr.Code)
	}
}

func TestSelection_ClearedWhenBucketEmpties(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	selection(t, s, "Closed_Profit")
	do(t, s, http.MethodPost, "/api/dashboard/filters/toggle", `{"dimension":"actions","key":"BUY"}`)

	if sel := metrics(t, s, "").Selected; sel != nil {
		t.Fatalf("selected = %q, want cleared after the bucket emptied", *sel)
	}
	rr := do(t, s, http.MethodGet, "/api/dashboard/view", "")
	var v prefs.ViewPrefs
	decode(t, rr, &v)
	if v.SelectedBucket != "" {
		t.Fatalf("stored selection = %q, want cleared", v.SelectedBucket)
	}
}

func TestViewPrefs(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	rr := do(t, s, http.MethodGet, "/api/dashboard/view", "")
	var v prefs.ViewPrefs
	decode(t, rr, &v)
	if v != prefs.DefaultView() {
		t.Fatalf("view = %+v, want defaults", v)
	}

	selection(t, s, "Closed_Profit")
	rr = do(t, s, http.MethodPut, "/api/dashboard/view",
		`{"layout":5,"fontSize":40,"chart":{"layout":2,"showRSI":false,"showVolume":true},"selectedBucket":"Total_Trades"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &v)
	want := prefs.ViewPrefs{Layout: 5, FontSize: 3, Chart: prefs.ChartPrefs{Layout: 2, ShowVolume: true}, SelectedBucket: "Closed_Profit"}
	if v != want {
		t.Fatalf("view = %+v, want %+v", v, want)
	}

	if rr := do(t, s, http.MethodPut, "/api/dashboard/view", `[]`); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d, want 400", rr.Code)
	}
}

func TestToggle_EmptyMachineListHidesOnlyThatMachine(t *testing.T) {
	trades := sampleTrades()
	trades[1].MachineID = "m2"
	snaps := &fakeSnapshots{
		snap:    &scheduler.Snapshot{Generation: 1, Trades: trades, Machines: []models.Machine{}},
		healthy: true,
	}
	s := newTestServer(t, Deps{Snapshots: snaps}, "")

	if got := metrics(t, s, "").FilteredCount; got != 4 {
		t.Fatalf("filteredCount = %d, want 4 with no machine list", got)
	}

	rr := do(t, s, http.MethodPost, "/api/dashboard/filters/toggle", `{"dimension":"machines","key":"m1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status = %d: %s", rr.Code, rr.Body.String())
	}
	var fs dashboard.FilterState
	decode(t, rr, &fs)
	if fs.Machines.Values["m1"] || !fs.Machines.Values["m2"] {
		t.Fatalf("machines = %v, want m1 hidden and m2 shown", fs.Machines.Values)
	}
	if got := metrics(t, s, "").FilteredCount; got != 1 {
		t.Fatalf("after hiding m1 filteredCount = %d, want 1", got)
	}
}

func TestPutFilters_RadioKeepsOneKey(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	rr := do(t, s, http.MethodPut, "/api/dashboard/filters?profile=ops",
		`{"signals":{"values":{"IMACD":true,"Spike":true},"radio":true}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var fs dashboard.FilterState
	decode(t, rr, &fs)
	if got := fs.Signals.Selected(); !reflect.DeepEqual(got, []string{"IMACD"}) || !fs.Signals.Radio {
		t.Fatalf("signals = %v radio=%v, want only IMACD in radio mode", got, fs.Signals.Radio)
	}
	// every sample trade is a Spike trade
	if got := metrics(t, s, "ops").FilteredCount; got != 0 {
		t.Fatalf("filteredCount = %d, want 0", got)
	}
}

func TestPutFilters_AbsentIncludeMinCloseKeepsCurrent(t *testing.T) {
	s := newTestServer(t, Deps{}, "")
	put := func(profile, body string) dashboard.FilterState {
		t.Helper()
		rr := do(t, s, http.MethodPut, "/api/dashboard/filters?profile="+profile, body)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
		}
		var fs dashboard.FilterState
		decode(t, rr, &fs)
		return fs
	}

	if fs := put("fresh", `{"signals":{"values":{"Spike":true}}}`); !fs.IncludeMinClose {
		t.Error("absent includeMinClose should keep the default of true")
	}
	if fs := put("ops", `{"includeMinClose":false}`); fs.IncludeMinClose {
		t.Fatal("explicit false was ignored")
	}
	if fs := put("ops", `{"signals":{"values":{"Spike":true}}}`); fs.IncludeMinClose {
		t.Error("absent includeMinClose should keep the saved false")
	}
}

func TestResetPreferences(t *testing.T) {
	s := newTestServer(t, Deps{}, "")

	do(t, s, http.MethodPut, "/api/dashboard/filters?profile=ops", `{"signals":{"values":{"Spike":false}}}`)
	selection(t, s, "Closed_Profit")
	if got := metrics(t, s, "ops").FilteredCount; got != 0 {
		t.Fatalf("filteredCount = %d, want 0 before reset", got)
	}

	rr := do(t, s, http.MethodDelete, "/api/dashboard/preferences?profile=ops", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Filters dashboard.FilterState `json:"filters"`
		View    prefs.ViewPrefs       `json:"view"`
	}
	decode(t, rr, &body)
	if !body.Filters.Signals.Values["Spike"] || body.View != prefs.DefaultView() {
		t.Fatalf("reset body = %+v", body)
	}
	if got := metrics(t, s, "ops").FilteredCount; got != 4 {
		t.Fatalf("filteredCount = %d, want 4 after reset", got)
	}
	// the default profile keeps its selection
	if got := metrics(t, s, "").Selected; got == nil || *got != "Closed_Profit" {
		t.Fatalf("default profile selection = %v", got)
	}
}

func TestLoadDashboard_ReadsOneSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{
		snap: &scheduler.Snapshot{
			Generation: 7,
			Trades:     sampleTrades(),
			Machines:   []models.Machine{{MachineID: "m1", Active: true}},
		},
		healthy: true,
	}
	s := newTestServer(t, Deps{Snapshots: snaps}, "")

	st := s.loadDashboard(context.Background(), "")
	if n := snaps.readCount(); n != 1 {
		t.Fatalf("Latest called %d times, want 1", n)
	}
	if st.generation != 7 || st.report.FilteredCount != 4 {
		t.Fatalf("generation = %d, filteredCount = %d", st.generation, st.report.FilteredCount)
	}
	if st.report.SnapshotAt != nil {
		t.Error("zero FetchedAt should leave snapshotAt unset")
	}
}
