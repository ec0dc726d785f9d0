package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/kjannette/lab-dashboard/internal/prefs"
	"github.com/kjannette/lab-dashboard/internal/scheduler"
	"go.uber.org/zap"
)

// dashboardState is one profile's view of a single snapshot.
type dashboardState struct {
	profile    string
	generation uint64
	defaults   dashboard.FilterState
	filters    dashboard.FilterState
	view       prefs.ViewPrefs
	drill      *dashboard.DrillDown
	report     dashboard.Report
	metrics    *dashboard.Metrics
}

// snapshot returns the latest snapshot, or an empty one before the first
// refresh. Callers read it once per request.
func (s *Server) snapshot() *scheduler.Snapshot {
	if snap := s.deps.Snapshots.Latest(); snap != nil {
		return snap
	}
	return &scheduler.Snapshot{Trades: []models.Trade{}, Machines: []models.Machine{}}
}

// loadFilters returns the profile's saved filters over the defaults for
// snap. Preference store failures degrade to defaults.
func (s *Server) loadFilters(ctx context.Context, profile string, snap *scheduler.Snapshot) (dashboard.FilterState, dashboard.FilterState) {
	defaults := dashboard.DefaultFilterState(snap.Machines)
	fs, err := s.deps.Prefs.Filters(ctx, profile, defaults)
	if err != nil {
		s.log.Warn("load filters", zap.String("profile", profile), zap.Error(err))
	}
	return fs, defaults
}

// loadDashboard runs the metrics pipeline for profile. A restored
// selection whose bucket emptied is cleared and the cleared state saved.
func (s *Server) loadDashboard(ctx context.Context, profile string) dashboardState {
	snap := s.snapshot()
	st := dashboardState{profile: profile, generation: snap.Generation, drill: &dashboard.DrillDown{}}
	st.filters, st.defaults = s.loadFilters(ctx, profile, snap)

	view, err := s.deps.Prefs.View(ctx, profile)
	if err != nil {
		s.log.Warn("load view", zap.String("profile", profile), zap.Error(err))
	}
	st.view = view
	if b, ok := s.deps.Registry.Lookup(view.SelectedBucket); ok {
		st.drill.Restore(b.Name)
	}

	st.report, st.metrics = dashboard.BuildReport(snap.Trades, st.filters, s.deps.Registry, s.deps.TotalCapital, st.drill)
	if !snap.FetchedAt.IsZero() {
		at := snap.FetchedAt
		st.report.SnapshotAt = &at
	}

	selected, _ := st.drill.Selected()
	if selected != view.SelectedBucket && view.SelectedBucket != "" {
		st.view.SelectedBucket = selected
		if err := s.deps.Prefs.SaveView(ctx, profile, st.view); err != nil {
			s.log.Warn("save view", zap.String("profile", profile), zap.Error(err))
		}
	}
	return st
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st := s.loadDashboard(r.Context(), profileOf(r))
	writeJSON(w, http.StatusOK, st.report)
}

type bucketInfo struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	SubReports []string `json:"subReports,omitempty"`
}

func (s *Server) handleBuckets(w http.ResponseWriter, r *http.Request) {
	buckets := s.deps.Registry.Buckets()
	out := make([]bucketInfo, len(buckets))
	for i, b := range buckets {
		out[i] = bucketInfo{Name: b.Name, Title: b.Title, SubReports: dashboard.SubReports(b.Name)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": out})
}

type bucketRowsResponse struct {
	Bucket     string            `json:"bucket"`
	Title      string            `json:"title"`
	SubReports []string          `json:"subReports,omitempty"`
	Summary    dashboard.Summary `json:"summary"`
	dashboard.TableResult
}

// parseTableQuery reads search, sort, dir, sub, page, limit and
// col.<column>=v1,v2 parameters.
func parseTableQuery(r *http.Request) dashboard.TableQuery {
	q := r.URL.Query()
	tq := dashboard.TableQuery{
		SubReport: strings.TrimSpace(q.Get("sub")),
		Search:    q.Get("search"),
		SortKey:   strings.TrimSpace(q.Get("sort")),
		SortDesc:  strings.EqualFold(q.Get("dir"), "desc"),
		Page:      parsePage(r),
		Limit:     parseLimit(r, 0, maxQueryLimit),
	}
	for key, vals := range q {
		col, ok := strings.CutPrefix(key, "col.")
		if !ok || col == "" {
			continue
		}
		if tq.Columns == nil {
			tq.Columns = map[string][]string{}
		}
		for _, v := range vals {
			tq.Columns[col] = append(tq.Columns[col], splitList(v)...)
		}
	}
	return tq
}

func (s *Server) handleBucketRows(w http.ResponseWriter, r *http.Request) {
	b, ok := s.deps.Registry.Lookup(r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown bucket")
		return
	}
	tq := parseTableQuery(r)
	subs := dashboard.SubReports(b.Name)
	if tq.SubReport != "" && !slices.Contains(subs, tq.SubReport) {
		writeError(w, http.StatusBadRequest, "unknown sub-report for bucket "+b.Name)
		return
	}

	st := s.loadDashboard(r.Context(), profileOf(r))
	summary, _ := st.metrics.Summary(b.Name)
	writeJSON(w, http.StatusOK, bucketRowsResponse{
		Bucket:      b.Name,
		Title:       b.Title,
		SubReports:  subs,
		Summary:     summary,
		TableResult: tq.Apply(b.Name, st.metrics.Members(b.Name)),
	})
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	fs, _ := s.loadFilters(r.Context(), profileOf(r), s.snapshot())
	writeJSON(w, http.StatusOK, fs)
}

// putFiltersRequest lets a body leave includeMinClose out.
type putFiltersRequest struct {
	dashboard.FilterState
	IncludeMinClose *bool `json:"includeMinClose"`
}

// handlePutFilters replaces the profile's filters. Keys missing from the
// body take their default, and an absent includeMinClose keeps the
// current setting.
func (s *Server) handlePutFilters(w http.ResponseWriter, r *http.Request) {
	var req putFiltersRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fs := req.FilterState
	if fs.From != nil && fs.To != nil && fs.From.After(*fs.To) {
		writeError(w, http.StatusBadRequest, "fromDate is after toDate")
		return
	}
	profile := profileOf(r)
	cur, defaults := s.loadFilters(r.Context(), profile, s.snapshot())
	fs.IncludeMinClose = cur.IncludeMinClose
	if req.IncludeMinClose != nil {
		fs.IncludeMinClose = *req.IncludeMinClose
	}
	fs.MergeDefaults(defaults)
	s.saveFilters(w, r, profile, fs)
}

type dimensionRequest struct {
	Dimension string `json:"dimension"`
	Key       string `json:"key"`
	Radio     *bool  `json:"radio"`
	Selected  *bool  `json:"selected"`
}

// editFilter loads the profile's filters, applies edit to the requested
// dimension and saves the result. known lists every key the dimension can
// take: its defaults plus those seen in the current trades.
func (s *Server) editFilter(w http.ResponseWriter, r *http.Request, edit func(sel *dashboard.Selection, req dimensionRequest, known []string) string) {
	var req dimensionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := dashboard.ParseDimension(req.Dimension)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile := profileOf(r)
	snap := s.snapshot()
	fs, defaults := s.loadFilters(r.Context(), profile, snap)
	sel, err := fs.Selection(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	def, _ := defaults.Selection(d)
	known := def.Keys()
	for _, k := range dashboard.ObservedKeys(snap.Trades, d) {
		if !slices.Contains(known, k) {
			known = append(known, k)
		}
	}
	if msg := edit(sel, req, known); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	s.saveFilters(w, r, profile, fs)
}

func (s *Server) saveFilters(w http.ResponseWriter, r *http.Request, profile string, fs dashboard.FilterState) {
	if err := s.deps.Prefs.SaveFilters(r.Context(), profile, fs); err != nil {
		s.log.Error("save filters", zap.String("profile", profile), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save filters")
		return
	}
	s.hub.refreshProfile(profile)
	writeJSON(w, http.StatusOK, fs)
}

func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	s.editFilter(w, r, func(sel *dashboard.Selection, req dimensionRequest, known []string) string {
		if strings.TrimSpace(req.Key) == "" {
			return "key is required"
		}
		sel.Toggle(req.Key, known...)
		return ""
	})
}

func (s *Server) handleRadioFilter(w http.ResponseWriter, r *http.Request) {
	s.editFilter(w, r, func(sel *dashboard.Selection, req dimensionRequest, _ []string) string {
		if req.Radio == nil {
			return "radio is required"
		}
		sel.SetRadio(*req.Radio)
		return ""
	})
}

func (s *Server) handleAllFilter(w http.ResponseWriter, r *http.Request) {
	s.editFilter(w, r, func(sel *dashboard.Selection, req dimensionRequest, _ []string) string {
		if req.Selected == nil {
			return "selected is required"
		}
		sel.SetAll(*req.Selected)
		return ""
	})
}

type selectionResponse struct {
	Selected *string `json:"selectedBucket"`
	Total    int     `json:"total"`
}

// handleSelection applies a bucket click to the profile's drill-down.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket string `json:"bucket"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.deps.Registry.Lookup(req.Bucket)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown bucket")
		return
	}

	profile := profileOf(r)
	st := s.loadDashboard(r.Context(), profile)
	st.drill.Click(b.Name, st.metrics)

	name, selected := st.drill.Selected()
	st.view.SelectedBucket = name
	if err := s.deps.Prefs.SaveView(r.Context(), profile, st.view); err != nil {
		s.log.Error("save selection", zap.String("profile", profile), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save selection")
		return
	}
	s.hub.refreshProfile(profile)

	resp := selectionResponse{Total: len(st.drill.Rows(st.metrics))}
	if selected {
		resp.Selected = &name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	v, err := s.deps.Prefs.View(r.Context(), profileOf(r))
	if err != nil {
		s.log.Warn("load view", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, v)
}

// handlePutView replaces layout and chart settings. The drill-down
// selection is owned by the selection route and kept as stored.
func (s *Server) handlePutView(w http.ResponseWriter, r *http.Request) {
	var v prefs.ViewPrefs
	if err := decodeBody(w, r, &v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile := profileOf(r)
	cur, err := s.deps.Prefs.View(r.Context(), profile)
	if err != nil {
		s.log.Warn("load view", zap.String("profile", profile), zap.Error(err))
	}
	v.SelectedBucket = cur.SelectedBucket
	v.Normalize()

	if err := s.deps.Prefs.SaveView(r.Context(), profile, v); err != nil {
		s.log.Error("save view", zap.String("profile", profile), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save view")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleResetPreferences drops the profile's saved filters and view.
func (s *Server) handleResetPreferences(w http.ResponseWriter, r *http.Request) {
	profile := profileOf(r)
	if err := s.deps.Prefs.Reset(r.Context(), profile); err != nil {
		s.log.Error("reset preferences", zap.String("profile", profile), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset preferences")
		return
	}
	s.hub.refreshProfile(profile)

	fs, _ := s.loadFilters(r.Context(), profile, s.snapshot())
	writeJSON(w, http.StatusOK, map[string]any{"filters": fs, "view": prefs.DefaultView()})
}
