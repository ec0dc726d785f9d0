package dashboard

import (
	"time"

	"github.com/kjannette/lab-dashboard/internal/models"
)

type BucketView struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Summary
	Display struct {
		Plus  string `json:"plus"`
		Minus string `json:"minus"`
		Total string `json:"total"`
	} `json:"display"`
}

// Report is the metrics document served to dashboard clients.
type Report struct {
	Filters         FilterState                `json:"filters"`
	FilteredCount   int                        `json:"filteredCount"`
	Buckets         []BucketView               `json:"buckets"`
	BuySell         map[string]ActionBreakdown `json:"buySell"`
	AssignCount     int                        `json:"assignCount"`
	TotalInvestment float64                    `json:"totalInvestment"`
	Available       float64                    `json:"investmentAvailable"`
	Selected        *string                    `json:"selectedBucket"`
	SnapshotAt      *time.Time                 `json:"snapshotAt,omitempty"`
}

// BuildReport runs the full pipeline: filter, aggregate, revalidate the
// drill-down selection. dd may be nil.
func BuildReport(trades []models.Trade, fs FilterState, reg *Registry, capital float64, dd *DrillDown) (Report, *Metrics) {
	m := ComputeMetrics(FilterTrades(trades, fs), reg)
	r := Report{
		Filters:         fs,
		FilteredCount:   len(m.Filtered),
		Buckets:         make([]BucketView, 0, reg.Len()),
		BuySell:         m.BuySell,
		AssignCount:     m.AssignCount,
		TotalInvestment: Round2(m.TotalInvestment),
		Available:       Round2(m.Available(capital)),
	}
	for _, b := range m.Buckets() {
		s, _ := m.Summary(b.Name)
		v := BucketView{Name: b.Name, Title: b.Title, Summary: s}
		v.Display.Plus = Format2(s.Plus)
		v.Display.Minus = Format2(s.Minus)
		v.Display.Total = Format2(s.Total)
		r.Buckets = append(r.Buckets, v)
	}
	if dd != nil {
		dd.Revalidate(m)
		if name, ok := dd.Selected(); ok {
			r.Selected = &name
		}
	}
	return r, m
}
