package dashboard

import "github.com/kjannette/lab-dashboard/internal/models"

// Summary is a bucket's count and signed P/L sums. Total is always
// Plus + Minus.
type Summary struct {
	Count int     `json:"count"`
	Plus  float64 `json:"plus"`
	Minus float64 `json:"minus"`
	Total float64 `json:"total"`
}

func summarize(members []models.Trade) Summary {
	s := Summary{Count: len(members)}
	for i := range members {
		pl := members[i].PL()
		switch {
		case pl > 0:
			s.Plus += pl
		case pl < 0:
			s.Minus += pl
		}
	}
	s.Total = s.Plus + s.Minus
	return s
}

// ActionBreakdown counts one action's trades by lifecycle stage.
type ActionBreakdown struct {
	RunningDirect int `json:"runningDirect"`
	RunningHedge  int `json:"runningHedge"`
	ClosedDirect  int `json:"closedDirect"`
	ClosedHedge   int `json:"closedHedge"`
	Closed        int `json:"closed"`
	Total         int `json:"total"`
}

// Metrics is one aggregation pass over a filtered trade set. It is not
// modified after ComputeMetrics returns.
type Metrics struct {
	Filtered        []models.Trade
	TotalInvestment float64
	AssignCount     int
	BuySell         map[string]ActionBreakdown

	order     []Bucket
	members   map[string][]models.Trade
	summaries map[string]Summary
}

// ComputeMetrics evaluates every bucket of reg over filtered. Member lists
// keep the input order.
func ComputeMetrics(filtered []models.Trade, reg *Registry) *Metrics {
	m := &Metrics{
		Filtered:  filtered,
		BuySell:   map[string]ActionBreakdown{models.ActionBuy: {}, models.ActionSell: {}},
		order:     reg.Buckets(),
		members:   make(map[string][]models.Trade, reg.Len()),
		summaries: make(map[string]Summary, reg.Len()),
	}

	for _, b := range m.order {
		m.members[b.Name] = []models.Trade{}
	}
	for i := range filtered {
		t := &filtered[i]
		for _, b := range m.order {
			if b.Predicate(t) {
				m.members[b.Name] = append(m.members[b.Name], *t)
			}
		}
		m.TotalInvestment += t.Investment
		if t.Type == models.TypeAssign {
			m.AssignCount++
		}
		m.countAction(t)
	}
	for _, b := range m.order {
		m.summaries[b.Name] = summarize(m.members[b.Name])
	}
	return m
}

func (m *Metrics) countAction(t *models.Trade) {
	ab, ok := m.BuySell[t.Action]
	if !ok {
		return
	}
	ab.Total++
	switch t.Type {
	case models.TypeRunning:
		if t.Hedge {
			ab.RunningHedge++
		} else {
			ab.RunningDirect++
		}
	case models.TypeClose:
		ab.ClosedDirect++
		ab.Closed++
	case models.TypeHedgeClose:
		ab.ClosedHedge++
		ab.Closed++
	}
	m.BuySell[t.Action] = ab
}

// Buckets returns the registry order used for this pass.
func (m *Metrics) Buckets() []Bucket {
	return m.order
}

// Members returns the bucket's trades, or nil for an unknown bucket.
func (m *Metrics) Members(name string) []models.Trade {
	return m.members[name]
}

func (m *Metrics) Summary(name string) (Summary, bool) {
	s, ok := m.summaries[name]
	return s, ok
}

// Available returns the capital not tied up in filtered trades, floored at 0.
func (m *Metrics) Available(capital float64) float64 {
	if left := capital - m.TotalInvestment; left > 0 {
		return left
	}
	return 0
}
