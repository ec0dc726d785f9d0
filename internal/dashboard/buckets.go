package dashboard

import (
	"strings"

	"github.com/kjannette/lab-dashboard/internal/models"
)

// Predicate decides bucket membership from a single trade.
type Predicate func(t *models.Trade) bool

// Bucket is a named membership rule. Buckets overlap freely.
type Bucket struct {
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Predicate Predicate `json:"-"`
}

// Registry is an ordered bucket catalogue.
type Registry struct {
	buckets []Bucket
	index   map[string]int
}

func NewRegistry(buckets ...Bucket) *Registry {
	r := &Registry{index: make(map[string]int, len(buckets))}
	for _, b := range buckets {
		if _, dup := r.index[b.Name]; dup {
			continue
		}
		r.index[b.Name] = len(r.buckets)
		r.buckets = append(r.buckets, b)
	}
	return r
}

// Buckets returns the catalogue in declaration order.
func (r *Registry) Buckets() []Bucket {
	out := make([]Bucket, len(r.buckets))
	copy(out, r.buckets)
	return out
}

func (r *Registry) Len() int { return len(r.buckets) }

// Lookup finds a bucket by name. Display forms with spaces and any letter
// case resolve to the same bucket.
func (r *Registry) Lookup(name string) (Bucket, bool) {
	key := normalizeBucketName(name)
	if i, ok := r.index[key]; ok {
		return r.buckets[i], true
	}
	for _, b := range r.buckets {
		if strings.EqualFold(b.Name, key) {
			return b, true
		}
	}
	return Bucket{}, false
}

func normalizeBucketName(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

// predicate building blocks

func isType(types ...string) Predicate {
	return func(t *models.Trade) bool {
		for _, ty := range types {
			if t.Type == ty {
				return true
			}
		}
		return false
	}
}

func isAction(a string) Predicate {
	return func(t *models.Trade) bool { return t.Action == a }
}

func all(ps ...Predicate) Predicate {
	return func(t *models.Trade) bool {
		for _, p := range ps {
			if !p(t) {
				return false
			}
		}
		return true
	}
}

func either(ps ...Predicate) Predicate {
	return func(t *models.Trade) bool {
		for _, p := range ps {
			if p(t) {
				return true
			}
		}
		return false
	}
}

func not(p Predicate) Predicate {
	return func(t *models.Trade) bool { return !p(t) }
}

func always(*models.Trade) bool     { return true }
func hedge(t *models.Trade) bool    { return t.Hedge }
func hedge11(t *models.Trade) bool  { return t.Hedge11 }
func profitJ(t *models.Trade) bool  { return t.ProfitJourney }
func commJ(t *models.Trade) bool    { return t.CommisionJourney }
func minClose(t *models.Trade) bool { return t.IsMinClose() }

// plPositive and plNegative are false when P/L is missing.
func plPositive(t *models.Trade) bool { return t.PlAfterComm != nil && *t.PlAfterComm > 0 }
func plNegative(t *models.Trade) bool { return t.PlAfterComm != nil && *t.PlAfterComm < 0 }

var (
	running   = isType(models.TypeRunning)
	closed    = isType(models.TypeClose)
	liveLegs  = isType(models.TypeRunning, models.TypeHedgeHold)
	closeLegs = isType(models.TypeClose, models.TypeHedgeClose)
)

// DefaultRegistry is the dashboard's bucket catalogue.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Bucket{"Total_Trades", "Total Trades", always},
		Bucket{"Closed_Profit", "Profit + Loss = Closed Profit $", closed},
		Bucket{"Running_Profit", "Profit + Loss = Running Profit $", running},
		Bucket{"Assign_Running_Closed_Count", "Assign / Running / Closed Count",
			isType(models.TypeAssign, models.TypeRunning, models.TypeClose)},
		Bucket{"Running_Buy", "Running / Total Buy", all(isAction(models.ActionBuy), running)},
		Bucket{"Running_Sell", "Running / Total Sell", all(isAction(models.ActionSell), running)},
		Bucket{"Commission_Point_Crossed", "Commission Point Crossed",
			all(commJ, plPositive, not(profitJ), running)},
		Bucket{"Profit_Journey_Crossed", "Profit Journey Crossed", all(profitJ, plPositive, running)},
		Bucket{"Below_Commission_Point", "Below Commission Point", all(plNegative, running)},
		Bucket{"Closed_After_Commission_Point", "Closed After Commission Point",
			all(closed, commJ, not(profitJ))},
		Bucket{"Close_in_Loss", "Close in Loss", all(closed, plNegative)},
		Bucket{"Total_Hedge", "Total Hedge", hedge},
		Bucket{"Hedge_Running_Pl", "Hedge Running P/L", all(hedge, running)},
		Bucket{"Hedge_Closed_Pl", "Hedge Closed P/L", all(hedge, closeLegs)},
		Bucket{"Close_in_Profit", "Close in Profit", all(closed, plPositive)},
		Bucket{"Close_After_Profit_Journey", "Close After Profit Journey", all(closed, profitJ)},
		Bucket{"Close_Curve_in_Loss", "Close Curve in Loss", all(closed, commJ, plNegative)},
		Bucket{"Min_Close_Profit", "Min Close Profit", all(closed, minClose, plPositive)},
		Bucket{"Min_Close_Loss", "Min Close Loss", all(closed, minClose, plNegative)},
		Bucket{"Hedge_on_Hold", "Hedge on Hold", all(hedge, hedge11)},
		Bucket{"Buy_Sell_Stats", "Buy / Sell Stats",
			either(isAction(models.ActionBuy), isAction(models.ActionSell))},

		Bucket{"Total_Stats", "Total Stats", always},
		Bucket{"Total_Closed_Stats", "Total Closed Stats", closeLegs},
		Bucket{"Direct_Closed_Stats", "Direct Closed Stats", all(closed, not(hedge))},
		Bucket{"Hedge_Closed_Stats", "Hedge Closed Stats", all(hedge, isType(models.TypeHedgeClose))},
		Bucket{"Total_Running_Stats", "Total Running Stats", all(liveLegs, not(hedge11))},
		Bucket{"Direct_Running_Stats", "Direct Running Stats", all(liveLegs, not(hedge))},
		Bucket{"Hedge_Running_Stats", "Hedge Running Stats", all(liveLegs, hedge, not(hedge11))},
		Bucket{"Assigned_New", "Assigned New", isType(models.TypeAssign)},
		Bucket{"Closed_Count_Stats", "Closed Count Stats", closed},
		Bucket{"Journey_Stats_Running", "Journey Stats Running", all(running, either(
			all(profitJ, plPositive),
			all(commJ, not(profitJ), plPositive),
			plNegative,
		))},
		Bucket{"Hedge_Stats", "Hedge Stats", hedge},
	)
}
