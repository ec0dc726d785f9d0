package dashboard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/models"
)

// Sub-report narrowing offered by some buckets' tables.
var subReports = map[string]map[string]Predicate{
	"Closed_Count_Stats": {
		"loss":   all(closed, plNegative),
		"profit": all(closed, plPositive),
		"pj":     all(closed, profitJ),
	},
	"Buy_Sell_Stats": {
		"buy":  isAction(models.ActionBuy),
		"sell": isAction(models.ActionSell),
	},
	"Journey_Stats_Running": {
		"pj": all(liveLegs, profitJ, plPositive),
		"cj": all(liveLegs, commJ, not(profitJ), plPositive),
		"bc": all(liveLegs, plNegative),
	},
}

// SubReports lists the sub-report keys for bucket, sorted.
func SubReports(bucket string) []string {
	var out []string
	for k := range subReports[bucket] {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// TableQuery is the drill-down table's secondary filtering. The zero value
// returns every row unchanged.
type TableQuery struct {
	SubReport string
	Search    string
	Columns   map[string][]string // column → allowed display values
	SortKey   string
	SortDesc  bool
	Page      int // 1-based
	Limit     int // 0 = no paging
}

type TableResult struct {
	Rows  []models.Trade    `json:"rows"`
	Total int               `json:"total"`
	Page  models.Pagination `json:"pagination"`
}

// Apply narrows, searches, filters, sorts and pages rows of bucket. rows is
// not modified.
func (q TableQuery) Apply(bucket string, rows []models.Trade) TableResult {
	out := make([]models.Trade, 0, len(rows))
	sub := subReports[bucket][q.SubReport]
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	for i := range rows {
		t := &rows[i]
		if sub != nil && !sub(t) {
			continue
		}
		if needle != "" && !recordContains(t, needle) {
			continue
		}
		if !q.columnsAllow(t) {
			continue
		}
		out = append(out, *t)
	}

	if q.SortKey != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(cellValue(&out[i], q.SortKey), cellValue(&out[j], q.SortKey))
			if q.SortDesc {
				return c > 0
			}
			return c < 0
		})
	}

	total := len(out)
	page := q.Page
	if page < 1 {
		page = 1
	}
	if q.Limit > 0 {
		start := (page - 1) * q.Limit
		if start > total {
			start = total
		}
		end := start + q.Limit
		if end > total {
			end = total
		}
		out = out[start:end]
	}
	return TableResult{Rows: out, Total: total, Page: models.NewPagination(page, q.Limit, int64(total))}
}

func (q TableQuery) columnsAllow(t *models.Trade) bool {
	for col, allowed := range q.Columns {
		if len(allowed) == 0 {
			continue
		}
		v := cellValue(t, col)
		ok := false
		for _, a := range allowed {
			if v == strings.TrimSpace(a) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func recordContains(t *models.Trade, needle string) bool {
	for _, v := range t.Record() {
		if strings.Contains(strings.ToLower(displayString(v)), needle) {
			return true
		}
	}
	return false
}

func cellValue(t *models.Trade, key string) string {
	v, ok := t.Field(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(displayString(v))
}

func displayString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return ""
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// compareValues orders numerically when both sides parse as numbers,
// otherwise by string.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
