package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/models"
)

var (
	DefaultSignals = []string{
		"2POLE_IN5LOOP", "IMACD", "2POLE_Direct_Signal",
		"HIGHEST SWING HIGH", "LOWEST SWING LOW",
		"NORMAL SWING HIGH", "NORMAL SWING LOW",
		"ProGap", "CrossOver", "Spike", "Kicker",
	}
	DefaultIntervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h"}
	DefaultActions   = []string{models.ActionBuy, models.ActionSell}
)

// Dimension names one of the four selection filters.
type Dimension string

const (
	Signals   Dimension = "signals"
	Machines  Dimension = "machines"
	Intervals Dimension = "intervals"
	Actions   Dimension = "actions"
)

var ErrUnknownDimension = errors.New("unknown filter dimension")

func ParseDimension(s string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(s))); d {
	case Signals, Machines, Intervals, Actions:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}

// FilterState is the user's filter choice. From and To are inclusive and
// unbounded when nil.
type FilterState struct {
	Signals         Selection  `json:"signals"`
	Machines        Selection  `json:"machines"`
	Intervals       Selection  `json:"intervals"`
	Actions         Selection  `json:"actions"`
	From            *time.Time `json:"fromDate,omitempty"`
	To              *time.Time `json:"toDate,omitempty"`
	IncludeMinClose bool       `json:"includeMinClose"`
}

// DefaultFilterState selects every known signal, interval and action, and
// every active machine.
func DefaultFilterState(machines []models.Machine) FilterState {
	fs := FilterState{
		Signals:         NewSelection(DefaultSignals...),
		Machines:        NewSelection(),
		Intervals:       NewSelection(DefaultIntervals...),
		Actions:         NewSelection(DefaultActions...),
		IncludeMinClose: true,
	}
	for _, m := range machines {
		if m.MachineID == "" {
			continue
		}
		fs.Machines.Values[m.MachineID] = m.Active
	}
	return fs
}

// Value returns the trade's key in dimension d.
func (d Dimension) Value(t *models.Trade) string {
	switch d {
	case Signals:
		return t.SignalFrom
	case Machines:
		return t.MachineID
	case Intervals:
		return t.Interval
	case Actions:
		return t.Action
	}
	return ""
}

// ObservedKeys returns the distinct non-empty keys of dimension d across
// trades, in first-seen order.
func ObservedKeys(trades []models.Trade, d Dimension) []string {
	seen := map[string]bool{}
	var out []string
	for i := range trades {
		k := d.Value(&trades[i])
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Selection returns the dimension's selection for in-place edits.
func (fs *FilterState) Selection(d Dimension) (*Selection, error) {
	switch d {
	case Signals:
		return &fs.Signals, nil
	case Machines:
		return &fs.Machines, nil
	case Intervals:
		return &fs.Intervals, nil
	case Actions:
		return &fs.Actions, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, d)
}

func (fs FilterState) Clone() FilterState {
	c := fs
	c.Signals = fs.Signals.Clone()
	c.Machines = fs.Machines.Clone()
	c.Intervals = fs.Intervals.Clone()
	c.Actions = fs.Actions.Clone()
	if fs.From != nil {
		t := *fs.From
		c.From = &t
	}
	if fs.To != nil {
		t := *fs.To
		c.To = &t
	}
	return c
}

// MergeDefaults fills keys that appeared since the state was saved.
func (fs *FilterState) MergeDefaults(def FilterState) {
	fs.Signals.MergeDefaults(def.Signals)
	fs.Machines.MergeDefaults(def.Machines)
	fs.Intervals.MergeDefaults(def.Intervals)
	fs.Actions.MergeDefaults(def.Actions)
}

// Allows reports whether t survives every filter.
func (fs *FilterState) Allows(t *models.Trade) bool {
	if !fs.Signals.Allows(t.SignalFrom) ||
		!fs.Machines.Allows(t.MachineID) ||
		!fs.Intervals.Allows(t.Interval) ||
		!fs.Actions.Allows(t.Action) {
		return false
	}
	if t.CandelTime == nil {
		return false
	}
	if fs.From != nil && t.CandelTime.Before(*fs.From) {
		return false
	}
	if fs.To != nil && t.CandelTime.After(*fs.To) {
		return false
	}
	return fs.IncludeMinClose || !t.IsMinClose()
}

// FilterTrades returns the trades fs allows, in input order.
func FilterTrades(trades []models.Trade, fs FilterState) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for i := range trades {
		if fs.Allows(&trades[i]) {
			out = append(out, trades[i])
		}
	}
	return out
}
