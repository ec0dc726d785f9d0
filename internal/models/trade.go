package models

import (
	"encoding/json"
	"time"
)

// Trade lifecycle stages as written by the bot fleet.
const (
	TypeAssign     = "assign"
	TypeRunning    = "running"
	TypeClose      = "close"
	TypeHedgeClose = "hedge_close"
	TypeHedgeHold  = "hedge_hold"

	ActionBuy  = "BUY"
	ActionSell = "SELL"

	// MinCloseMarker is the Min_close value of a trade closed by the minimum-close rule.
	MinCloseMarker = "Min_close"
)

// Trade is one row of the trade store. The typed fields are the ones the
// dashboard interprets; Fields keeps the complete record so that extra
// columns reach drill-down tables untouched.
type Trade struct {
	Action           string
	Type             string
	Hedge            bool
	Hedge11          bool
	PlAfterComm      *float64 // nil when missing or non-numeric
	ProfitJourney    bool
	CommisionJourney bool
	MinClose         string
	SignalFrom       string
	MachineID        string
	Interval         string
	Investment       float64
	CandelTime       *time.Time // nil when missing or unparseable
	Pair             string

	Fields map[string]any
}

// TradeFromRecord builds a Trade from a raw record. Keys are matched
// ignoring case and underscores, so the API's column names (MachineId,
// SignalFrom) and Postgres snake_case names (machine_id, signal_from) both
// work.
func TradeFromRecord(rec map[string]any) Trade {
	r := record(rec)
	t := Trade{
		Action:           asString(r.get("Action")),
		Type:             asString(r.get("Type")),
		Hedge:            asBool(r.get("Hedge")),
		Hedge11:          asBool(r.get("Hedge_1_1_bool")),
		PlAfterComm:      asFloat(r.get("Pl_after_comm")),
		ProfitJourney:    asBool(r.get("Profit_journey")),
		CommisionJourney: asBool(r.get("Commision_journey")),
		MinClose:         asString(r.get("Min_close")),
		SignalFrom:       asString(r.get("SignalFrom")),
		MachineID:        asString(r.get("MachineId")),
		Interval:         asString(r.get("Interval")),
		CandelTime:       asTime(r.get("Candel_time")),
		Pair:             asString(r.get("Pair")),
		Fields:           rec,
	}
	if inv := asFloat(r.get("Investment")); inv != nil {
		t.Investment = *inv
	}
	return t
}

// PL returns the profit/loss after commission, 0 when absent.
func (t *Trade) PL() float64 {
	if t.PlAfterComm == nil {
		return 0
	}
	return *t.PlAfterComm
}

func (t *Trade) IsMinClose() bool {
	return t.MinClose == MinCloseMarker
}

// Field returns the raw value stored under key, matched like TradeFromRecord.
func (t *Trade) Field(key string) (any, bool) {
	if t.Fields == nil {
		v, ok := t.canonical()[key]
		return v, ok
	}
	return record(t.Fields).lookup(key)
}

// Record returns the raw record, synthesising one from the typed fields
// when the trade was not built from a record.
func (t *Trade) Record() map[string]any {
	if t.Fields != nil {
		return t.Fields
	}
	return t.canonical()
}

func (t Trade) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Record())
}

func (t *Trade) UnmarshalJSON(data []byte) error {
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*t = TradeFromRecord(rec)
	return nil
}

func (t *Trade) canonical() map[string]any {
	m := map[string]any{
		"Action":            t.Action,
		"Type":              t.Type,
		"Hedge":             t.Hedge,
		"Hedge_1_1_bool":    t.Hedge11,
		"Profit_journey":    t.ProfitJourney,
		"Commision_journey": t.CommisionJourney,
		"SignalFrom":        t.SignalFrom,
		"MachineId":         t.MachineID,
		"Interval":          t.Interval,
		"Investment":        t.Investment,
	}
	if t.PlAfterComm != nil {
		m["Pl_after_comm"] = *t.PlAfterComm
	} else {
		m["Pl_after_comm"] = nil
	}
	if t.MinClose != "" {
		m["Min_close"] = t.MinClose
	}
	if t.CandelTime != nil {
		m["Candel_time"] = t.CandelTime.UTC().Format(time.RFC3339Nano)
	} else {
		m["Candel_time"] = nil
	}
	if t.Pair != "" {
		m["Pair"] = t.Pair
	}
	return m
}

// Machine is one fleet node.
type Machine struct {
	MachineID string `json:"MachineId"`
	Active    bool   `json:"Active"`
}
