package models

import (
	"encoding/json"
	"time"
)

// SignalLog is one row of signal_processing_logs. The indicator values
// carried in JSONData are lifted to top-level keys on read.
type SignalLog struct {
	ID               int64      `json:"id" db:"id"`
	CandleTime       *time.Time `json:"Candle_Time" db:"candle_time"`
	Symbol           string     `json:"symbol" db:"symbol"`
	Interval         string     `json:"interval" db:"interval"`
	SignalType       string     `json:"signal_type" db:"signal_type"`
	SignalSource     *string    `json:"signal_source" db:"signal_source"`
	CandlePattern    *string    `json:"candle_pattern" db:"candle_pattern"`
	Price            *float64   `json:"price" db:"price"`
	SqueezeStatus    *string    `json:"squeeze_status" db:"squeeze_status"`
	ActiveSqueeze    *bool      `json:"active_squeeze" db:"active_squeeze"`
	ProcessingTimeMS *float64   `json:"processing_time_ms" db:"processing_time_ms"`
	MachineID        *string    `json:"machine_id" db:"machine_id"`
	Timestamp        *time.Time `json:"timestamp" db:"timestamp"`
	JSONData         *string    `json:"json_data" db:"json_data"`
	CreatedAt        *time.Time `json:"created_at" db:"created_at"`
	UniqueID         *string    `json:"Unique_id" db:"unique_id"`

	RSI    any `json:"rsi,omitempty" db:"-"`
	MACD   any `json:"macd,omitempty" db:"-"`
	Trend  any `json:"trend,omitempty" db:"-"`
	Action any `json:"action,omitempty" db:"-"`
	Status any `json:"status,omitempty" db:"-"`
}

// ExpandJSONData copies the well-known indicator keys out of json_data.
// Unparseable payloads are left as they are.
func (l *SignalLog) ExpandJSONData() {
	if l.JSONData == nil || *l.JSONData == "" {
		return
	}
	var extra struct {
		RSI    any `json:"rsi"`
		MACD   any `json:"macd"`
		Trend  any `json:"trend"`
		Action any `json:"action"`
		Status any `json:"status"`
	}
	if err := json.Unmarshal([]byte(*l.JSONData), &extra); err != nil {
		return
	}
	l.RSI, l.MACD, l.Trend, l.Action, l.Status = extra.RSI, extra.MACD, extra.Trend, extra.Action, extra.Status
}

// RSIValue returns the numeric RSI from json_data, if any.
func (l *SignalLog) RSIValue() (float64, bool) {
	if l.JSONData == nil {
		return 0, false
	}
	var payload struct {
		RSI any `json:"rsi"`
	}
	if err := json.Unmarshal([]byte(*l.JSONData), &payload); err != nil {
		return 0, false
	}
	f := asFloat(payload.RSI)
	if f == nil {
		return 0, false
	}
	return *f, true
}

type SignalLogSummary struct {
	TotalLogs      int64      `json:"totalLogs"`
	BuyCount       int64      `json:"buyCount"`
	SellCount      int64      `json:"sellCount"`
	AvgRSI         *string    `json:"avgRSI"`
	UniqueSymbols  int64      `json:"uniqueSymbols"`
	UniqueMachines int64      `json:"uniqueMachines"`
	EarliestLog    *time.Time `json:"earliestLog"`
	LatestLog      *time.Time `json:"latestLog"`
}

// BotEvent is one row of bot_event_log.
type BotEvent struct {
	ID                int64           `json:"id" db:"id"`
	UID               *string         `json:"uid" db:"uid"`
	Source            *string         `json:"source" db:"source"`
	PlAfterComm       *float64        `json:"Pl_after_comm" db:"pl_after_comm"`
	PlainMessage      *string         `json:"plain_message" db:"plain_message"`
	JSONMessage       *string         `json:"json_message" db:"json_message"`
	Timestamp         *time.Time      `json:"timestamp" db:"timestamp"`
	MachineID         *string         `json:"machine_id" db:"machine_id"`
	ParsedJSONMessage json.RawMessage `json:"parsed_json_message" db:"-"`
}

// ParseJSONMessage fills ParsedJSONMessage when json_message holds valid JSON.
func (e *BotEvent) ParseJSONMessage() {
	e.ParsedJSONMessage = json.RawMessage("null")
	if e.JSONMessage == nil || !json.Valid([]byte(*e.JSONMessage)) {
		return
	}
	e.ParsedJSONMessage = json.RawMessage(*e.JSONMessage)
}

type BotEventSummary struct {
	TotalLogs       int64      `json:"totalLogs"`
	UniqueMachines  int64      `json:"uniqueMachines"`
	UniqueSources   int64      `json:"uniqueSources"`
	PositivePLCount int64      `json:"positivePLCount"`
	NegativePLCount int64      `json:"negativePLCount"`
	ZeroPLCount     int64      `json:"zeroPLCount"`
	AvgPL           string     `json:"avgPL"`
	EarliestLog     *time.Time `json:"earliestLog"`
	LatestLog       *time.Time `json:"latestLog"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewPagination derives page counts. A limit of 0 means everything on one page.
func NewPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	switch {
	case limit > 0:
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	case total > 0:
		p.TotalPages = 1
	}
	p.HasNext = page < p.TotalPages
	p.HasPrev = page > 1
	return p
}
