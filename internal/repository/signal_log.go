package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/shopspring/decimal"
)

const signalLogColumns = `id, candle_time, COALESCE(symbol, '') AS symbol,
	COALESCE(interval, '') AS interval, COALESCE(signal_type, '') AS signal_type, signal_source,
	candle_pattern, price::float8 AS price, squeeze_status, active_squeeze,
	processing_time_ms::float8 AS processing_time_ms, machine_id, timestamp,
	json_data, created_at, unique_id`

// SignalLogFilter narrows signal_processing_logs. Symbol and SignalType are
// case-insensitive substring matches; MachineID is exact.
type SignalLogFilter struct {
	Symbol     string
	SignalType string
	MachineID  string
	From       *time.Time
	To         *time.Time
}

func (f SignalLogFilter) where() *whereBuilder {
	w := &whereBuilder{}
	if f.Symbol != "" {
		w.add(`symbol ILIKE $%d`, contains(f.Symbol))
	}
	if f.SignalType != "" {
		w.add(`signal_type ILIKE $%d`, contains(f.SignalType))
	}
	if f.MachineID != "" {
		w.add(`machine_id = $%d`, f.MachineID)
	}
	if f.From != nil {
		w.add(`candle_time >= $%d`, *f.From)
	}
	if f.To != nil {
		w.add(`candle_time <= $%d`, *f.To)
	}
	return w
}

type SignalLogRepo struct {
	pool *pgxpool.Pool
}

func NewSignalLogRepo(pool *pgxpool.Pool) *SignalLogRepo {
	return &SignalLogRepo{pool: pool}
}

// List returns one page of logs ordered by candle time, newest first, and
// the total number of matching rows. limit <= 0 returns every match.
func (r *SignalLogRepo) List(ctx context.Context, f SignalLogFilter, page, limit int) ([]models.SignalLog, int64, error) {
	w := f.where()
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signal_processing_logs`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count signal logs: %w", err)
	}

	query := `SELECT ` + signalLogColumns + ` FROM signal_processing_logs` + w.clause() +
		` ORDER BY candle_time DESC`
	query += w.paginate(page, limit)

	logs, err := r.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	for i := range logs {
		logs[i].ExpandJSONData()
	}
	return logs, total, nil
}

// Summary aggregates the logs matching f.
func (r *SignalLogRepo) Summary(ctx context.Context, f SignalLogFilter) (*models.SignalLogSummary, error) {
	w := f.where()
	query := `SELECT ` + signalLogColumns + ` FROM signal_processing_logs` + w.clause()
	logs, err := r.query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return summarizeSignalLogs(logs), nil
}

// WithUniqueID returns logs for the given symbols that carry a non-blank
// Unique_id, newest first.
func (r *SignalLogRepo) WithUniqueID(ctx context.Context, symbols []string, page, limit int) ([]models.SignalLog, int64, error) {
	w := &whereBuilder{}
	w.in("symbol", symbols)
	w.raw(`unique_id IS NOT NULL AND btrim(unique_id) <> ''`)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signal_processing_logs`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count unique-id logs: %w", err)
	}

	query := `SELECT ` + signalLogColumns + ` FROM signal_processing_logs` + w.clause() +
		` ORDER BY created_at DESC` + w.paginate(page, limit)
	logs, err := r.query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, err
	}
	return keepUniqueIDs(logs), total, nil
}

// ByUIDs returns every log whose Unique_id is in uids.
func (r *SignalLogRepo) ByUIDs(ctx context.Context, uids []string) ([]models.SignalLog, error) {
	w := &whereBuilder{}
	w.in("unique_id", uids)
	return r.query(ctx, `SELECT `+signalLogColumns+` FROM signal_processing_logs`+w.clause(), w.args...)
}

func (r *SignalLogRepo) query(ctx context.Context, query string, args ...any) ([]models.SignalLog, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signal logs: %w", err)
	}
	logs, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.SignalLog])
	if err != nil {
		return nil, fmt.Errorf("scan signal logs: %w", err)
	}
	if logs == nil {
		logs = []models.SignalLog{}
	}
	return logs, nil
}

// keepUniqueIDs drops rows whose Unique_id is only whitespace. btrim leaves
// non-breaking spaces behind, unicode.IsSpace does not.
func keepUniqueIDs(logs []models.SignalLog) []models.SignalLog {
	out := logs[:0]
	for _, l := range logs {
		if l.UniqueID == nil {
			continue
		}
		if strings.TrimFunc(*l.UniqueID, unicode.IsSpace) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func summarizeSignalLogs(logs []models.SignalLog) *models.SignalLogSummary {
	s := &models.SignalLogSummary{TotalLogs: int64(len(logs))}
	symbols := map[string]struct{}{}
	machines := map[string]struct{}{}
	var rsiSum float64
	var rsiCount int

	for i := range logs {
		l := &logs[i]
		switch l.SignalType {
		case models.ActionBuy:
			s.BuyCount++
		case models.ActionSell:
			s.SellCount++
		}
		if rsi, ok := l.RSIValue(); ok {
			rsiSum += rsi
			rsiCount++
		}
		if l.Symbol != "" {
			symbols[l.Symbol] = struct{}{}
		}
		if l.MachineID != nil && *l.MachineID != "" {
			machines[*l.MachineID] = struct{}{}
		}
		if ct := l.CandleTime; ct != nil {
			if s.EarliestLog == nil || ct.Before(*s.EarliestLog) {
				t := *ct
				s.EarliestLog = &t
			}
			if s.LatestLog == nil || ct.After(*s.LatestLog) {
				t := *ct
				s.LatestLog = &t
			}
		}
	}
	s.UniqueSymbols = int64(len(symbols))
	s.UniqueMachines = int64(len(machines))
	if rsiCount > 0 {
		avg := decimal.NewFromFloat(rsiSum / float64(rsiCount)).StringFixed(2)
		s.AvgRSI = &avg
	}
	return s
}
