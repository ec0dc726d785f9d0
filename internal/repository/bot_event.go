package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/shopspring/decimal"
)

const botEventColumns = `id, uid, source, pl_after_comm::float8 AS pl_after_comm,
	plain_message, json_message, timestamp, machine_id`

type BotEventFilter struct {
	UID       string
	Source    string
	MachineID string
	From      *time.Time
	To        *time.Time
}

func (f BotEventFilter) where() *whereBuilder {
	w := &whereBuilder{}
	if f.UID != "" {
		w.add(`uid = $%d`, f.UID)
	}
	if f.Source != "" {
		w.add(`source ILIKE $%d`, contains(f.Source))
	}
	if f.MachineID != "" {
		w.add(`machine_id = $%d`, f.MachineID)
	}
	if f.From != nil {
		w.add(`timestamp >= $%d`, *f.From)
	}
	if f.To != nil {
		w.add(`timestamp <= $%d`, *f.To)
	}
	return w
}

type BotEventRepo struct {
	pool *pgxpool.Pool
}

func NewBotEventRepo(pool *pgxpool.Pool) *BotEventRepo {
	return &BotEventRepo{pool: pool}
}

// List returns one page of events, newest first, plus the match count.
func (r *BotEventRepo) List(ctx context.Context, f BotEventFilter, page, limit int) ([]models.BotEvent, int64, error) {
	w := f.where()
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bot_event_log`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bot events: %w", err)
	}

	query := `SELECT ` + botEventColumns + ` FROM bot_event_log` + w.clause() +
		` ORDER BY timestamp DESC` + w.paginate(page, limit)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query bot events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.BotEvent])
	if err != nil {
		return nil, 0, fmt.Errorf("scan bot events: %w", err)
	}
	if events == nil {
		events = []models.BotEvent{}
	}
	for i := range events {
		events[i].ParseJSONMessage()
	}
	return events, total, nil
}

func (r *BotEventRepo) Summary(ctx context.Context, f BotEventFilter) (*models.BotEventSummary, error) {
	w := f.where()
	query := `SELECT
			COUNT(*),
			COUNT(DISTINCT machine_id),
			COUNT(DISTINCT source),
			COUNT(CASE WHEN pl_after_comm > 0 THEN 1 END),
			COUNT(CASE WHEN pl_after_comm < 0 THEN 1 END),
			COUNT(CASE WHEN pl_after_comm = 0 THEN 1 END),
			AVG(pl_after_comm)::float8,
			MIN(timestamp),
			MAX(timestamp)
		 FROM bot_event_log` + w.clause()

	var s models.BotEventSummary
	var avg *float64
	err := r.pool.QueryRow(ctx, query, w.args...).Scan(
		&s.TotalLogs, &s.UniqueMachines, &s.UniqueSources,
		&s.PositivePLCount, &s.NegativePLCount, &s.ZeroPLCount,
		&avg, &s.EarliestLog, &s.LatestLog,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize bot events: %w", err)
	}
	s.AvgPL = "0.00"
	if avg != nil {
		s.AvgPL = decimal.NewFromFloat(*avg).StringFixed(2)
	}
	return &s, nil
}
