package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/lab-dashboard/internal/models"
)

// TradeRepo reads the bot fleet's trade records. Rows are passed through
// with every column intact.
type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// GetAll returns every trade record.
func (r *TradeRepo) GetAll(ctx context.Context) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx, `SELECT * FROM all_trade_records`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return collectTrades(rows)
}

// GetFiltered returns trades newest first, optionally for a single pair.
// limit <= 0 returns everything.
func (r *TradeRepo) GetFiltered(ctx context.Context, pair string, limit int) ([]models.Trade, error) {
	query, args := buildTradeQuery(pair, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filtered trades: %w", err)
	}
	return collectTrades(rows)
}

func buildTradeQuery(pair string, limit int) (string, []any) {
	var w whereBuilder
	if pair != "" {
		w.add("pair = $%d", pair)
	}
	query := `SELECT * FROM all_trade_records` + w.clause() + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += " LIMIT " + w.placeholder(limit)
	}
	return query, w.args
}

func collectTrades(rows pgx.Rows) ([]models.Trade, error) {
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}
	out := make([]models.Trade, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.TradeFromRecord(rec))
	}
	return out, nil
}
