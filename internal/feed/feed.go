// Package feed supplies the raw trade and machine lists the dashboard
// aggregates.
package feed

import (
	"context"

	"github.com/kjannette/lab-dashboard/internal/models"
)

// Source fetches complete trade and machine lists.
type Source interface {
	Trades(ctx context.Context) ([]models.Trade, error)
	Machines(ctx context.Context) ([]models.Machine, error)
}

type tradeLister interface {
	GetAll(ctx context.Context) ([]models.Trade, error)
}

type machineLister interface {
	GetAll(ctx context.Context) ([]models.Machine, error)
}

// RepoSource reads straight from the trade store database.
type RepoSource struct {
	trades   tradeLister
	machines machineLister
}

func NewRepoSource(trades tradeLister, machines machineLister) *RepoSource {
	return &RepoSource{trades: trades, machines: machines}
}

func (s *RepoSource) Trades(ctx context.Context) ([]models.Trade, error) {
	return s.trades.GetAll(ctx)
}

func (s *RepoSource) Machines(ctx context.Context) ([]models.Machine, error) {
	return s.machines.GetAll(ctx)
}
