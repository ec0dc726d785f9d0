package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/lab-dashboard/internal/models"
)

type MachineRepo struct {
	pool *pgxpool.Pool
}

func NewMachineRepo(pool *pgxpool.Pool) *MachineRepo {
	return &MachineRepo{pool: pool}
}

func (r *MachineRepo) GetAll(ctx context.Context) ([]models.Machine, error) {
	rows, err := r.pool.Query(ctx, `SELECT machine_id, COALESCE(active, false) FROM machines ORDER BY machine_id`)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	out := []models.Machine{}
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMachine(row scannable) (models.Machine, error) {
	var m models.Machine
	err := row.Scan(&m.MachineID, &m.Active)
	return m, err
}
