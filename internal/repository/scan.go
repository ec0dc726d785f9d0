package repository

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type scannable interface {
	Scan(dest ...any) error
}

// collectRecords reads every row into a column-name keyed map with driver
// types flattened to plain JSON-friendly values.
func collectRecords(rows pgx.Rows) ([]map[string]any, error) {
	recs, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		for k, v := range rec {
			rec[k] = normalizeValue(v)
		}
	}
	return recs, nil
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.UUID:
		if !x.Valid {
			return nil
		}
		return uuid.UUID(x.Bytes).String()
	default:
		return v
	}
}
