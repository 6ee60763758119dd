package repo

import (
	"context"
	"errors"

	"titra/internal/domain"
)

// InsertBPPair writes the sitting and standing readings of one check in a
// single transaction. Both rows share the pair's correlation id; the
// unique(correlation_id, position) constraint guarantees at most one
// counterpart per correlation id.
func (r Repo) InsertBPPair(ctx context.Context, sitting, standing domain.BPReading) error {
	if sitting.CorrelationID == "" || sitting.CorrelationID != standing.CorrelationID {
		return errors.New("readings must share a correlation id")
	}
	if sitting.Position != "sitting" || standing.Position != "standing" {
		return errors.New("pair requires one sitting and one standing reading")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, reading := range []domain.BPReading{sitting, standing} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bp_readings(id,correlation_id,timestamp,position,systolic,diastolic) VALUES (?,?,?,?,?,?)`,
			reading.ID, reading.CorrelationID, reading.Timestamp, reading.Position, reading.Systolic, reading.Diastolic); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListBPReadings returns raw readings newest first. Pairing is a read-side
// projection over this result (see internal/history).
func (r Repo) ListBPReadings(ctx context.Context, limit int) ([]domain.BPReading, error) {
	query := `SELECT id,correlation_id,timestamp,position,systolic,diastolic FROM bp_readings ORDER BY timestamp DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BPReading
	for rows.Next() {
		var b domain.BPReading
		if err := rows.Scan(&b.ID, &b.CorrelationID, &b.Timestamp, &b.Position, &b.Systolic, &b.Diastolic); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
