package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"titra/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Settings keys used by the scheduler core.
const (
	SettingStartDate    = "medication_start_date"
	SettingLastRollover = "last_rollover"
	SettingPatient      = "patient_profile"
)

// GetSetting returns the value stored under key.
func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting stores value under key, replacing any previous value.
func (r Repo) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

// DeleteSetting removes key; missing keys are not an error.
func (r Repo) DeleteSetting(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM settings WHERE key=?`, key)
	return err
}

// ArchiveEvents writes a batch of archive records in one transaction. Inserts
// are idempotent per (event_id, day), so replaying a batch after a crash does
// not duplicate history.
func (r Repo) ArchiveEvents(ctx context.Context, records []domain.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO archive_events(event_id,day,timestamp,type,title_key,description_key,status) VALUES (?,?,?,?,?,?,?)`,
			rec.EventID, rec.Day, rec.Timestamp, string(rec.Type), rec.TitleKey, rec.DescriptionKey, string(rec.Status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ArchiveFilter narrows an archive query. Zero values mean "no constraint".
type ArchiveFilter struct {
	FromDay string
	ToDay   string
	Status  domain.EventStatus
	Type    domain.EventType
	Limit   int
}

// ListArchive returns archive records newest first, plus a count of malformed
// rows that were skipped rather than aborting the read.
func (r Repo) ListArchive(ctx context.Context, f ArchiveFilter) ([]domain.ArchiveRecord, int, error) {
	var (
		clauses []string
		args    []any
	)
	if f.FromDay != "" {
		clauses = append(clauses, "day >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		clauses = append(clauses, "day <= ?")
		args = append(args, f.ToDay)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	query := `SELECT event_id,day,timestamp,type,title_key,description_key,status FROM archive_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, event_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var (
		res     []domain.ArchiveRecord
		skipped int
	)
	for rows.Next() {
		var rec domain.ArchiveRecord
		var typ, status string
		if err := rows.Scan(&rec.EventID, &rec.Day, &rec.Timestamp, &typ, &rec.TitleKey, &rec.DescriptionKey, &status); err != nil {
			skipped++
			continue
		}
		rec.Type = domain.EventType(typ)
		rec.Status = domain.EventStatus(status)
		if rec.EventID == "" || rec.Day == "" {
			skipped++
			continue
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, skipped, err
	}
	return res, skipped, nil
}

// CountArchive returns the number of archive records matching the filter.
func (r Repo) CountArchive(ctx context.Context, f ArchiveFilter) (int, error) {
	var (
		clauses []string
		args    []any
	)
	if f.FromDay != "" {
		clauses = append(clauses, "day >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		clauses = append(clauses, "day <= ?")
		args = append(args, f.ToDay)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	query := `SELECT COUNT(*) FROM archive_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	var n int
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
