package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"titra/internal/domain"
)

// HashDeviceKey returns a stable SHA-256 hex digest for the provided key.
func HashDeviceKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertDeviceKey stores a hashed device key. KeyHash must already contain the
// hashed value.
func (r Repo) InsertDeviceKey(ctx context.Context, key domain.DeviceKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO device_keys(id, name, key_hash, created_at) VALUES (?,?,?,?)`,
		key.ID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetDeviceKeyByHash returns a device key by its hashed value.
func (r Repo) GetDeviceKeyByHash(ctx context.Context, hash string) (domain.DeviceKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), key_hash, created_at FROM device_keys WHERE key_hash=? LIMIT 1`, hash)
	var key domain.DeviceKey
	err := row.Scan(&key.ID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.DeviceKey{}, ErrNotFound
	}
	return key, err
}

// ListDeviceKeys returns all device keys, newest first.
func (r Repo) ListDeviceKeys(ctx context.Context) ([]domain.DeviceKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(name,''), key_hash, created_at FROM device_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.DeviceKey
	for rows.Next() {
		var key domain.DeviceKey
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteDeviceKey deletes a device key by ID.
func (r Repo) DeleteDeviceKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM device_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
