package store

import (
	"context"
	"database/sql"
	"errors"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
    k          VARCHAR(191) NOT NULL PRIMARY KEY,
    v          LONGBLOB     NOT NULL,
    updated_at DATETIME     NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQL keeps values in a single kv_entries table.
type MySQL struct {
	db *sql.DB
}

func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db} }

// EnsureSchema creates the kv_entries table when it does not exist.
func (m *MySQL) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, kvSchema); err != nil {
		return wrap("migrate", "kv_entries", err)
	}
	return nil
}

func (m *MySQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := m.db.QueryRowContext(ctx, `SELECT v FROM kv_entries WHERE k = ? LIMIT 1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap("get", key, err)
	}
	return v, true, nil
}

func (m *MySQL) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO kv_entries (k, v, updated_at) VALUES (?, ?, UTC_TIMESTAMP())
         ON DUPLICATE KEY UPDATE v = VALUES(v), updated_at = UTC_TIMESTAMP()`,
		key, value)
	if err != nil {
		return wrap("set", key, err)
	}
	return nil
}
