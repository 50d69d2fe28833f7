package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stores (
	name TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	store TEXT NOT NULL,
	key TEXT NOT NULL,
	status INTEGER NOT NULL,
	header BLOB,
	body BLOB,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (store, key)
);
`

// SQLiteRegistry 把所有仓放进同一个 SQLite 文件，entries 以 (store, key) 为主键，
// INSERT OR REPLACE 天然满足 last-write-wins。
type SQLiteRegistry struct {
	db *sql.DB
}

type sqliteStore struct {
	db   *sql.DB
	name string
}

// NewSQLiteRegistry 打开（必要时创建）path 指向的数据库文件。
func NewSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接串行化写入，避免 SQLITE_BUSY。
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Close 释放底层连接。
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

func (r *SQLiteRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := ensureSQLiteStore(ctx, r.db, name); err != nil {
		return nil, err
	}
	return &sqliteStore{db: r.db, name: name}, nil
}

func (r *SQLiteRegistry) Has(ctx context.Context, name string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, "SELECT name FROM stores WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SQLiteRegistry) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM stores ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *SQLiteRegistry) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE store = ?", name); err != nil {
		return false, err
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM stores WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sqliteStore) Name() string {
	return s.name
}

func (s *sqliteStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	var (
		status   int
		header   []byte
		body     []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT status, header, body, stored_at FROM entries WHERE store = ? AND key = ?",
		s.name, key.String(),
	).Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	resp := &Response{Status: status, Body: body, StoredAt: time.Unix(0, storedAt).UTC()}
	if len(header) > 0 {
		if err := json.Unmarshal(header, &resp.Header); err != nil {
			return nil, fmt.Errorf("decode cached header: %w", err)
		}
	}
	return resp, nil
}

func (s *sqliteStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	// stores 行与 entries 行在同一事务内写入，整仓 Delete 不会在两者之间提交而留下孤儿条目。
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureSQLiteStore(ctx, tx, s.name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO entries (store, key, status, header, body, stored_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.name, key.String(), resp.Status, header, resp.Body, storedAt.UnixNano(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) Delete(ctx context.Context, key RequestKey) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE store = ? AND key = ?", s.name, key.String())
	return err
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureSQLiteStore(ctx context.Context, db sqlExecer, name string) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO stores (name, created_at) VALUES (?, ?)",
		name, time.Now().Unix(),
	)
	return err
}
