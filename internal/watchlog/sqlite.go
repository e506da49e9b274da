package watchlog

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore keeps each entry as a JSON text row in a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite watch log: open")
	}
	// one writer at a time; sqlite serialises anyway
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(sqliteSchema); err != nil {
		_ = d.Close()
		return nil, errors.Wrap(err, "sqlite watch log: init schema")
	}
	return &SQLiteStore{db: d}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM watch_log ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite watch log: query")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "sqlite watch log: scan")
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, errors.Wrap(err, "sqlite watch log: decode entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite watch log: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM watch_log`); err != nil {
		return errors.Wrap(err, "sqlite watch log: clear")
	}
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "sqlite watch log: encode entry")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO watch_log(entry) VALUES (?)`, string(b)); err != nil {
			return errors.Wrap(err, "sqlite watch log: insert")
		}
	}
	return errors.Wrap(tx.Commit(), "sqlite watch log: commit")
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "sqlite watch log: encode entry")
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO watch_log(entry) VALUES (?)`, string(b))
	return errors.Wrap(err, "sqlite watch log: append")
}
