package watchlog

import (
	"context"
	"encoding/json"

	"github.com/example/resy-watch/internal/db"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PGStore keeps each entry as a JSONB row ordered by insertion sequence.
type PGStore struct{ db *db.DB }

func NewPGStore(d *db.DB) *PGStore { return &PGStore{db: d} }

func (s *PGStore) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT entry FROM watch_log ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "pg watch log: query")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "pg watch log: scan")
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, "pg watch log: decode entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveAll replaces the whole log inside one transaction.
func (s *PGStore) SaveAll(ctx context.Context, entries []Entry) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM watch_log`); err != nil {
			return errors.Wrap(err, "pg watch log: clear")
		}
		for _, e := range entries {
			b, err := json.Marshal(e)
			if err != nil {
				return errors.Wrap(err, "pg watch log: encode entry")
			}
			if _, err := tx.Exec(ctx, `INSERT INTO watch_log(entry) VALUES ($1)`, json.RawMessage(b)); err != nil {
				return errors.Wrap(err, "pg watch log: insert")
			}
		}
		return nil
	})
}

func (s *PGStore) Append(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "pg watch log: encode entry")
	}
	return errors.Wrap(s.db.Exec(ctx, `INSERT INTO watch_log(entry) VALUES ($1)`, json.RawMessage(b)), "pg watch log: append")
}
