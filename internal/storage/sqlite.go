package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/flowcore/flowexpr/pkg/api"
)

// SQLite is an api.Storage backed by SQLite, grounded on the teacher's
// persistence.SQLiteInstanceStore.
//
// It expects an *sql.DB using the modernc.org/sqlite driver. The caller
// is responsible for importing the driver:
//
//	import _ "modernc.org/sqlite"
type SQLite struct {
	db *sql.DB
}

var _ api.Storage = (*SQLite)(nil)

// NewSQLite initializes the required schema in db and returns a SQLite
// store.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS expressions (
			fei TEXT PRIMARY KEY,
			record BLOB NOT NULL
		);`,
	)
	return err
}

func (s *SQLite) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM expressions WHERE fei = ?`, fei.String())

	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.ExpressionRecord{}, api.ErrExpressionNotFound
		}
		return api.ExpressionRecord{}, err
	}
	return decodeRecord(blob)
}

func (s *SQLite) Save(ctx context.Context, rec api.ExpressionRecord) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expressions (fei, record) VALUES (?, ?)
		ON CONFLICT(fei) DO UPDATE SET record = excluded.record`,
		rec.Fei.String(), blob,
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, fei api.FEI) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM expressions WHERE fei = ?`, fei.String())
	return err
}
