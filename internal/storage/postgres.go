package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/flowcore/flowexpr/pkg/api"
)

// Postgres is an api.Storage backed by PostgreSQL, grounded on the
// teacher's persistence.PostgresInstanceStore.
//
// It expects an *sql.DB using the jackc/pgx/v5 stdlib driver. The caller
// is responsible for importing the driver:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
type Postgres struct {
	db *sql.DB
}

var _ api.Storage = (*Postgres)(nil)

// NewPostgres initializes the required schema in db and returns a
// Postgres store.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	s := &Postgres{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Postgres) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS expressions (
			fei TEXT PRIMARY KEY,
			record BYTEA NOT NULL
		);`,
	)
	return err
}

func (s *Postgres) Load(ctx context.Context, fei api.FEI) (api.ExpressionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT record FROM expressions WHERE fei = $1`, fei.String())

	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.ExpressionRecord{}, api.ErrExpressionNotFound
		}
		return api.ExpressionRecord{}, err
	}
	return decodeRecord(blob)
}

func (s *Postgres) Save(ctx context.Context, rec api.ExpressionRecord) error {
	blob, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO expressions (fei, record) VALUES ($1, $2)
		ON CONFLICT (fei) DO UPDATE SET record = excluded.record`,
		rec.Fei.String(), blob,
	)
	return err
}

func (s *Postgres) Delete(ctx context.Context, fei api.FEI) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM expressions WHERE fei = $1`, fei.String())
	return err
}
