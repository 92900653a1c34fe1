package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowcore/flowexpr/pkg/api"
)

// SQLite is a durable api.Scheduler backed by SQLite, grounded on the
// teacher's taskqueue.SQLiteQueue poll loop: rows due before now are
// claimed in a transaction and deleted, rather than fired from an
// in-process timer, so scheduled wake-ups survive a process restart.
type SQLite struct {
	db           *sql.DB
	fire         Fire
	pollInterval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ api.Scheduler = (*SQLite)(nil)

// NewSQLite initializes the jobs table in db, starts the poll loop, and
// returns a SQLite scheduler.
func NewSQLite(db *sql.DB, fire Fire) (*SQLite, error) {
	s := &SQLite{
		db:           db,
		fire:         fire,
		pollInterval: 20 * time.Millisecond,
		stop:         make(chan struct{}),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.pollLoop()
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_jobs (
			job_id TEXT PRIMARY KEY,
			fei TEXT NOT NULL,
			not_before INTEGER NOT NULL
		);`,
	)
	return err
}

// Close stops the poll loop.
func (s *SQLite) Close() error {
	close(s.stop)
	s.wg.Wait()
	return nil
}

func (s *SQLite) In(ctx context.Context, d time.Duration, fei api.FEI) (string, error) {
	jobID := uuid.NewString()
	notBefore := time.Now().Add(d).UnixNano()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (job_id, fei, not_before) VALUES (?, ?, ?)`,
		jobID, fei.String(), notBefore,
	)
	return jobID, err
}

func (s *SQLite) Unschedule(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE job_id = ?`, jobID)
	return err
}

func (s *SQLite) pollLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-time.After(s.pollInterval):
			s.fireDue()
		}
	}
}

func (s *SQLite) fireDue() {
	ctx := context.Background()
	now := time.Now().UnixNano()

	for {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return
		}

		var jobID, feiStr string
		row := tx.QueryRowContext(ctx, `
			SELECT job_id, fei FROM scheduled_jobs
			WHERE not_before <= ?
			ORDER BY not_before, job_id
			LIMIT 1`, now,
		)
		if err := row.Scan(&jobID, &feiStr); err != nil {
			_ = tx.Rollback()
			if errors.Is(err, sql.ErrNoRows) {
				return
			}
			return
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE job_id = ?`, jobID); err != nil {
			_ = tx.Rollback()
			return
		}
		if err := tx.Commit(); err != nil {
			return
		}

		fei := parseFEI(feiStr)
		_ = s.fire(ctx, fei)
	}
}

// parseFEI reverses api.FEI.String's "<wfid>!<exprid>!<childid>" format.
func parseFEI(s string) api.FEI {
	var wf, expr string
	var child int
	a, b, c := 0, 0, len(s)
	for i := 0; i < len(s); i++ {
		if s[i] == '!' {
			if a == 0 {
				a = i
			} else {
				b = i
			}
		}
	}
	if a == 0 || b == 0 {
		return api.FEI{}
	}
	wf = s[:a]
	expr = s[a+1 : b]
	for i := b + 1; i < c; i++ {
		child = child*10 + int(s[i]-'0')
	}
	return api.FEI{WorkflowID: wf, ExpressionID: expr, ChildID: child}
}
