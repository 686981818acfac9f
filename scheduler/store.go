package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL
	_ "modernc.org/sqlite"

	"github.com/SyneHQ/backfill/workflow"
)

type DBDriver string

const (
	SQLite     DBDriver = "sqlite"
	PostgreSQL DBDriver = "postgres"
)

// Store records workflow runs and task instances in SQLite or PostgreSQL.
type Store struct {
	db     *sql.DB
	driver string
}

var sqlitePragmas = []string{
	`PRAGMA foreign_keys = ON`,
	`PRAGMA busy_timeout = 5000`,
}

func OpenStore(driver, path string) (*Store, error) {
	switch DBDriver(driver) {
	case SQLite, PostgreSQL:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// one writer; concurrent runs queue on the connection
		db.SetMaxOpenConns(1)
		for _, pragma := range sqlitePragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}
	if driver == "postgres" {
		db.SetConnMaxIdleTime(15 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
		db.SetConnMaxLifetime(1 * time.Hour)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS backfill_runs (
        id TEXT PRIMARY KEY,
        dag_id TEXT NOT NULL,
        logical_date BIGINT NOT NULL,
        params TEXT,
        resolved_date TEXT,
        state TEXT NOT NULL,
        error TEXT,
        started_at BIGINT,
        finished_at BIGINT
    )`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS backfill_task_instances (
        run_id TEXT NOT NULL REFERENCES backfill_runs(id) ON DELETE CASCADE,
        task_id TEXT NOT NULL,
        try_number INTEGER NOT NULL,
        state TEXT NOT NULL,
        return_value TEXT,
        job_id TEXT,
        error TEXT,
        started_at BIGINT,
        finished_at BIGINT,
        PRIMARY KEY (run_id, task_id, try_number)
    )`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_backfill_runs_started ON backfill_runs(started_at)`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) IsSQLite() bool {
	return DBDriver(s.driver) == SQLite
}

func (s *Store) IsPostgres() bool {
	return DBDriver(s.driver) == PostgreSQL
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) bind(query string) string {
	if !s.IsPostgres() {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) SaveRun(ctx context.Context, r workflow.Run) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	query := `INSERT INTO backfill_runs
        (id, dag_id, logical_date, params, resolved_date, state, error, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            resolved_date = EXCLUDED.resolved_date,
            state = EXCLUDED.state,
            error = EXCLUDED.error,
            finished_at = EXCLUDED.finished_at`
	_, err = s.db.ExecContext(ctx, s.bind(query),
		r.ID, r.DagID, r.LogicalDate.Unix(), string(params), r.ResolvedDate, string(r.State), r.Error,
		unix(r.StartedAt), unix(r.FinishedAt))
	return err
}

func (s *Store) SaveTask(ctx context.Context, ti workflow.TaskInstance) error {
	query := `INSERT INTO backfill_task_instances
        (run_id, task_id, try_number, state, return_value, job_id, error, started_at, finished_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id, task_id, try_number) DO UPDATE SET
            state = EXCLUDED.state,
            return_value = EXCLUDED.return_value,
            job_id = EXCLUDED.job_id,
            error = EXCLUDED.error,
            finished_at = EXCLUDED.finished_at`
	_, err := s.db.ExecContext(ctx, s.bind(query),
		ti.RunID, ti.TaskID, ti.Try, string(ti.State), ti.ReturnValue, ti.JobID, ti.Error,
		unix(ti.StartedAt), unix(ti.FinishedAt))
	return err
}

const runColumns = `id, dag_id, logical_date, params, resolved_date, state, error, started_at, finished_at`

func (s *Store) GetRun(ctx context.Context, id string) (workflow.Run, []workflow.TaskInstance, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+runColumns+` FROM backfill_runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Run{}, nil, workflow.ErrRunNotFound
	}
	if err != nil {
		return workflow.Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT run_id, task_id, try_number, state, return_value, job_id, error, started_at, finished_at
        FROM backfill_task_instances WHERE run_id = ? ORDER BY started_at, task_id, try_number`), id)
	if err != nil {
		return workflow.Run{}, nil, err
	}
	defer rows.Close()

	var tasks []workflow.TaskInstance
	for rows.Next() {
		var (
			ti                workflow.TaskInstance
			state             string
			started, finished int64
		)
		if err := rows.Scan(&ti.RunID, &ti.TaskID, &ti.Try, &state, &ti.ReturnValue, &ti.JobID, &ti.Error, &started, &finished); err != nil {
			return workflow.Run{}, nil, err
		}
		ti.State = workflow.TaskState(state)
		ti.StartedAt = fromUnix(started)
		ti.FinishedAt = fromUnix(finished)
		tasks = append(tasks, ti)
	}
	return run, tasks, rows.Err()
}

// ListRuns returns the most recently started runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]workflow.Run, error) {
	query := `SELECT ` + runColumns + ` FROM backfill_runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkInterrupted fails runs and task instances left unfinished by a
// previous process. Jobs they submitted are not touched.
func (s *Store) MarkInterrupted(ctx context.Context, at time.Time) (int64, error) {
	const reason = "interrupted: scheduler restarted"
	res, err := s.db.ExecContext(ctx, s.bind(`UPDATE backfill_runs SET state = ?, error = ?, finished_at = ?
        WHERE state IN (?, ?)`),
		string(workflow.RunFailed), reason, at.Unix(), string(workflow.RunScheduled), string(workflow.RunRunning))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, err = s.db.ExecContext(ctx, s.bind(`UPDATE backfill_task_instances SET state = ?, error = ?, finished_at = ?
        WHERE state IN (?, ?, ?)`),
		string(workflow.TaskFailed), reason, at.Unix(),
		string(workflow.TaskScheduled), string(workflow.TaskRunning), string(workflow.TaskUpForRetry))
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (workflow.Run, error) {
	var (
		r                          workflow.Run
		logical, started, finished int64
		params, state              string
	)
	if err := sc.Scan(&r.ID, &r.DagID, &logical, &params, &r.ResolvedDate, &state, &r.Error, &started, &finished); err != nil {
		return workflow.Run{}, err
	}
	if params != "" && params != "null" {
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return workflow.Run{}, fmt.Errorf("decode params of run %s: %w", r.ID, err)
		}
	}
	r.State = workflow.RunState(state)
	r.LogicalDate = time.Unix(logical, 0).UTC()
	r.StartedAt = fromUnix(started)
	r.FinishedAt = fromUnix(finished)
	return r, nil
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
