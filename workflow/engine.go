package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SyneHQ/backfill/logger"
	"github.com/SyneHQ/backfill/metrics"
	"github.com/SyneHQ/backfill/runner"
)

var ErrBeforeStartDate = errors.New("logical date is before the workflow start date")

type TriggerRequest struct {
	Params Params
	// LogicalDate is the run's nominal date; zero means now.
	LogicalDate time.Time
}

// Engine runs the two steps of a Definition in order: the date resolver,
// then the job submitter with the definition's retry policy.
type Engine struct {
	def     *Definition
	runner  runner.Runner
	rec     Recorder
	metrics *metrics.Metrics
	now     func() time.Time
}

type EngineOption func(*Engine)

func WithRecorder(rec Recorder) EngineOption {
	return func(e *Engine) {
		e.rec = rec
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(def *Definition, r runner.Runner, opts ...EngineOption) *Engine {
	e := &Engine{
		def:    def,
		runner: r,
		rec:    NewMemoryRecorder(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Definition() *Definition {
	return e.def
}

// Trigger creates a run and executes it to completion.
func (e *Engine) Trigger(ctx context.Context, req TriggerRequest) (Run, error) {
	run, err := e.Prepare(ctx, req)
	if err != nil {
		return Run{}, err
	}
	return e.Execute(ctx, run)
}

// Prepare validates the trigger and records a scheduled run.
func (e *Engine) Prepare(ctx context.Context, req TriggerRequest) (Run, error) {
	params, err := e.def.Merge(req.Params)
	if err != nil {
		return Run{}, err
	}
	logical := req.LogicalDate
	if logical.IsZero() {
		logical = e.now()
	}
	logical = logical.UTC()
	if logical.Before(e.def.StartDate) {
		return Run{}, fmt.Errorf("%w: %s < %s", ErrBeforeStartDate,
			logical.Format(time.RFC3339), e.def.StartDate.Format(time.RFC3339))
	}

	run := Run{
		ID:          uuid.NewString(),
		DagID:       e.def.DagID,
		LogicalDate: logical,
		Params:      params,
		State:       RunScheduled,
		StartedAt:   e.now(),
	}
	if err := e.rec.SaveRun(ctx, run); err != nil {
		return Run{}, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// Execute runs a prepared run. Cancelling ctx stops waiting on the cluster
// and fails the run; the submitted job itself is left alone.
func (e *Engine) Execute(ctx context.Context, run Run) (Run, error) {
	log := logger.From(ctx).With(zap.String("dag_id", run.DagID), zap.String("run_id", run.ID))
	ctx = logger.With(ctx, log)
	// bookkeeping outlives cancellation of the run itself
	saveCtx := context.WithoutCancel(ctx)

	run.State = RunRunning
	e.saveRun(saveCtx, run)

	run.ResolvedDate = e.resolve(saveCtx, run)
	e.saveRun(saveCtx, run)
	log.Info("execution date resolved",
		zap.String("nominal_date", NominalDate(run.LogicalDate)),
		zap.String("resolved_date", run.ResolvedDate))

	err := e.submit(ctx, run, run.ResolvedDate)

	run.FinishedAt = e.now()
	run.State = RunSucceeded
	if err != nil {
		run.State = RunFailed
		run.Error = err.Error()
	}
	e.saveRun(saveCtx, run)
	e.metrics.RunFinished(run.DagID, string(run.State), run.FinishedAt.Sub(run.StartedAt))

	if err != nil {
		log.Error("run failed", zap.Error(err))
		return run, fmt.Errorf("run %s: %w", run.ID, err)
	}
	log.Info("run succeeded")
	return run, nil
}

func (e *Engine) resolve(ctx context.Context, run Run) string {
	ti := TaskInstance{RunID: run.ID, TaskID: ResolverTask, Try: 1, State: TaskRunning, StartedAt: e.now()}
	e.saveTask(ctx, ti)

	resolved := ResolveDate(NominalDate(run.LogicalDate), run.Params)

	ti.State = TaskSuccess
	ti.ReturnValue = resolved
	ti.FinishedAt = e.now()
	e.saveTask(ctx, ti)
	e.metrics.TaskAttempt(run.DagID, ResolverTask, string(TaskSuccess))
	return resolved
}

func (e *Engine) submit(ctx context.Context, run Run, resolved string) error {
	saveCtx := context.WithoutCancel(ctx)
	args := e.def.DefaultArgs
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(args.RetryDelay), uint64(args.Retries)), ctx)

	var last TaskInstance
	try := 0
	operation := func() error {
		try++
		log := logger.From(ctx).With(zap.String("task_id", SubmitTask), zap.Int("try", try))
		ti := TaskInstance{RunID: run.ID, TaskID: SubmitTask, Try: try, State: TaskRunning, StartedAt: e.now()}
		e.saveTask(saveCtx, ti)

		res, err := e.runner.SubmitJob(logger.With(ctx, log), runner.JobRequest{
			DagID:             run.DagID,
			RunID:             run.ID,
			TaskID:            SubmitTask,
			Try:               try,
			Cluster:           e.def.Cluster,
			MainPythonFileURI: e.def.MainPythonFileURI,
			Args:              []string{runner.DateArg(resolved)},
			Labels: map[string]string{
				"dag_id":  run.DagID,
				"task_id": SubmitTask,
				"run_id":  run.ID,
			},
		})
		ti.JobID = res.JobID
		ti.FinishedAt = e.now()
		if err == nil {
			ti.State = TaskSuccess
			e.saveTask(saveCtx, ti)
			e.metrics.TaskAttempt(run.DagID, SubmitTask, string(TaskSuccess))
			log.Info("job finished", zap.String("job_id", res.JobID), zap.String("driver_output", res.DriverOutputURI))
			return nil
		}

		ti.Error = err.Error()
		permanent := runner.IsPermanent(err)
		ti.State = TaskFailed
		if !permanent && try <= args.Retries {
			ti.State = TaskUpForRetry
		}
		e.saveTask(saveCtx, ti)
		e.metrics.TaskAttempt(run.DagID, SubmitTask, string(ti.State))
		last = ti

		if permanent {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.From(ctx).Warn("submit failed, retrying",
			zap.String("task_id", SubmitTask), zap.Int("try", try), zap.Duration("retry_in", next), zap.Error(err))
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil && last.State == TaskUpForRetry {
		// cancelled while waiting for the retry
		last.State = TaskFailed
		last.Error = err.Error()
		e.saveTask(saveCtx, last)
	}
	return err
}

func (e *Engine) Get(ctx context.Context, id string) (Run, []TaskInstance, error) {
	return e.rec.GetRun(ctx, id)
}

func (e *Engine) List(ctx context.Context, limit int) ([]Run, error) {
	return e.rec.ListRuns(ctx, limit)
}

func (e *Engine) saveRun(ctx context.Context, run Run) {
	if err := e.rec.SaveRun(ctx, run); err != nil {
		logger.From(ctx).Error("record run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (e *Engine) saveTask(ctx context.Context, ti TaskInstance) {
	if err := e.rec.SaveTask(ctx, ti); err != nil {
		logger.From(ctx).Error("record task instance",
			zap.String("run_id", ti.RunID), zap.String("task_id", ti.TaskID), zap.Error(err))
	}
}
