package workflow

import (
	"context"
	"errors"
	"time"
)

var ErrRunNotFound = errors.New("run not found")

type RunState string

const (
	RunScheduled RunState = "scheduled"
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
)

type TaskState string

const (
	TaskScheduled  TaskState = "scheduled"
	TaskRunning    TaskState = "running"
	TaskUpForRetry TaskState = "up_for_retry"
	TaskSuccess    TaskState = "success"
	TaskFailed     TaskState = "failed"
)

type Run struct {
	ID           string
	DagID        string
	LogicalDate  time.Time
	Params       Params
	ResolvedDate string
	State        RunState
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// TaskInstance is one try of one step.
type TaskInstance struct {
	RunID       string
	TaskID      string
	Try         int
	State       TaskState
	ReturnValue string
	JobID       string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Recorder persists run and task state. Implementations must be safe for
// concurrent use by independent runs.
type Recorder interface {
	SaveRun(ctx context.Context, run Run) error
	SaveTask(ctx context.Context, ti TaskInstance) error
	GetRun(ctx context.Context, id string) (Run, []TaskInstance, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
