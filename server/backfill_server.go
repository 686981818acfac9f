package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/SyneHQ/backfill/logger"
	"github.com/SyneHQ/backfill/scheduler"
	"github.com/SyneHQ/backfill/workflow"
)

const defaultListLimit = 20

// BackfillServer triggers and reports workflow runs. Triggered runs execute
// in the background under the server's base context.
type BackfillServer struct {
	engine *workflow.Engine
	store  *scheduler.Store
	sched  *scheduler.Scheduler
	base   context.Context
	runs   sync.WaitGroup
}

// store and sched are optional.
func NewBackfillServer(base context.Context, engine *workflow.Engine, store *scheduler.Store, sched *scheduler.Scheduler) *BackfillServer {
	return &BackfillServer{engine: engine, store: store, sched: sched, base: base}
}

// TriggerRun starts a run.
//
// Request: {"conf": {"execution_date": "20240101"}, "logical_date": "2024-12-15T00:00:00Z"};
// both fields are optional. Response: the run, see runToStruct.
func (s *BackfillServer) TriggerRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tr, err := triggerRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	run, err := s.engine.Prepare(ctx, tr)
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidParams) || errors.Is(err, workflow.ErrBeforeStartDate) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	logger.From(s.base).Info("run triggered", zap.String("run_id", run.ID), zap.Time("logical_date", run.LogicalDate))
	s.runs.Add(1)
	go s.execute(run)

	return runToStruct(run, nil)
}

func (s *BackfillServer) execute(run workflow.Run) {
	defer s.runs.Done()
	// the outcome is recorded by the engine
	_, _ = s.engine.Execute(s.base, run)
}

// Wait blocks until every triggered run has finished and recorded its final
// state. Cancel the base context first to make in-flight runs fail fast.
func (s *BackfillServer) Wait() {
	s.runs.Wait()
}

// GetRun returns a run and its task instances. Request: {"run_id": "..."}.
func (s *BackfillServer) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["run_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	run, tasks, err := s.engine.Get(ctx, id)
	if errors.Is(err, workflow.ErrRunNotFound) {
		return nil, status.Errorf(codes.NotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return runToStruct(run, tasks)
}

// ListRuns returns the latest runs. Request: {"limit": 20}.
func (s *BackfillServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.engine.List(ctx, limit)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	items := make([]any, 0, len(runs))
	for _, r := range runs {
		items = append(items, runFields(r))
	}
	out, err := structpb.NewStruct(map[string]any{"runs": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func triggerRequest(req *structpb.Struct) (workflow.TriggerRequest, error) {
	var tr workflow.TriggerRequest
	fields := req.GetFields()
	if conf, ok := fields["conf"]; ok {
		if conf.GetStructValue() == nil {
			return tr, fmt.Errorf("conf must be an object")
		}
		tr.Params = workflow.Params(conf.GetStructValue().AsMap())
	}
	if ld, ok := fields["logical_date"]; ok {
		t, err := time.Parse(time.RFC3339, ld.GetStringValue())
		if err != nil {
			return tr, fmt.Errorf("logical_date: %w", err)
		}
		tr.LogicalDate = t
	}
	return tr, nil
}

func runFields(r workflow.Run) map[string]any {
	m := map[string]any{
		"run_id":        r.ID,
		"dag_id":        r.DagID,
		"logical_date":  r.LogicalDate.Format(time.RFC3339),
		"conf":          map[string]any(r.Params),
		"resolved_date": r.ResolvedDate,
		"state":         string(r.State),
		"started_at":    formatTime(r.StartedAt),
		"finished_at":   formatTime(r.FinishedAt),
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

func runToStruct(r workflow.Run, tasks []workflow.TaskInstance) (*structpb.Struct, error) {
	m := runFields(r)
	if tasks != nil {
		list := make([]any, 0, len(tasks))
		for _, ti := range tasks {
			t := map[string]any{
				"task_id":     ti.TaskID,
				"try":         ti.Try,
				"state":       string(ti.State),
				"started_at":  formatTime(ti.StartedAt),
				"finished_at": formatTime(ti.FinishedAt),
			}
			if ti.ReturnValue != "" {
				t["return_value"] = ti.ReturnValue
			}
			if ti.JobID != "" {
				t["job_id"] = ti.JobID
			}
			if ti.Error != "" {
				t["error"] = ti.Error
			}
			list = append(list, t)
		}
		m["tasks"] = list
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
