package workflow

import (
	"context"
	"sort"
	"sync"
)

// MemoryRecorder keeps run state in process memory. It is used when no
// store is configured.
type MemoryRecorder struct {
	mu    sync.RWMutex
	runs  map[string]Run
	tasks map[string][]TaskInstance
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		runs:  make(map[string]Run),
		tasks: make(map[string][]TaskInstance),
	}
}

func (m *MemoryRecorder) SaveRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.Params = cloneParams(run.Params)
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryRecorder) SaveTask(_ context.Context, ti TaskInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.tasks[ti.RunID]
	for i := range list {
		if list[i].TaskID == ti.TaskID && list[i].Try == ti.Try {
			list[i] = ti
			return nil
		}
	}
	m.tasks[ti.RunID] = append(list, ti)
	return nil
}

func (m *MemoryRecorder) GetRun(_ context.Context, id string) (Run, []TaskInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, nil, ErrRunNotFound
	}
	run.Params = cloneParams(run.Params)
	tasks := make([]TaskInstance, len(m.tasks[id]))
	copy(tasks, m.tasks[id])
	return run, tasks, nil
}

// ListRuns returns the most recently started runs first.
func (m *MemoryRecorder) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		r.Params = cloneParams(r.Params)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneParams(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
