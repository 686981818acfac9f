package scheduler

import (
	"context"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"
)

// JobFunc receives the time the schedule fired.
type JobFunc func(ctx context.Context, tick time.Time)

type Scheduler struct {
	mu      sync.Mutex
	ctx     context.Context
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// parser accepts both five-field specs and six-field specs with seconds,
// plus descriptors such as @daily.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New starts a UTC cron loop. Jobs receive ctx; only ticks after New are
// fired, missed ticks are never caught up.
func New(ctx context.Context) *Scheduler {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC))
	c.Start()
	return &Scheduler{ctx: ctx, cron: c, entries: map[string]cron.EntryID{}}
}

func Validate(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// Schedule registers fn under name, replacing any previous entry.
func (s *Scheduler) Schedule(name string, spec string, fn JobFunc) error {
	sched, err := parser.Parse(spec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	// cron fires on whole seconds; truncating drops the dispatch latency
	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		fn(s.ctx, time.Now().UTC().Truncate(time.Second))
	}))
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Next reports when name fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Stop halts the loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
