package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SyneHQ/backfill/logger"
	"github.com/SyneHQ/backfill/workflow"
)

// Reload runs at startup: it fails runs a previous process left unfinished
// and registers the workflow schedule, if the definition has one.
func (s *BackfillServer) Reload(ctx context.Context) error {
	log := logger.From(ctx)
	if s.store != nil {
		n, err := s.store.MarkInterrupted(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("mark interrupted runs: %w", err)
		}
		if n > 0 {
			log.Warn("failed runs interrupted by restart", zap.Int64("runs", n))
		}
	}

	def := s.engine.Definition()
	if s.sched == nil || def.Schedule == "" {
		return nil
	}
	err := s.sched.Schedule(def.DagID, def.Schedule, func(c context.Context, tick time.Time) {
		// scheduled runs use the declared param defaults
		if _, err := s.engine.Trigger(c, workflow.TriggerRequest{LogicalDate: tick}); err != nil {
			logger.From(c).Error("scheduled run failed", zap.Time("logical_date", tick), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", def.DagID, err)
	}
	next, _ := s.sched.Next(def.DagID)
	log.Info("workflow scheduled", zap.String("schedule", def.Schedule), zap.Time("next", next))
	return nil
}
