/*
scheduler.go - Background schedule generation

PURPOSE:
  Periodically runs a skip-existing generation pass over all accounts so the
  rolling window keeps tracking the current date: as months pass, new
  occurrences fall inside the horizon and get materialized without any user
  action.

DESIGN:
  - cron-driven (robfig/cron), schedule expression from config
  - each tick is one Materializer.GenerateAll pass
  - skip-existing only; the scheduler never regenerates

SEE ALSO:
  - schedule/materialize.go: GenerateAll
  - config/config.go: cron expression
*/
package api

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/bill-engine/schedule"
)

// GenerationScheduler runs periodic generation passes.
type GenerationScheduler struct {
	Mat  *schedule.Materializer
	Log  *logrus.Logger
	Spec string // cron expression, e.g. "@hourly"

	cron *cron.Cron
}

// NewGenerationScheduler creates a scheduler with the given cron spec.
func NewGenerationScheduler(mat *schedule.Materializer, spec string, log *logrus.Logger) *GenerationScheduler {
	return &GenerationScheduler{Mat: mat, Log: log, Spec: spec}
}

// Start registers the cron entry and begins ticking. An immediate pass runs
// first so a freshly started server catches up before the first tick.
func (gs *GenerationScheduler) Start() error {
	gs.RunNow()

	gs.cron = cron.New()
	if _, err := gs.cron.AddFunc(gs.Spec, gs.RunNow); err != nil {
		return err
	}
	gs.cron.Start()

	gs.Log.WithField("spec", gs.Spec).Info("generation scheduler started")
	return nil
}

// Stop stops the scheduler, waiting for a running pass to finish.
func (gs *GenerationScheduler) Stop() {
	if gs.cron != nil {
		ctx := gs.cron.Stop()
		<-ctx.Done()
		gs.Log.Info("generation scheduler stopped")
	}
}

// RunNow triggers one pass (also used by tests and admin tooling).
func (gs *GenerationScheduler) RunNow() {
	sum, err := gs.Mat.GenerateAll(context.Background())
	if err != nil {
		gs.Log.WithError(err).Error("generation pass failed")
		return
	}
	if sum.Created > 0 || sum.Failed > 0 {
		gs.Log.WithFields(logrus.Fields{
			"accounts": sum.Accounts,
			"created":  sum.Created,
			"skipped":  sum.Skipped,
			"failed":   sum.Failed,
		}).Info("generation pass completed")
	}
}
