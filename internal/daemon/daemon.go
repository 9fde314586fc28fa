package daemon

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/config"
	"github.com/DenDanskeSamler/scraperd/internal/env"
	"github.com/DenDanskeSamler/scraperd/internal/history"
	"github.com/DenDanskeSamler/scraperd/internal/metrics"
	"github.com/DenDanskeSamler/scraperd/internal/stage"
	"github.com/DenDanskeSamler/scraperd/internal/status"
)

// Daemon owns the orchestration loop: it runs the configured stages in order,
// publishes the status artifact after every transition, sleeps the configured
// interval between cycles, and drains cooperatively on shutdown. There is a
// single writer of the state document (the loop goroutine); everything
// outside observes it through the published artifact.
type Daemon struct {
	cfg    *config.Config
	runner *stage.Runner
	pub    *status.Publisher
	sink   history.Sink // optional, may be nil
	logger *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
	shutdown atomic.Bool

	// loop-owned state; only touched from Run's goroutine
	doc   status.Document
	cycle int64
}

// New assembles a daemon from resolved configuration. The sink may be nil.
func New(cfg *config.Config, lg *slog.Logger, sink history.Sink) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lg == nil {
		lg = slog.Default()
	}
	e := env.New()
	for _, kv := range cfg.GlobalEnv {
		if k, v, ok := strings.Cut(kv, "="); ok {
			e.Set(k, v)
		}
	}
	return &Daemon{
		cfg:    cfg,
		runner: stage.NewRunner(e, lg),
		pub:    status.NewPublisher(cfg.StatusFile, lg),
		sink:   sink,
		logger: lg,
		quit:   make(chan struct{}),
	}, nil
}

// RequestShutdown latches the shutdown flag and wakes the inter-cycle sleep.
// Safe to call from a signal handler goroutine, repeatedly. Once latched the
// flag never reverts; no new stage or cycle starts afterwards, but an
// in-flight stage always runs to completion.
func (d *Daemon) RequestShutdown() {
	d.shutdown.Store(true)
	d.quitOnce.Do(func() { close(d.quit) })
}

// ShutdownRequested reports whether a termination was observed.
func (d *Daemon) ShutdownRequested() bool { return d.shutdown.Load() }

// StatusFile returns the artifact path the daemon publishes to.
func (d *Daemon) StatusFile() string { return d.pub.Path() }

// Run executes the daemon loop until shutdown is requested: one cycle
// immediately, then repeat every interval. It returns after the final state
// has been published.
func (d *Daemon) Run() error {
	d.logger.Info("scraper daemon starting",
		"stages", len(d.cfg.Stages), "interval", d.cfg.Interval)

	// Initial idle publish so readers see a document before the first cycle.
	now := time.Now()
	d.doc = status.Document{
		Running:         false,
		CycleNumber:     0,
		TotalStages:     len(d.cfg.Stages),
		StagesCompleted: []status.StageResult{},
		NextRunAt:       &now,
	}
	d.publish()

	for {
		// The latch wins any race with the inter-cycle timer: once set,
		// no new cycle may begin.
		if d.ShutdownRequested() {
			break
		}
		d.runCycle()
		if d.ShutdownRequested() {
			break
		}

		next := time.Now().Add(d.cfg.Interval)
		d.doc.NextRunAt = &next
		d.publish()
		d.logger.Info("cycle complete, sleeping", "next_run", next)

		if !d.sleepUntil(next) {
			break
		}
		d.doc.NextRunAt = nil
	}

	d.doc.Running = false
	d.doc.CurrentStage = ""
	d.doc.NextRunAt = nil
	d.publish()
	if d.sink != nil {
		_ = d.sink.Close()
	}
	d.logger.Info("scraper daemon stopped")
	return nil
}

// RunOnce executes exactly one cycle and publishes the final state. Used by
// the one-shot CLI mode.
func (d *Daemon) RunOnce() error {
	d.doc = status.Document{
		TotalStages:     len(d.cfg.Stages),
		StagesCompleted: []status.StageResult{},
	}
	d.runCycle()
	if d.sink != nil {
		_ = d.sink.Close()
	}
	return nil
}

// runCycle runs the configured stages once, in order. A failing stage never
// aborts the cycle; shutdown is honored only at stage boundaries.
func (d *Daemon) runCycle() {
	d.cycle++
	started := time.Now()
	d.doc = status.Document{
		Running:         true,
		CycleNumber:     d.cycle,
		TotalStages:     len(d.cfg.Stages),
		StagesCompleted: []status.StageResult{},
		StartedAt:       &started,
	}
	metrics.SetRunning(true)
	d.publish()
	d.event(history.Event{Type: history.EventCycleStart, CycleNumber: d.cycle})
	d.logger.Info("cycle started", "cycle", d.cycle)

	for _, sp := range d.cfg.Stages {
		if d.ShutdownRequested() {
			d.logger.Info("shutdown requested, stopping cycle before next stage",
				"cycle", d.cycle, "next_stage", sp.Name)
			break
		}
		d.doc.CurrentStage = sp.Name
		d.publish()
		d.event(history.Event{Type: history.EventStageStart, CycleNumber: d.cycle, Stage: sp.Name})

		res := d.runner.Run(sp)

		metrics.IncStageRun(sp.Name)
		metrics.ObserveStageDuration(sp.Name, res.Duration.Seconds())
		if res.Failed() {
			metrics.IncStageFailure(sp.Name)
		}
		d.doc.StagesCompleted = append(d.doc.StagesCompleted, status.FromResult(res))
		d.doc.CurrentStage = ""
		d.publish()
		exit := res.ExitCode
		d.event(history.Event{
			Type: history.EventStageEnd, CycleNumber: d.cycle, Stage: sp.Name,
			ExitCode: &exit, DurationSeconds: res.Duration.Seconds(),
		})
	}

	finished := time.Now()
	d.doc.Running = false
	d.doc.CurrentStage = ""
	d.doc.FinishedAt = &finished
	metrics.SetRunning(false)
	metrics.IncCycle()
	metrics.ObserveCycleDuration(finished.Sub(started).Seconds())
	d.publish()
	d.event(history.Event{Type: history.EventCycleEnd, CycleNumber: d.cycle})
	d.logger.Info("cycle finished", "cycle", d.cycle,
		"stages_run", len(d.doc.StagesCompleted), "duration", finished.Sub(started))
}

// sleepUntil blocks until the deadline or until shutdown, whichever first.
// Returns false when woken by shutdown.
func (d *Daemon) sleepUntil(deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return !d.ShutdownRequested()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.quit:
		return false
	}
}

func (d *Daemon) publish() {
	d.doc.ShutdownRequested = d.ShutdownRequested()
	d.pub.Publish(d.doc.Clone())
}

// event forwards one transition to the history sink, best effort. Sink
// failures only degrade the audit trail, never the pipeline.
func (d *Daemon) event(e history.Event) {
	if d.sink == nil {
		return
	}
	e.OccurredAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.sink.Send(ctx, e); err != nil {
		d.logger.Warn("history sink send failed", "type", string(e.Type), "error", err)
	}
}
