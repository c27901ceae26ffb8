package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TokenSentinel/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a background task the runner schedules next to the heartbeat.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Runner polls the heartbeat and runs auxiliary jobs on cron schedules.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewRunner creates a Runner. Jobs started by it observe ctx.
func NewRunner(ctx context.Context) *Runner {
	ctx, cancel := context.WithCancel(ctx)
	log := logger.GetForComponent("runner")
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.PrintfLogger(&log)),
		)),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// RegisterHeartbeat polls hb on spec, e.g. "@every 1m".
func (r *Runner) RegisterHeartbeat(spec string, hb *Heartbeat) error {
	return r.Register(Job{
		Name: "heartbeat",
		Spec: spec,
		Run: func(ctx context.Context) error {
			_, _, err := hb.Beat(ctx)
			return err
		},
	})
}

// BeatNow runs one forced beat of hb in the background. Stop waits for it.
func (r *Runner) BeatNow(hb *Heartbeat) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		rec, ran, err := hb.BeatNow(r.ctx)
		switch {
		case err != nil:
			r.log.Error().Err(err).Msg("forced beat failed")
		case !ran:
			r.log.Info().Msg("forced beat skipped, another beat in flight")
		default:
			r.log.Info().Str("outcome", rec.Outcome).Time("next_at", rec.NextAt).Msg("forced beat finished")
		}
	}()
}

// Register adds a job.
func (r *Runner) Register(j Job) error {
	_, err := r.cron.AddFunc(j.Spec, func() {
		ctx := r.ctx
		if j.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, j.Timeout)
			defer cancel()
		}
		if err := j.Run(ctx); err != nil {
			r.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register %s job: %w", j.Name, err)
	}
	r.log.Info().Str("job", j.Name).Str("spec", j.Spec).Msg("job registered")
	return nil
}

// Start starts the cron scheduler.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info().Msg("runner started")
}

// Stop cancels running jobs and waits for them to return.
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
	r.log.Info().Msg("runner stopped")
}
