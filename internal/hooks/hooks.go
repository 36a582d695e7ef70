// Package hooks implements the urlwatch hook contract: job processing and
// filtering before a check, report processing after it.
package hooks

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/watchhook/watchhook/internal/config"
	"github.com/watchhook/watchhook/internal/metrics"
	"github.com/watchhook/watchhook/internal/notify"
	"github.com/watchhook/watchhook/internal/screenshot"
	"github.com/watchhook/watchhook/internal/watch"
)

// Dispatcher sends a detected change to the notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, job watch.Job, report watch.Report) []notify.Result
}

// Hooks bundles the collaborators the hook functions need.
type Hooks struct {
	cfg        *config.Config
	dispatcher Dispatcher
	capturer   screenshot.Capturer
	now        func() time.Time
	log        zerolog.Logger
}

// Option customises Hooks.
type Option func(*Hooks)

// WithClock overrides the wall clock used by the job filter.
func WithClock(now func() time.Time) Option {
	return func(h *Hooks) { h.now = now }
}

// New returns Hooks for cfg. dispatcher and capturer may be nil, in which
// case changes are only logged.
func New(cfg *config.Config, dispatcher Dispatcher, capturer screenshot.Capturer, log zerolog.Logger, opts ...Option) *Hooks {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	h := &Hooks{
		cfg:        cfg,
		dispatcher: dispatcher,
		capturer:   capturer,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessJob runs before a job is checked and returns the job to use. The
// job is returned unchanged.
func (h *Hooks) ProcessJob(job watch.Job, _ watch.JobState) watch.Job {
	h.log.Info().Str("job", job.DisplayName()).Msgf("Processing job: %s", job.DisplayName())
	return job
}

// FilterJob reports whether the job should be checked now.
func (h *Hooks) FilterJob(job watch.Job, _ watch.JobState) bool {
	return h.ShouldProcess(job, h.now().Hour())
}

// ShouldProcess returns false while hour is inside the maintenance window.
// The job does not take part in the decision.
func (h *Hooks) ShouldProcess(job watch.Job, hour int) bool {
	if h.cfg.Maintenance.Contains(hour) {
		metrics.IncMaintenanceSkip()
		h.log.Info().Str("job", job.DisplayName()).Int("hour", hour).
			Msgf("Skipping %s during maintenance hours", job.DisplayName())
		return false
	}
	return true
}

// ProcessReport runs after a job was checked. Errors are logged; changes are
// dispatched to the notification channels and, for jobs with screenshot set,
// handed to the screenshot capturer.
func (h *Hooks) ProcessReport(ctx context.Context, job watch.Job, _ watch.JobState, report watch.Report) {
	name := job.DisplayName()
	if report.Failed() {
		metrics.IncCheckError()
		h.log.Error().Str("job", name).Str("cause", report.Error).Msgf("Error checking %s: %s", name, report.Error)
		return
	}
	if !report.Changed {
		return
	}

	metrics.IncChange()
	h.log.Info().Str("job", name).Msgf("Change detected for %s", name)
	if h.dispatcher != nil {
		h.dispatcher.Dispatch(ctx, job, report)
	}
	if job.Screenshot {
		screenshot.Trigger(ctx, h.capturer, job, h.log)
	}
}
