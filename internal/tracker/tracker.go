// Package tracker infers the status of a job running on a ComfyUI-style
// queue. The service only reports which prompts are running or pending, so
// the tracker samples the queue on a fixed interval and applies a
// CompletionPolicy to decide when a job that left the queue is done.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"comfyremote/internal/comfy"
	"comfyremote/internal/i18n"
	"comfyremote/internal/infra"
)

const (
	DefaultInterval           = 1500 * time.Millisecond
	DefaultMaxAttempts        = 300
	DefaultQueueWaitCeiling   = 180 * time.Second
	DefaultPreparationCeiling = 60 * time.Second
	DefaultErrorThreshold     = 5
	DefaultCorroborateAfter   = 10
)

// SignalAttemptCap marks an outcome reached by exhausting the attempt cap.
const SignalAttemptCap Signal = "attempt_cap"

// ErrAlreadyStarted is returned when Run is called on a tracker twice.
var ErrAlreadyStarted = errors.New("tracker: already started")

// QueueSource reads queue snapshots.
type QueueSource interface {
	Queue(ctx context.Context) (comfy.QueueSnapshot, error)
}

// HistorySource reads a job's result record.
type HistorySource interface {
	History(ctx context.Context, promptID string) (*comfy.HistoryEntry, error)
}

// Config holds the polling limits. Zero values take the defaults.
type Config struct {
	Interval           time.Duration
	MaxAttempts        int
	QueueWaitCeiling   time.Duration
	PreparationCeiling time.Duration
	ErrorThreshold     int
	// CorroborateAfter is the attempt after which every cycle re-reads the
	// queue to confirm completion while other jobs run.
	CorroborateAfter int
}

// DefaultConfig returns the stock limits: 1.5s interval, 300 attempts.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.QueueWaitCeiling <= 0 {
		c.QueueWaitCeiling = DefaultQueueWaitCeiling
	}
	if c.PreparationCeiling <= 0 {
		c.PreparationCeiling = DefaultPreparationCeiling
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = DefaultErrorThreshold
	}
	if c.CorroborateAfter <= 0 {
		c.CorroborateAfter = DefaultCorroborateAfter
	}
	return c
}

// Options wires the tracker's collaborators.
type Options struct {
	Config   Config
	History  HistorySource
	Policy   CompletionPolicy
	Reporter Reporter
	Clock    Clock
	Logger   *infra.Logger
	Locale   language.Tag
}

// Outcome is the terminal result of Run.
type Outcome struct {
	State  JobState
	Reason Signal
	Job    Job
}

// Tracker follows exactly one job. It is the only writer of that job's
// state; Job returns copies for readers.
type Tracker struct {
	cfg      Config
	queue    QueueSource
	history  HistorySource
	policy   CompletionPolicy
	reporter Reporter
	clock    Clock
	logger   *infra.Logger
	locale   language.Tag

	mu      sync.RWMutex
	job     Job
	percent float64
	started bool

	forceRecheck bool
}

// New creates a tracker for a job submitted at submittedAt.
func New(jobID string, submittedAt time.Time, queue QueueSource, opts Options) (*Tracker, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("tracker: job id required")
	}
	if queue == nil {
		return nil, errors.New("tracker: queue source required")
	}
	policy := opts.Policy
	if policy == nil {
		policy = NewHeuristicPolicy(DefaultCompletionGrace)
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	if submittedAt.IsZero() {
		submittedAt = clock.Now()
	}
	logger := infra.OrDiscard(opts.Logger)
	locale := opts.Locale
	if locale == language.Und {
		locale = i18n.Default
	}
	return &Tracker{
		cfg:      opts.Config.withDefaults(),
		queue:    queue,
		history:  opts.History,
		policy:   policy,
		reporter: opts.Reporter,
		clock:    clock,
		logger:   logger,
		locale:   locale,
		job: Job{
			ID:          jobID,
			SubmittedAt: submittedAt,
			State:       Queued(0),
		},
	}, nil
}

// Job returns a copy of the tracked job.
func (t *Tracker) Job() Job {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job.clone()
}

// Run polls until the job reaches a terminal state or ctx is cancelled.
// Cycles never overlap: the next wait starts after the previous round trip.
// Cancelling ctx is the explicit way to stop polling early.
func (t *Tracker) Run(ctx context.Context) (Outcome, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return Outcome{}, ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	t.logger.Debug().
		Str("job_id", t.job.ID).
		Str("policy", t.policy.Name()).
		Dur("interval", t.cfg.Interval).
		Int("max_attempts", t.cfg.MaxAttempts).
		Msg("tracker: started")

	for {
		select {
		case <-ctx.Done():
			return t.outcome(""), ctx.Err()
		case <-t.clock.After(t.cfg.Interval):
		}
		if err := ctx.Err(); err != nil {
			return t.outcome(""), err
		}
		reason, done, err := t.cycle(ctx)
		if err != nil {
			return t.outcome(""), err
		}
		if done {
			out := t.outcome(reason)
			t.logger.Info().
				Str("job_id", out.Job.ID).
				Str("state", out.State.String()).
				Str("reason", string(reason)).
				Int("attempts", out.Job.Attempts).
				Msg("tracker: finished")
			return out, nil
		}
	}
}

func (t *Tracker) cycle(ctx context.Context) (Signal, bool, error) {
	t.mu.Lock()
	t.job.Attempts++
	attempt := t.job.Attempts
	t.mu.Unlock()

	if t.forceRecheck {
		t.forceRecheck = false
		if done := t.recheckHistory(ctx); done {
			return SignalHistoryRecord, true, nil
		}
	}

	snap, err := t.queue.Queue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if reason, done := t.onPollError(err); done {
			return reason, true, nil
		}
	} else if reason, done := t.observe(snap); done {
		return reason, true, nil
	}

	if attempt > t.cfg.CorroborateAfter {
		if done := t.corroborate(ctx); done {
			return SignalCorroborated, true, nil
		}
	}

	if attempt >= t.cfg.MaxAttempts {
		t.transition(JobState{Phase: PhaseTimedOut})
		return SignalAttemptCap, true, nil
	}
	return "", false, nil
}

func (t *Tracker) observe(snap comfy.QueueSnapshot) (Signal, bool) {
	now := t.clock.Now()
	id := t.job.ID

	t.mu.Lock()
	t.job.ConsecutiveErrors = 0
	t.mu.Unlock()

	if snap.IsRunning(id) {
		t.mu.Lock()
		t.job.PreparingSince = nil
		t.mu.Unlock()
		t.transition(JobState{Phase: PhaseRunning})
		return "", false
	}

	if idx := snap.PendingIndex(id); idx >= 0 {
		t.transition(Queued(idx + 1))
		if now.Sub(t.job.SubmittedAt) > t.cfg.QueueWaitCeiling {
			t.mu.Lock()
			t.job.PreparingSince = nil
			t.job.ConsecutiveErrors = t.cfg.ErrorThreshold
			t.mu.Unlock()
			t.forceRecheck = true
			t.logger.Debug().Str("job_id", id).Msg("tracker: queue wait ceiling passed, forcing completion check")
		}
		return "", false
	}

	if snap.Busy() {
		t.transition(JobState{Phase: PhasePreparing})
		t.mu.Lock()
		if t.job.PreparingSince == nil {
			since := now
			t.job.PreparingSince = &since
		} else if now.Sub(*t.job.PreparingSince) > t.cfg.PreparationCeiling {
			t.job.PreparingSince = nil
			t.job.ConsecutiveErrors = 0
			t.logger.Debug().Str("job_id", id).Msg("tracker: preparation window expired, re-evaluating")
		}
		t.mu.Unlock()
		return "", false
	}

	return t.decide(Evidence{Signal: SignalQueueDrained, Elapsed: now.Sub(t.job.SubmittedAt)})
}

func (t *Tracker) onPollError(err error) (Signal, bool) {
	t.mu.Lock()
	t.job.ConsecutiveErrors++
	count := t.job.ConsecutiveErrors
	t.mu.Unlock()

	t.logger.Warn().Err(err).
		Str("job_id", t.job.ID).
		Int("consecutive_errors", count).
		Msg("tracker: queue poll failed")

	if count <= t.cfg.ErrorThreshold {
		return "", false
	}
	return t.decide(Evidence{Signal: SignalErrorsExhausted, Elapsed: t.clock.Now().Sub(t.job.SubmittedAt)})
}

func (t *Tracker) corroborate(ctx context.Context) bool {
	snap, err := t.queue.Queue(ctx)
	if err != nil {
		t.logger.Debug().Err(err).Str("job_id", t.job.ID).Msg("tracker: corroboration poll failed")
		return false
	}
	if len(snap.Running) == 0 || snap.Contains(t.job.ID) {
		return false
	}
	_, done := t.decide(Evidence{Signal: SignalCorroborated, Elapsed: t.clock.Now().Sub(t.job.SubmittedAt)})
	return done
}

func (t *Tracker) recheckHistory(ctx context.Context) bool {
	if t.history == nil {
		return false
	}
	record, err := t.history.History(ctx, t.job.ID)
	if err != nil && !errors.Is(err, comfy.ErrHistoryNotFound) {
		t.logger.Debug().Err(err).Str("job_id", t.job.ID).Msg("tracker: history re-check failed")
		return false
	}
	_, done := t.decide(Evidence{Signal: SignalHistoryRecord, Elapsed: t.clock.Now().Sub(t.job.SubmittedAt), Record: record})
	return done
}

func (t *Tracker) decide(ev Evidence) (Signal, bool) {
	ev.Job = t.Job()
	phase := t.policy.Decide(ev)
	switch phase {
	case PhaseCompleted, PhaseFailed:
		t.transition(JobState{Phase: phase})
		return ev.Signal, true
	case "":
		return "", false
	default:
		t.logger.Warn().
			Str("policy", t.policy.Name()).
			Str("phase", string(phase)).
			Msg("tracker: policy returned unsupported phase, ignoring")
		return "", false
	}
}

// transition applies a new state and publishes exactly one event when it
// differs from the current one.
func (t *Tracker) transition(next JobState) {
	t.mu.Lock()
	if t.job.State.Equal(next) {
		t.mu.Unlock()
		return
	}
	t.job.State = next
	t.percent = percentFor(next.Phase, t.percent)
	ev := Event{
		JobID:      t.job.ID,
		State:      t.job.clone().State,
		Percent:    t.percent,
		StatusText: t.statusText(next),
		At:         t.clock.Now(),
	}
	t.mu.Unlock()

	if next.Phase == PhaseCompleted {
		step, total := DoneStep, DoneTotalSteps
		ev.CurrentStep = &step
		ev.TotalSteps = &total
	}
	t.publish(ev)
}

func (t *Tracker) statusText(s JobState) string {
	if s.Phase == PhaseQueued && s.Position != nil {
		return i18n.QueuedAt(t.locale, *s.Position)
	}
	return i18n.Text(t.locale, string(s.Phase))
}

func (t *Tracker) publish(ev Event) {
	if t.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().
				Str("job_id", ev.JobID).
				Str("panic", fmt.Sprint(r)).
				Msg("tracker: reporter panicked")
		}
	}()
	t.reporter.Report(ev)
}

func (t *Tracker) outcome(reason Signal) Outcome {
	job := t.Job()
	return Outcome{State: job.State, Reason: reason, Job: job}
}
