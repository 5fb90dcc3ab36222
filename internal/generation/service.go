// Package generation runs a text-to-image job end to end: build the graph,
// submit it, track it to a terminal state, resolve the output URLs and log
// the result.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/language"

	"comfyremote/internal/comfy"
	"comfyremote/internal/history"
	"comfyremote/internal/i18n"
	"comfyremote/internal/infra"
	"comfyremote/internal/resolver"
	"comfyremote/internal/storage"
	"comfyremote/internal/tracker"
	"comfyremote/internal/workflow"
)

var (
	// ErrInvalidRequest matches every request validation failure.
	ErrInvalidRequest = workflow.ErrInvalidRequest
	// ErrUnknownJob is returned for job ids this service never started.
	ErrUnknownJob = errors.New("generation: unknown job")
	// ErrNotFinished is returned when artifacts are requested too early.
	ErrNotFinished = errors.New("generation: job has not finished")
	// ErrShuttingDown rejects new work once Shutdown started.
	ErrShuttingDown = errors.New("generation: service is shutting down")
)

// Backend is the generation service API the pipeline depends on.
type Backend interface {
	tracker.QueueSource
	tracker.HistorySource
	resolver.Source
	Submit(ctx context.Context, graph any) (string, error)
	Download(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Result describes a finished job.
type Result struct {
	JobID      string   `json:"job_id"`
	State      string   `json:"state"`
	ImageURLs  []string `json:"image_urls,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Model      string   `json:"model,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	Fallback   bool     `json:"fallback,omitempty"`
	HistoryID  string   `json:"history_id,omitempty"`
}

// Succeeded reports whether the job completed.
func (r Result) Succeeded() bool {
	return r.State == string(tracker.PhaseCompleted)
}

// Options wires the service's collaborators. Backend is required.
type Options struct {
	Backend   Backend
	Builder   workflow.Builder
	Defaults  workflow.Defaults
	Tracker   tracker.Config
	Policy    tracker.CompletionPolicy
	History   history.Store
	Statuses  *StatusStore
	Artifacts *storage.FileStore
	Clock     tracker.Clock
	Logger    *infra.Logger
}

type Service struct {
	backend   Backend
	builder   workflow.Builder
	defaults  workflow.Defaults
	trackCfg  tracker.Config
	policy    tracker.CompletionPolicy
	history   history.Store
	statuses  *StatusStore
	artifacts *storage.FileStore
	resolver  *resolver.Resolver
	clock     tracker.Clock
	logger    *infra.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("generation: backend is required")
	}
	builder := opts.Builder
	if builder == nil {
		builder = workflow.Default{}
	}
	defaults := opts.Defaults
	if defaults == (workflow.Defaults{}) {
		defaults = workflow.StockDefaults()
	}
	statuses := opts.Statuses
	if statuses == nil {
		statuses = NewStatusStore(0)
	}
	store := opts.History
	if store == nil {
		store = history.NewMemoryStore(history.DefaultLimit)
	}
	clock := opts.Clock
	if clock == nil {
		clock = tracker.SystemClock
	}
	logger := infra.OrDiscard(opts.Logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		backend:   opts.Backend,
		builder:   builder,
		defaults:  defaults,
		trackCfg:  opts.Tracker,
		policy:    opts.Policy,
		history:   store,
		statuses:  statuses,
		artifacts: opts.Artifacts,
		resolver:  resolver.New(opts.Backend, logger),
		clock:     clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Statuses exposes the status store.
func (s *Service) Statuses() *StatusStore { return s.statuses }

// History exposes the history log.
func (s *Service) History() history.Store { return s.history }

// Job is a submitted generation.
type Job struct {
	ID          string
	Params      workflow.Params
	SubmittedAt time.Time
	Locale      language.Tag
}

// Submit validates the request, builds the graph and posts it. Validation
// failures match ErrInvalidRequest; service failures are
// *comfy.SubmissionError.
func (s *Service) Submit(ctx context.Context, req workflow.Request, locale language.Tag) (Job, error) {
	if s.ctx.Err() != nil {
		return Job{}, ErrShuttingDown
	}
	params, err := s.defaults.Params(req)
	if err != nil {
		return Job{}, err
	}
	graph, err := s.builder.Build(params)
	if err != nil {
		return Job{}, fmt.Errorf("generation: build workflow: %w", err)
	}
	submittedAt := s.clock.Now()
	id, err := s.backend.Submit(ctx, graph)
	if err != nil {
		s.logger.Warn().Err(err).Msg("generation: submit failed")
		return Job{}, err
	}
	if locale == language.Und {
		locale = i18n.Default
	}
	s.statuses.Begin(id, locale)
	s.logger.Info().
		Str("job_id", id).
		Int("width", params.Width).
		Int("height", params.Height).
		Int("batch_size", params.BatchSize).
		Msg("generation: submitted")
	return Job{ID: id, Params: params, SubmittedAt: submittedAt, Locale: locale}, nil
}

// Generate submits the request and blocks until the job reaches a terminal
// state. A timed out or failed job is reported through Result.State, not as
// an error.
func (s *Service) Generate(ctx context.Context, req workflow.Request, locale language.Tag) (Result, error) {
	job, err := s.Submit(ctx, req, locale)
	if err != nil {
		return Result{}, err
	}
	return s.follow(ctx, job)
}

// Start submits the request and tracks the job in the background. The
// tracking outlives ctx but stops on Shutdown.
func (s *Service) Start(ctx context.Context, req workflow.Request, locale language.Tag) (Job, error) {
	job, err := s.Submit(ctx, req, locale)
	if err != nil {
		return Job{}, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.follow(s.ctx, job); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: tracking stopped")
		}
	}()
	return job, nil
}

// Wait blocks until every background job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops background tracking and waits for it, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) follow(ctx context.Context, job Job) (Result, error) {
	t, err := tracker.New(job.ID, job.SubmittedAt, s.backend, tracker.Options{
		Config:   s.trackCfg,
		History:  s.backend,
		Policy:   s.policy,
		Reporter: s.statuses,
		Clock:    s.clock,
		Logger:   s.logger,
		Locale:   job.Locale,
	})
	if err != nil {
		s.statuses.Finish(job.ID, nil, err)
		return Result{}, err
	}

	outcome, err := t.Run(ctx)
	if err != nil {
		s.statuses.Finish(job.ID, nil, err)
		return Result{}, err
	}

	result := Result{
		JobID:      job.ID,
		State:      string(outcome.State.Phase),
		Resolution: job.Params.Resolution(),
		Model:      workflow.ModelName(job.Params.Checkpoint),
		DurationMS: s.clock.Now().Sub(job.SubmittedAt).Milliseconds(),
	}
	if outcome.State.Phase != tracker.PhaseCompleted {
		s.statuses.Finish(job.ID, &result, nil)
		return result, nil
	}

	res := s.resolver.Lookup(ctx, job.ID)
	result.ImageURLs = res.URLs
	result.Fallback = res.Fallback

	entry, err := s.history.Add(ctx, history.Entry{
		JobID:          job.ID,
		Prompt:         job.Params.Prompt,
		NegativePrompt: job.Params.NegativePrompt,
		ImageURLs:      res.URLs,
		Resolution:     result.Resolution,
		Model:          result.Model,
		DurationMS:     result.DurationMS,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("generation: record history failed")
	} else {
		result.HistoryID = entry.ID
	}

	s.statuses.Finish(job.ID, &result, nil)
	s.logger.Info().
		Str("job_id", job.ID).
		Int("images", len(result.ImageURLs)).
		Bool("fallback", result.Fallback).
		Int64("duration_ms", result.DurationMS).
		Msg("generation: completed")
	return result, nil
}

// IsSubmissionError reports whether err came from the generation service
// rejecting or not receiving the job.
func IsSubmissionError(err error) bool {
	var subErr *comfy.SubmissionError
	return errors.As(err, &subErr)
}
