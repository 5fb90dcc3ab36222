package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"comfyremote/internal/generation"
	"comfyremote/internal/middleware"
	"comfyremote/internal/workflow"
	"comfyremote/pkg/zip"
)

const (
	maxRequestBody = 64 << 10
	maxStatusWait  = 60 * time.Second
)

type generationAccepted struct {
	JobID  string            `json:"job_id"`
	Status generation.Status `json:"status"`
}

// CreateGeneration validates and submits a job, then tracks it in the
// background. It answers 202 as soon as the service accepted the job.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req workflow.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	job, err := a.Generations.Start(r.Context(), req, locale)
	if err != nil {
		a.startError(w, err)
		return
	}
	a.Logger.Info().
		Str("job_id", job.ID).
		Str("locale", locale.String()).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("generations: accepted")
	status, _ := a.Generations.Statuses().Get(job.ID)
	w.Header().Set("Location", "/v1/generations/"+job.ID)
	a.json(w, http.StatusAccepted, generationAccepted{JobID: job.ID, Status: status})
}

func (a *App) startError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generation.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case generation.IsSubmissionError(err):
		a.Logger.Warn().Err(err).Msg("generations: submission rejected")
		a.error(w, http.StatusBadGateway, "submission_failed", "the generation service did not accept the job")
	case errors.Is(err, generation.ErrShuttingDown):
		a.error(w, http.StatusServiceUnavailable, "unavailable", "service is shutting down")
	default:
		a.Logger.Error().Err(err).Msg("generations: start failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start generation")
	}
}

// GetGeneration returns the latest status. With ?wait=<duration> it holds
// the request until the status changes, the job finishes or the wait ends.
func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	statuses := a.Generations.Statuses()
	current, ok := statuses.Get(jobID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown job")
		return
	}

	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if wait == 0 || !current.IsGenerating {
		a.json(w, http.StatusOK, current)
		return
	}

	updates, cancel := statuses.Subscribe(jobID)
	defer cancel()
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case st, open := <-updates:
			if !open {
				if final, ok := statuses.Get(jobID); ok {
					current = final
				}
				a.json(w, http.StatusOK, current)
				return
			}
			if !st.UpdatedAt.Equal(current.UpdatedAt) || st.State != current.State {
				a.json(w, http.StatusOK, st)
				return
			}
		case <-timer.C:
			a.json(w, http.StatusOK, current)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("wait must be a positive duration such as 10s")
	}
	if d > maxStatusWait {
		d = maxStatusWait
	}
	return d, nil
}

// DownloadGeneration streams every output image of a finished job as a zip.
func (a *App) DownloadGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	assets, err := a.Generations.Artifacts(r.Context(), jobID)
	switch {
	case errors.Is(err, generation.ErrUnknownJob):
		a.error(w, http.StatusNotFound, "not_found", "unknown job")
		return
	case errors.Is(err, generation.ErrNotFinished):
		a.error(w, http.StatusConflict, "not_finished", "job has no finished images yet")
		return
	case err != nil:
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("generations: artifact download failed")
		a.error(w, http.StatusBadGateway, "download_failed", "failed to fetch images")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "generation-"+jobID+".zip"))
	if err := zip.Write(w, assets, a.Now()); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("generations: write zip failed")
	}
}
