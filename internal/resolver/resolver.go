// Package resolver turns a finished job id into retrievable artifact URLs.
package resolver

import (
	"context"
	"errors"
	"strings"

	"comfyremote/internal/comfy"
	"comfyremote/internal/infra"
)

// Source is the subset of the ComfyUI client the resolver needs.
type Source interface {
	History(ctx context.Context, promptID string) (*comfy.HistoryEntry, error)
	ViewURL(ref comfy.ImageRef) string
	FallbackURL() string
}

// Resolution is the detailed result of a lookup.
type Resolution struct {
	URLs     []string
	Images   []comfy.ImageRef
	Fallback bool
}

type Resolver struct {
	source Source
	logger *infra.Logger
}

func New(source Source, logger *infra.Logger) *Resolver {
	return &Resolver{source: source, logger: infra.OrDiscard(logger)}
}

// Resolve returns one URL per output image of the job. It never fails: when
// the record cannot be read or holds no images, the well-known latest
// artifact URL is returned instead.
func (r *Resolver) Resolve(ctx context.Context, jobID string) []string {
	return r.Lookup(ctx, jobID).URLs
}

// Lookup is Resolve with the image descriptors and a fallback marker.
func (r *Resolver) Lookup(ctx context.Context, jobID string) Resolution {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return r.fallback(jobID, "empty job id")
	}
	entry, err := r.source.History(ctx, jobID)
	switch {
	case errors.Is(err, comfy.ErrHistoryNotFound):
		return r.fallback(jobID, "no history record")
	case err != nil:
		r.logger.Warn().Err(err).Str("job_id", jobID).Msg("resolver: history lookup failed")
		return r.fallback(jobID, "history lookup failed")
	}

	images := entry.FirstImages()
	if len(images) == 0 {
		return r.fallback(jobID, "record has no images")
	}
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, r.source.ViewURL(img))
	}
	return Resolution{URLs: urls, Images: images}
}

func (r *Resolver) fallback(jobID, reason string) Resolution {
	r.logger.Info().Str("job_id", jobID).Str("reason", reason).Msg("resolver: using latest artifact")
	return Resolution{
		URLs:     []string{r.source.FallbackURL()},
		Images:   []comfy.ImageRef{{Filename: comfy.FallbackFilename, Type: "output"}},
		Fallback: true,
	}
}
