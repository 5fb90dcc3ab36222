package generation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"comfyremote/internal/storage"
	"comfyremote/pkg/zip"
)

// imageURLs finds the artifact URLs of a finished job, from the live status
// store first and the history log second.
func (s *Service) imageURLs(ctx context.Context, jobID string) ([]string, error) {
	if st, ok := s.statuses.Get(jobID); ok {
		if st.IsGenerating {
			return nil, ErrNotFinished
		}
		if st.Result == nil || !st.Result.Succeeded() {
			return nil, fmt.Errorf("%w: state %s", ErrNotFinished, st.State)
		}
		return st.Result.ImageURLs, nil
	}
	entries, err := s.history.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.JobID == jobID {
			return e.ImageURLs, nil
		}
	}
	return nil, ErrUnknownJob
}

// Artifacts downloads every output image of a finished job. Images are
// served from the local cache when one is configured.
func (s *Service) Artifacts(ctx context.Context, jobID string) ([]zip.Asset, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, ErrUnknownJob
	}
	urls, err := s.imageURLs(ctx, jobID)
	if err != nil {
		return nil, err
	}

	assets := make([]zip.Asset, 0, len(urls))
	for i, raw := range urls {
		name := artifactName(raw, i)
		key := storage.Key(jobID, fmt.Sprintf("%02d-%s", i, name))
		if data, err := s.artifacts.Read(ctx, key); err == nil {
			assets = append(assets, zip.Asset{Filename: name, MIME: mimeFor(name), Data: data})
			continue
		} else if s.artifacts != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("generation: artifact cache read failed")
		}

		data, mime, err := s.backend.Download(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("generation: download %s: %w", name, err)
		}
		if s.artifacts != nil {
			if _, err := s.artifacts.Write(ctx, key, data); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("generation: artifact cache write failed")
			}
		}
		assets = append(assets, zip.Asset{Filename: name, MIME: mime, Data: data})
	}
	return assets, nil
}

func artifactName(raw string, index int) string {
	if u, err := url.Parse(raw); err == nil {
		if name := path.Base(strings.ReplaceAll(u.Query().Get("filename"), `\`, "/")); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return fmt.Sprintf("image-%d.png", index+1)
}

func mimeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
