// Package history keeps the log of finished generations, newest first and
// capped at a fixed number of entries.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

// DefaultLimit is the number of entries kept when none is configured.
const DefaultLimit = 50

var ErrNotFound = errors.New("history entry not found")

// Entry is one finished generation.
type Entry struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	ImageURLs      []string  `json:"image_urls"`
	Resolution     string    `json:"resolution"`
	Model          string    `json:"model"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// Duration returns the recorded generation time.
func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMS) * time.Millisecond
}

// Store persists history entries. Add assigns ID and CreatedAt when unset
// and drops the oldest entries beyond the store's limit.
type Store interface {
	Add(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

type exportDocument struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Entries    []Entry   `json:"entries"`
}

// Export writes the whole log as an indented JSON document.
func Export(ctx context.Context, store Store, w io.Writer, now time.Time) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportDocument{ExportedAt: now.UTC(), Count: len(entries), Entries: entries})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
