package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"comfyremote/internal/infra"
	"comfyremote/internal/sqlinline"
)

// PostgresStore persists history in the generation_history table.
type PostgresStore struct {
	sql   infra.SQLExecutor
	limit int
	now   func() time.Time
}

func NewPostgresStore(sql infra.SQLExecutor, limit int) *PostgresStore {
	return &PostgresStore{sql: sql, limit: normalizeLimit(limit), now: time.Now}
}

// EnsureSchema creates the history table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QCreateGenerationHistory); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, entry Entry) (Entry, error) {
	entry = prepare(entry, s.now)
	urls, err := json.Marshal(entry.ImageURLs)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QInsertGenerationHistory,
		entry.ID, entry.JobID, entry.Prompt, entry.NegativePrompt, urls,
		entry.Resolution, entry.Model, entry.DurationMS, entry.CreatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("history: insert: %w", err)
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QTrimGenerationHistory, s.limit); err != nil {
		return Entry{}, fmt.Errorf("history: trim: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListGenerationHistory, s.limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return Entry{}, ErrNotFound
	}
	entry, err := scanEntry(s.sql.QueryRow(ctx, sqlinline.QGetGenerationHistory, strings.TrimSpace(id)))
	if infra.IsNoRows(err) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrNotFound
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteGenerationHistory, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QClearGenerationHistory); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry Entry
		urls  []byte
	)
	if err := row.Scan(&entry.ID, &entry.JobID, &entry.Prompt, &entry.NegativePrompt, &urls,
		&entry.Resolution, &entry.Model, &entry.DurationMS, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	entry.ImageURLs = []string{}
	if len(urls) > 0 {
		if err := json.Unmarshal(urls, &entry.ImageURLs); err != nil {
			return Entry{}, fmt.Errorf("history: decode image urls: %w", err)
		}
	}
	return entry, nil
}

var _ Store = (*PostgresStore)(nil)
