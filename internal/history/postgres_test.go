package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"comfyremote/internal/sqlinline"
)

type execCall struct {
	query string
	args  []any
}

type stubExecutor struct {
	execs    []execCall
	execErr  error
	affected string
	row      pgx.Row
	rows     *stubRows
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	tag := s.affected
	if tag == "" {
		tag = "DELETE 1"
	}
	return pgconn.NewCommandTag(tag), s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if s.rows == nil {
		return nil, errors.New("no rows configured")
	}
	return s.rows, nil
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

func entryRow(e Entry) rowFunc {
	return func(dest ...any) error {
		urls, _ := json.Marshal(e.ImageURLs)
		*dest[0].(*string) = e.ID
		*dest[1].(*string) = e.JobID
		*dest[2].(*string) = e.Prompt
		*dest[3].(*string) = e.NegativePrompt
		*dest[4].(*[]byte) = urls
		*dest[5].(*string) = e.Resolution
		*dest[6].(*string) = e.Model
		*dest[7].(*int64) = e.DurationMS
		*dest[8].(*time.Time) = e.CreatedAt
		return nil
	}
}

type stubRows struct {
	rows []rowFunc
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, errors.New("not supported") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return r.rows[r.idx-1](dest...)
}

func TestPostgresStoreAddInsertsAndTrims(t *testing.T) {
	exec := &stubExecutor{}
	store := NewPostgresStore(exec, 50)

	entry, err := store.Add(context.Background(), Entry{JobID: "job-1", Prompt: "fox", ImageURLs: []string{"u1"}})
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", entry)
	}
	if len(exec.execs) != 2 {
		t.Fatalf("expected insert and trim, got %d statements", len(exec.execs))
	}
	if exec.execs[0].query != sqlinline.QInsertGenerationHistory {
		t.Fatalf("unexpected first statement: %s", exec.execs[0].query)
	}
	if raw, ok := exec.execs[0].args[4].([]byte); !ok || string(raw) != `["u1"]` {
		t.Fatalf("expected json image urls, got %T %v", exec.execs[0].args[4], exec.execs[0].args[4])
	}
	if exec.execs[1].query != sqlinline.QTrimGenerationHistory || exec.execs[1].args[0] != 50 {
		t.Fatalf("unexpected trim statement: %+v", exec.execs[1])
	}
}

func TestPostgresStoreAddError(t *testing.T) {
	store := NewPostgresStore(&stubExecutor{execErr: errors.New("boom")}, 10)
	if _, err := store.Add(context.Background(), Entry{JobID: "j"}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPostgresStoreList(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	exec := &stubExecutor{rows: &stubRows{rows: []rowFunc{
		entryRow(Entry{ID: "b", JobID: "job-b", ImageURLs: []string{"u2"}, CreatedAt: created}),
		entryRow(Entry{ID: "a", JobID: "job-a", CreatedAt: created.Add(-time.Minute)}),
	}}}
	entries, err := NewPostgresStore(exec, 0).List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 2 || entries[0].JobID != "job-b" || entries[0].ImageURLs[0] != "u2" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[1].ImageURLs == nil {
		t.Fatal("expected empty slice for missing urls")
	}
}

func TestPostgresStoreGet(t *testing.T) {
	id := "5b0f7d8e-1c2a-4b3c-9d4e-5f6a7b8c9d0e"
	store := NewPostgresStore(&stubExecutor{row: entryRow(Entry{ID: id, JobID: "job-1"})}, 0)
	entry, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if entry.JobID != "job-1" {
		t.Fatalf("expected job-1, got %q", entry.JobID)
	}

	missing := NewPostgresStore(&stubExecutor{row: rowFunc(func(...any) error { return pgx.ErrNoRows })}, 0)
	if _, err := missing.Get(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := missing.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestPostgresStoreRemove(t *testing.T) {
	id := "5b0f7d8e-1c2a-4b3c-9d4e-5f6a7b8c9d0e"
	if err := NewPostgresStore(&stubExecutor{}, 0).Remove(context.Background(), id); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	err := NewPostgresStore(&stubExecutor{affected: "DELETE 0"}, 0).Remove(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreSchemaAndClear(t *testing.T) {
	exec := &stubExecutor{}
	store := NewPostgresStore(exec, 0)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if len(exec.execs) != 2 || exec.execs[1].query != sqlinline.QClearGenerationHistory {
		t.Fatalf("unexpected statements: %+v", exec.execs)
	}
}
