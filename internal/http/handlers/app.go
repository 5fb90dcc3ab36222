package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"comfyremote/internal/comfy"
	"comfyremote/internal/generation"
	"comfyremote/internal/history"
	"comfyremote/internal/infra"
	"comfyremote/internal/workflow"
	"comfyremote/pkg/zip"
)

// Generations is the part of generation.Service the HTTP layer drives.
type Generations interface {
	Start(ctx context.Context, req workflow.Request, locale language.Tag) (generation.Job, error)
	Artifacts(ctx context.Context, jobID string) ([]zip.Asset, error)
	Statuses() *generation.StatusStore
}

// QueueReader reads the remote queue for health checks.
type QueueReader interface {
	Queue(ctx context.Context) (comfy.QueueSnapshot, error)
}

type App struct {
	Generations Generations
	History     history.Store
	Queue       QueueReader
	Logger      *infra.Logger
	Now         func() time.Time
}

func NewApp(gen Generations, store history.Store, queue QueueReader, logger *infra.Logger) *App {
	return &App{
		Generations: gen,
		History:     store,
		Queue:       queue,
		Logger:      infra.OrDiscard(logger),
		Now:         time.Now,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
