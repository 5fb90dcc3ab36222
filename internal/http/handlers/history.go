package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"comfyremote/internal/history"
)

type historyResponse struct {
	Items []history.Entry `json:"items"`
}

// ListHistory returns the log newest first. ?format=export downloads it as
// a JSON document instead.
func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "export" {
		now := a.Now()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "history-"+now.UTC().Format("20060102-150405")+".json"))
		if err := history.Export(r.Context(), a.History, w, now); err != nil {
			a.Logger.Error().Err(err).Msg("history: export failed")
		}
		return
	}
	entries, err := a.History.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("history: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read history")
		return
	}
	a.json(w, http.StatusOK, historyResponse{Items: entries})
}

func (a *App) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := a.History.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if errors.Is(err, history.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "history entry not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("history: get failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read history")
		return
	}
	a.json(w, http.StatusOK, entry)
}

func (a *App) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	err := a.History.Remove(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if errors.Is(err, history.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "history entry not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Msg("history: delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete history entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Clear(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("history: clear failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
