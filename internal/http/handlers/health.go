package handlers

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status  string `json:"status"`
	Comfy   string `json:"comfy,omitempty"`
	Running int    `json:"running"`
	Pending int    `json:"pending"`
}

// Health reports liveness. With ?deep=1 it also reads the remote queue.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if r.URL.Query().Get("deep") == "" || a.Queue == nil {
		a.json(w, http.StatusOK, resp)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	snap, err := a.Queue.Queue(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("health: comfy queue unreachable")
		resp.Status = "degraded"
		resp.Comfy = "unreachable"
		a.json(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Comfy = "reachable"
	resp.Running = len(snap.Running)
	resp.Pending = len(snap.Pending)
	a.json(w, http.StatusOK, resp)
}
