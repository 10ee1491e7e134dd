// Copyright 2025 James Ross
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gwbischof/starq/internal/config"
	"github.com/gwbischof/starq/internal/queuecore"
	"github.com/gwbischof/starq/internal/queueerr"
	"go.uber.org/zap"
)

// handlers holds the collaborators every route needs. It carries no
// request-scoped state; the queuecore.Store does its own connection
// management per call.
type handlers struct {
	store *queuecore.Store
	cfg   *config.Config
	log   *zap.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "error", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := h.store.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queues": queues})
}

type queueCreateBody struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	MaxRetries   *int   `json:"max_retries"`
	ClaimTimeout *int   `json:"claim_timeout_seconds"`
	Dedupe       bool   `json:"dedupe"`
}

func (h *handlers) createQueue(w http.ResponseWriter, r *http.Request) {
	var body queueCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, string(queueerr.CodeValidation), "invalid JSON body")
		return
	}

	in := queuecore.QueueCreate{
		Name:         body.Name,
		Description:  body.Description,
		MaxRetries:   h.cfg.Queue.DefaultMaxRetries,
		ClaimTimeout: int(h.cfg.Queue.DefaultClaimTimeout / time.Second),
		Dedupe:       body.Dedupe,
	}
	if body.MaxRetries != nil {
		in.MaxRetries = *body.MaxRetries
	}
	if body.ClaimTimeout != nil {
		in.ClaimTimeout = *body.ClaimTimeout
	}

	info, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) getQueue(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, err := h.store.Info(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) deleteQueue(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.store.Delete(r.Context(), name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "queue": name})
}
