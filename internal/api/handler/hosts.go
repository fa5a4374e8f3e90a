// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/toeirei/cachesweep/internal/api/request"
	"github.com/toeirei/cachesweep/internal/api/response"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/db"
	"github.com/toeirei/cachesweep/internal/model"
)

// HostService is what the host handlers call into.
type HostService interface {
	CreateHost(ctx context.Context, in core.HostInput) (string, error)
	UpdateHost(ctx context.Context, id string, in core.HostInput) error
	DeleteHost(ctx context.Context, id string) error
	GetHost(ctx context.Context, id string) (*model.Host, error)
	ListHosts(ctx context.Context) ([]model.HostSummary, error)
	History(ctx context.Context, hostID string, limit int) ([]model.ClearRun, error)
	TestConnection(ctx context.Context, id string) (core.ConnResult, error)
	TriggerClear(hostID string) error
}

// Hosts serves the host, clear and history endpoints.
type Hosts struct {
	svc HostService
	log *log.Logger
}

// NewHosts returns the host handlers.
func NewHosts(svc HostService, l *log.Logger) *Hosts {
	return &Hosts{svc: svc, log: l}
}

func (h *Hosts) List(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.svc.ListHosts(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if hosts == nil {
		hosts = []model.HostSummary{}
	}
	response.WriteJSON(w, http.StatusOK, hosts)
}

func (h *Hosts) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	host, err := h.svc.GetHost(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, host)
}

func (h *Hosts) Create(w http.ResponseWriter, r *http.Request) {
	var in core.HostInput
	if err := request.Decode(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.svc.CreateHost(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Hosts) Update(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in core.HostInput
	if err := request.Decode(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.UpdateHost(r.Context(), id, in); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	response.WriteOK(w)
}

func (h *Hosts) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteHost(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	response.WriteOK(w)
}

// Test runs the connectivity check. Its outcome is always reported as
// {"ok", "message"}.
func (h *Hosts) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.TestConnection(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		response.WriteJSON(w, http.StatusNotFound, core.ConnResult{Message: "Host not found"})
		return
	case err != nil:
		h.log.Error("connection test failed", "host_id", id, "err", err)
		response.WriteJSON(w, http.StatusInternalServerError, core.ConnResult{Message: "internal error"})
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

// Clear starts a background clear and answers at once.
func (h *Hosts) Clear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.TriggerClear(id); err != nil {
		h.log.Warn("clear not started", "host_id", id, "err", err)
		response.WriteJSON(w, http.StatusServiceUnavailable, core.ConnResult{Message: "Server is shutting down"})
		return
	}
	response.WriteJSON(w, http.StatusOK, core.ConnResult{OK: true, Message: "Cache clear started"})
}

// History lists runs newest first, scoped to ?host_id= when given.
func (h *Hosts) History(w http.ResponseWriter, r *http.Request) {
	limit, err := request.Limit(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := h.svc.History(r.Context(), r.URL.Query().Get("host_id"), limit)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if runs == nil {
		runs = []model.ClearRun{}
	}
	response.WriteJSON(w, http.StatusOK, runs)
}
