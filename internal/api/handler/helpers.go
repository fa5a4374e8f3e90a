package handler

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/toeirei/cachesweep/internal/api/response"
	"github.com/toeirei/cachesweep/internal/core"
	"github.com/toeirei/cachesweep/internal/db"
)

// writeServiceError maps service errors onto status codes.
func writeServiceError(w http.ResponseWriter, l *log.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, "Host not found")
	case errors.Is(err, db.ErrDuplicate):
		response.WriteError(w, http.StatusConflict, err.Error())
	default:
		l.Error("request failed", "err", err)
		response.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
