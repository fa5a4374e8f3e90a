package handler

import (
	"net/http"

	"github.com/toeirei/cachesweep/internal/api/response"
)

// AdminRequired reports whether mutating calls need the admin PIN.
func AdminRequired(pin string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.WriteJSON(w, http.StatusOK, map[string]bool{"required": pin != ""})
	}
}
