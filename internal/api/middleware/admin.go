package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/toeirei/cachesweep/internal/api/response"
)

// AdminPinHeader carries the admin PIN on mutating requests.
const AdminPinHeader = "X-Admin-Pin"

// RequireAdmin rejects requests whose X-Admin-Pin header does not match pin
// with 403. An empty pin lets every request through.
func RequireAdmin(pin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if pin == "" {
			return next
		}
		want := []byte(pin)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(AdminPinHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				response.WriteError(w, http.StatusForbidden, "Admin PIN required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
