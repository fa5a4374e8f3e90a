// Package api is the HTTP surface: host management, on-demand clears,
// connectivity tests, run history, health and metrics.
package api // import "github.com/toeirei/cachesweep/internal/api"
