package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthCheckFunc reports whether a dependency is reachable.
type HealthCheckFunc func(ctx context.Context) error

// HealthHandler returns a health check endpoint. connections reports the number of
// open WebSocket watchers.
func HealthHandler(check HealthCheckFunc, connections func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "healthy"}
		if connections != nil {
			body["ws_connections"] = connections()
		}
		if err := check(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(body)
	}
}
