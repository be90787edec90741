package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 5 * time.Second

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name string
	ping func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks. The engine is ready when the
// raw transaction store and the report store both answer.
type HealthHandler struct {
	deps []dependency
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{deps: []dependency{
		{name: "postgres", ping: db.Ping},
		{name: "redis", ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
	}}
}

// HealthResponse is the readiness body; Checks maps each dependency to "ok" or its error.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness pings every dependency and reports each result. Any failure makes it 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.deps))}
	status := http.StatusOK
	for _, d := range h.deps {
		if err := d.ping(ctx); err != nil {
			resp.Checks[d.name] = d.name + " unhealthy: " + err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[d.name] = "ok"
	}

	writeJSON(w, status, resp)
}
