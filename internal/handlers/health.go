package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

var startedAt = time.Now()

// Check is the result of probing one dependency.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// probe pings p and times it. A nil pinger counts as unconfigured.
func probe(ctx context.Context, p pinger) Check {
	if p == nil {
		return Check{Status: "fail", Message: "not configured"}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).Round(time.Microsecond).String()}
}

// Health reports whether the data and session stores answer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var data, sessions pinger
	if h.data != nil {
		data = h.data
	}
	if h.sessions != nil {
		sessions = h.sessions
	}

	checks := map[string]Check{
		"database": probe(ctx, data),
		"sessions": probe(ctx, sessions),
	}

	resp := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Uptime:    time.Since(startedAt).Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	for name, c := range checks {
		if c.Status != "pass" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.Warn().Str("check", name).Str("message", c.Message).Msg("health check failed")
		}
	}

	h.JSON(w, status, resp)
}

// RootResponse describes the service.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GraphQL string `json:"graphql"`
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Abxy Chat",
		Version: version,
		GraphQL: "/v1/graphql",
	})
}
