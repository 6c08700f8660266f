package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// hostCheckTimeout bounds the host catalog probe of a health check.
const hostCheckTimeout = 5 * time.Second

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"configuration": s.checkConfiguration(),
		"host":          s.checkHost(ctx),
		"mirrors":       s.checkMirrors(),
	}

	overall := "healthy"
	for _, c := range components {
		switch c.Status {
		case "unhealthy":
			overall = "unhealthy"
		case "degraded":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Components: components,
		},
	}, nil
}

// checkConfiguration verifies the configuration store is loaded.
func (s *Server) checkConfiguration() ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: "degraded", Message: "configuration store not configured"}
	}
	cfg := s.store.Snapshot()
	return ComponentHealth{
		Status:  "healthy",
		Message: strconv.Itoa(len(cfg.Alternatives)) + " alternatives",
	}
}

// checkHost verifies the host library catalog answers.
func (s *Server) checkHost(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, hostCheckTimeout)
	defer cancel()

	start := time.Now()
	_, err := s.alternatives.ListLibraries(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  "unhealthy",
			Latency: latency.String(),
			Message: "host catalog unreachable",
		}
	}
	return ComponentHealth{Status: "healthy", Latency: latency.String()}
}

// checkMirrors reports degraded while any mirror is in error.
func (s *Server) checkMirrors() ComponentHealth {
	if s.store == nil {
		return ComponentHealth{Status: "degraded", Message: "configuration store not configured"}
	}

	failed := 0
	refs := s.store.Snapshot().AllMirrors()
	for _, ref := range refs {
		if ref.Mirror.LastError != "" {
			failed++
		}
	}
	if failed > 0 {
		return ComponentHealth{
			Status:  "degraded",
			Message: strconv.Itoa(failed) + " of " + strconv.Itoa(len(refs)) + " mirrors in error",
		}
	}
	return ComponentHealth{Status: "healthy", Message: strconv.Itoa(len(refs)) + " mirrors"}
}
