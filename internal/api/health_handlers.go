package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpm4b/bpm4b/internal/service"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Description: "Reports whether the server is up and whether ffmpeg can be run",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status  string                `json:"status" doc:"ok when the encoder is usable, degraded otherwise"`
	Encoder service.EncoderStatus `json:"encoder" doc:"ffmpeg availability"`
	Policy  string                `json:"chapter_policy" doc:"Chapter ordering policy in effect"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	encoder, err := s.convert.CheckEncoder(ctx)
	if err != nil {
		s.logger.Debug("encoder check failed", "error", err)
	}

	status := "ok"
	if !encoder.Available {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:  status,
			Encoder: encoder,
			Policy:  string(s.convert.Policy()),
		},
	}, nil
}
