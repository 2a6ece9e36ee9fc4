package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpm4b/bpm4b/internal/chapters"
)

func (s *Server) registerChapterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "previewChapterMetadata",
		Method:      http.MethodPost,
		Path:        "/api/v1/chapters/metadata",
		Summary:     "Preview chapter metadata",
		Description: "Parses chapter start times, applies the chapter policy and returns the FFMETADATA1 document a conversion would use",
		Tags:        []string{"Chapters"},
	}, s.handlePreviewMetadata)
}

// PreviewMetadataRequest is the request body for a metadata preview.
type PreviewMetadataRequest struct {
	Chapters []chapters.Input `json:"chapters" doc:"Chapters with seconds or MM:SS start times"`
}

// PreviewMetadataInput wraps the preview request for Huma.
type PreviewMetadataInput struct {
	Body PreviewMetadataRequest
}

// PreviewMetadataResponse is the rendered metadata and resolved chapters.
type PreviewMetadataResponse struct {
	Metadata string             `json:"metadata" doc:"FFMETADATA1 document"`
	Chapters []chapters.Chapter `json:"chapters" doc:"Chapters with inferred end times"`
}

// PreviewMetadataOutput wraps the preview response for Huma.
type PreviewMetadataOutput struct {
	Body PreviewMetadataResponse
}

func (s *Server) handlePreviewMetadata(_ context.Context, input *PreviewMetadataInput) (*PreviewMetadataOutput, error) {
	chs, err := chapters.FromInputs(input.Body.Chapters)
	if err != nil {
		return nil, toAPIError(err)
	}

	chs, err = s.convert.Policy().Apply(chs)
	if err != nil {
		return nil, toAPIError(err)
	}

	return &PreviewMetadataOutput{
		Body: PreviewMetadataResponse{
			Metadata: chapters.BuildMetadata(chs),
			Chapters: chapters.Resolve(chs),
		},
	}, nil
}
