package api

import (
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bpm4b/bpm4b/internal/http/response"
)

// EnvelopeTransformer wraps huma response bodies in response.Envelope so the
// huma routes and the plain chi routes share one JSON shape.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	code, err := strconv.Atoi(status)
	if err != nil {
		return v, nil //nolint:nilerr // non-numeric status (e.g. "default") is passed through
	}

	if code < 400 {
		return response.Envelope{Success: true, Data: v}, nil
	}

	if apiErr, ok := v.(*APIError); ok {
		return response.Envelope{
			Error:   apiErr.Message,
			Code:    apiErr.Code,
			Details: apiErr.Details,
		}, nil
	}
	if e, ok := v.(error); ok {
		return response.Envelope{Error: e.Error(), Code: statusToCode(code)}, nil
	}
	return response.Envelope{Data: v, Code: statusToCode(code)}, nil
}
