package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidTimeFormat, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeEncodingFailed, http.StatusBadGateway},
		{CodeEncoderUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := Validation("chapter 2 starts before chapter 1")

	assert.True(t, Is(err, ErrValidation))
	assert.False(t, Is(err, ErrNotFound))
}

func TestError_WrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeInternal, "write metadata")

	assert.Equal(t, "write metadata: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrInternal))
}

func TestError_WrappedInFmtErrorf(t *testing.T) {
	err := fmt.Errorf("convert: %w", EncoderUnavailable("ffmpeg not found"))

	var domainErr *Error
	require.True(t, As(err, &domainErr))
	assert.Equal(t, CodeEncoderUnavailable, domainErr.Code)
	assert.Equal(t, CodeEncoderUnavailable, CodeOf(err))
}

func TestEncodingFailed_CarriesDiagnostics(t *testing.T) {
	err := EncodingFailed("ffmpeg exited with status 1", "Invalid data found when processing input")

	details, ok := err.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Invalid data found when processing input", details["stderr"])
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("boom")))
}

func TestWithDetails_DoesNotMutateSentinel(t *testing.T) {
	err := ErrValidation.WithDetails(map[string]string{"source_path": "is required"})

	assert.NotNil(t, err.Details)
	assert.Nil(t, ErrValidation.Details)
}
