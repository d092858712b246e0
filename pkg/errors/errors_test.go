package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrJobNotFound, http.StatusNotFound, "job %s not found", "abc")

	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.Equal(t, "ingestion job not found: job abc not found", err.Error())
}

func TestHTTPStatusCodeUsesAppErrorCode(t *testing.T) {
	err := New(ErrInvalidJobStatus, http.StatusBadRequest, "only failed jobs can be retried")
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(err))

	// The explicit code wins even when wrapped further.
	wrapped := fmt.Errorf("handling request: %w", err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(wrapped))
}

func TestHTTPStatusCodeSentinelFallback(t *testing.T) {
	cases := map[error]int{
		ErrDocumentNotFound:  http.StatusNotFound,
		ErrJobNotFound:       http.StatusNotFound,
		ErrAlreadyProcessing: http.StatusConflict,
		ErrAccessDenied:      http.StatusForbidden,
		ErrInvalidJobStatus:  http.StatusBadRequest,
		ErrInvalidInput:      http.StatusBadRequest,
		ErrUnauthorized:      http.StatusUnauthorized,
		ErrRateLimited:       http.StatusTooManyRequests,
		ErrInternal:          http.StatusInternalServerError,
	}
	for sentinel, want := range cases {
		assert.Equal(t, want, HTTPStatusCode(fmt.Errorf("op: %w", sentinel)))
	}
}

func TestHTTPStatusCodeUnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(errors.New("disk on fire")))
}
