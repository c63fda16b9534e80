package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", ValidationError("bad"), http.StatusBadRequest},
		{"unauthorized", UnauthorizedError("no key"), http.StatusUnauthorized},
		{"unavailable", UnavailableError("stopped", nil), http.StatusServiceUnavailable},
		{"internal", InternalError("boom", nil), http.StatusInternalServerError},
		{"unknown type", &Error{Type: "weird"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("registry stopped")
	err := UnavailableError("server shutting down", cause)

	assert.Equal(t, "unavailable: server shutting down: registry stopped", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "validation: bad input", ValidationError("bad input").Error())
}

func TestWithField(t *testing.T) {
	err := ValidationError("bad scope").WithField("scope", "team").WithField("target", "x")

	assert.Equal(t, map[string]any{"scope": "team", "target": "x"}, err.Context)

	bare := &Error{Type: TypeInternal}
	bare.WithField("k", 1)
	assert.Equal(t, 1, bare.Context["k"])
}

func TestToResponse(t *testing.T) {
	resp := ValidationError("message type is required").WithField("scope", "user").ToResponse()

	assert.Equal(t, "message type is required", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "user", resp.Context["scope"])
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := ValidationError("bad")
	wrapped := fmt.Errorf("handler: %w", original)
	assert.Same(t, original, AsStructuredError(wrapped))

	plain := errors.New("db down")
	got := AsStructuredError(plain)
	require.NotNil(t, got)
	assert.Equal(t, TypeInternal, got.Type)
	assert.Equal(t, "internal server error", got.Message)
	assert.ErrorIs(t, got, plain)
}
