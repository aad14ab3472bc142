package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("company %q not found", "acme"), http.StatusNotFound},
		{"invalid input", InvalidInput("bad date"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized},
		{"conflict", Conflict("taken"), http.StatusConflict},
		{"configuration", Configuration("no availability"), http.StatusInternalServerError},
		{"upstream keeps status", Upstream(403, "forbidden"), http.StatusForbidden},
		{"upstream without status", Upstream(0, "boom"), http.StatusBadGateway},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("resolve: %w", NotFound("missing")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestDetail(t *testing.T) {
	assert.Equal(t, "missing", Detail(fmt.Errorf("outer: %w", NotFound("missing"))))
	assert.Equal(t, "boom", Detail(errors.New("boom")))
	assert.Equal(t, `{"error":"x"}`, Detail(Upstream(400, `{"error":"x"}`)))
	assert.Equal(t, "failed to list appointments: connection refused",
		Detail(fmt.Errorf("lookup: %w", Wrap(KindUnexpected, errors.New("connection refused"), "failed to list appointments"))))
	assert.Equal(t, "failed to refresh access token",
		Detail(Wrap(KindUnauthorized, errors.New("invalid_grant"), "failed to refresh access token")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnexpected, KindOf(errors.New("x")))
	assert.Equal(t, KindUnauthorized, KindOf(Wrap(KindUnauthorized, errors.New("x"), "refresh failed")))
	assert.True(t, Is(fmt.Errorf("a: %w", Conflict("b")), KindConflict))
	assert.False(t, Is(nil, KindConflict))
}

func TestError_Error(t *testing.T) {
	cause := errors.New("dial tcp")
	assert.Equal(t, "store unavailable: dial tcp", Wrap(KindUnexpected, cause, "store unavailable").Error())
	assert.Equal(t, "dial tcp", Wrap(KindUnexpected, cause, "").Error())
	assert.ErrorIs(t, Wrap(KindUnexpected, cause, "x"), cause)
}
