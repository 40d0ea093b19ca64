package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{FieldError("type", "bad"), http.StatusUnprocessableEntity},
		{NewNotFound("id", "x"), http.StatusNotFound},
		{NewNotAuthorized("nope"), http.StatusForbidden},
		{NewNotAuthenticated("who"), http.StatusUnauthorized},
		{NewUnsupportedTicketType("tar"), http.StatusBadRequest},
		{NewJwt(errors.New("expired")), http.StatusUnprocessableEntity},
		{NewConfig("bad %s", "transport"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NewNotFound("id", "x")), http.StatusNotFound},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), tt.err.Error())
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", NewNotFound("id", "x"))
	assert.ErrorIs(t, err, NotFound)
	assert.NotErrorIs(t, err, Validation)

	cause := errors.New("signature is invalid")
	assert.ErrorIs(t, NewJwt(cause), cause)
}

func TestBody(t *testing.T) {
	assert.Equal(t,
		map[string]any{"errors": map[string]any{"type": []string{"bad"}}},
		Body(FieldError("type", "bad")))
	assert.Equal(t,
		map[string]any{"errors": map[string]any{"message": "boom"}},
		Body(errors.New("boom")))
}
