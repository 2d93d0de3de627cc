package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("loading items: %w", Database("query failed", errors.New("timeout")))

	assert.Equal(t, CodeDatabase, CodeOf(err))
	assert.True(t, Is(err, CodeDatabase))
	assert.Equal(t, "query failed", Message(err))
}

func TestCodeOf_Plain(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, CodeUnexpected, CodeOf(err))
	assert.False(t, Is(nil, CodeUnexpected))
	assert.Equal(t, "an unexpected error occurred", Message(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:   http.StatusBadRequest,
		CodeNotFound:     http.StatusNotFound,
		CodeUnauthorized: http.StatusUnauthorized,
		CodeForbidden:    http.StatusForbidden,
		CodeRateLimited:  http.StatusTooManyRequests,
		CodeDatabase:     http.StatusBadGateway,
		CodeUnexpected:   http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeDatabase, "insert failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert failed: connection reset", err.Error())
}
