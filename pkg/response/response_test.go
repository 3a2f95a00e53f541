package response

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"EstouBem/pkg/errors"
)

func TestErrorToHTTPStatus(t *testing.T) {
	cases := map[string]int{
		"UNAUTHORIZED":          http.StatusUnauthorized,
		"CONTACT_INVALID":       http.StatusBadRequest,
		"CONTACT_NOT_FOUND":     http.StatusNotFound,
		"CHECK_IN_ALREADY_DONE": http.StatusConflict,
		"WRITE_ERROR":           http.StatusServiceUnavailable,
		"DELIVERY_FAILED":       http.StatusBadGateway,
		"INTERNAL_ERROR":        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, errorToHTTPStatus(code), code)
	}
}

func TestResolveWrappedDefinition(t *testing.T) {
	code, msg := resolve(fmt.Errorf("record: %w", errors.WriteError))
	assert.Equal(t, "WRITE_ERROR", code)
	assert.Equal(t, errors.WriteError.Message, msg)

	code, msg = resolve(fmt.Errorf("pq: connection refused"))
	assert.Equal(t, "INTERNAL_ERROR", code)
	assert.NotContains(t, msg, "pq")
}
