package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"transient", NewTransientError(errors.New("429"), 429), true},
		{"wrapped transient", eris.Wrap(NewTransientError(errors.New("503"), 503), "search"), true},
		{"circuit open", eris.Wrap(ErrCircuitOpen, "verifier"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"conn reset text", errors.New("read tcp: connection reset by peer"), true},
		{"status error", &StatusError{Service: "x", StatusCode: 400}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	err := FromHTTPStatus("verifier", http.StatusTooManyRequests, []byte("slow down"))
	assert.True(t, IsTransient(err))
	assert.True(t, IsRateLimited(err))
	assert.Contains(t, err.Error(), "429")

	err = FromHTTPStatus("verifier", http.StatusBadGateway, nil)
	assert.True(t, IsTransient(err))
	assert.False(t, IsRateLimited(err))

	err = FromHTTPStatus("verifier", http.StatusBadRequest, []byte("bad email"))
	assert.False(t, IsTransient(err))
	var se *StatusError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode)
	assert.Contains(t, err.Error(), "bad email")
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
