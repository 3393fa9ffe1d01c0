package exchange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]Kind{
		429: KindTransient,
		500: KindTransient,
		503: KindTransient,
		400: KindPermanent,
		403: KindPermanent,
		404: KindPermanent,
	}
	for status, want := range cases {
		assert.Equal(t, want, ClassifyHTTPStatus(status), "status %d", status)
	}
}

func TestError_IsRetryable(t *testing.T) {
	assert.True(t, NewError(503, "boom", nil).IsRetryable())
	assert.False(t, NewError(400, "boom", nil).IsRetryable())
	assert.True(t, NewTransientError("timeout", nil).IsRetryable())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(500, "upstream failure", cause)
	assert.ErrorIs(t, err, cause)
}
