package nats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterMaxFailures(t *testing.T) {
	cb := newCircuitBreaker(2, time.Hour)
	boom := errors.New("boom")

	require.Error(t, cb.call(func() error { return boom }))
	require.Error(t, cb.call(func() error { return boom }))

	err := cb.call(func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestCircuitBreaker_ClosesAfterSuccessInHalfOpen(t *testing.T) {
	cb := newCircuitBreaker(1, time.Millisecond)
	boom := errors.New("boom")

	require.Error(t, cb.call(func() error { return boom }))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.call(func() error { return nil }))
	assert.Equal(t, circuitClosed, cb.state)
}
