package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func passing() error { return nil }

// rejected hands back the breaker's own error.
func rejected(err error) error { return err }

func TestOpensAfterMaxFailures(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(2, 30*time.Second, time.Minute, clk)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing, rejected), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil }, rejected)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestFallbackWhileOpen(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(0, 30*time.Second, time.Minute, clk)
	_ = cb.Execute(failing, rejected)

	fallbackErr := errors.New("queued for later")
	var got error
	err := cb.Execute(passing, func(err error) error {
		got = err
		return fallbackErr
	})

	assert.ErrorIs(t, got, ErrOpen)
	assert.ErrorIs(t, err, fallbackErr)
}

func TestHalfOpenRecovers(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(0, 30*time.Second, time.Minute, clk)
	_ = cb.Execute(failing, rejected)
	assert.Equal(t, StateOpen, cb.GetState())

	clk.Advance(31 * time.Second)

	assert.NoError(t, cb.Execute(passing, rejected))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(5, 30*time.Second, time.Minute, clk)
	for i := 0; i < 6; i++ {
		_ = cb.Execute(failing, rejected)
	}
	clk.Advance(31 * time.Second)

	assert.ErrorIs(t, cb.Execute(failing, rejected), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestOldFailuresExpire(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cb := NewCircuitBreaker(1, 30*time.Second, time.Minute, clk)

	_ = cb.Execute(failing, rejected)
	clk.Advance(2 * time.Minute)
	_ = cb.Execute(failing, rejected)

	assert.Equal(t, StateClosed, cb.GetState())
}
