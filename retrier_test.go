package scrc

import (
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"net"
	"testing"
)

func noDelays() func() {
	origRetrySleep := retrySleep
	retrySleep = 0
	return func() {
		retrySleep = origRetrySleep
	}
}

// timeoutError implements net.Error for timeout simulation.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func newTimeout() error {
	return &net.OpError{Op: "read", Net: "udp", Err: &timeoutError{}}
}

func TestRetry(t *testing.T) {
	defer noDelays()()

	results := []error{
		newTimeout(),
		errors.New("connection refused"),
		newTimeout(),
		nil,
	}
	calls := 0
	err := retry(context.Background(), "retry-test", func() error {
		err := results[calls]
		calls++
		return err
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestRetryPermanent(t *testing.T) {
	defer noDelays()()

	fatal := errors.New("fatal")
	calls := 0
	err := retry(context.Background(), "retry-test", func() error {
		calls++
		if calls == 1 {
			return newTimeout()
		}
		return permanent(fatal)
	})
	assert.Equal(t, fatal, err)
	assert.Equal(t, 2, calls)
}

func TestRetryContext(t *testing.T) {
	defer noDelays()()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, "retry-test", func() error {
		calls++
		if calls == 3 {
			cancel()
		}
		return newTimeout()
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 3, calls)
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(newTimeout()))
	assert.True(t, isTimeout(errors.Wrap(newTimeout(), "wrapped")))
	assert.False(t, isTimeout(errors.New("other")))
	assert.False(t, isTimeout(nil))
}
