package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errFlaky = errors.New("flaky")

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	cfg := &Config{Enable: true, Attempts: 3, Interval: time.Millisecond}

	calls := 0
	err := Execute(context.Background(), cfg, zaptest.NewLogger(t), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteGivesUp(t *testing.T) {
	cfg := &Config{Enable: true, Attempts: 2, Interval: time.Millisecond}

	calls := 0
	err := Execute(context.Background(), cfg, nil, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestExecutePermanent(t *testing.T) {
	cfg := &Config{Enable: true, Attempts: 5, Interval: time.Millisecond}

	calls := 0
	err := Execute(context.Background(), cfg, nil, func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteDisabled(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), &Config{}, nil, func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{Enable: true, Attempts: 3, Interval: time.Hour}

	err := Execute(ctx, cfg, nil, func(context.Context) error {
		cancel()
		return errFlaky
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig(t *testing.T) {
	assert.NoError(t, DefaultRetryConfig().Validate())
	assert.Error(t, (&Config{Enable: true}).Validate())
	assert.Error(t, (&Config{Enable: true, Attempts: 1, Interval: time.Minute, MaxInterval: time.Second}).Validate())

	cfg := &Config{Interval: time.Second, MaxInterval: 5 * time.Second}
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 5*time.Second, cfg.Backoff(3))
}
