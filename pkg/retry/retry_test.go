package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func Test_Do_SucceedsAfterTransientFailures(t *testing.T) {
	req := require.New(t)

	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, isTransient, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	req.NoError(err)
	req.Equal(3, calls)
}

func Test_Do_StopsOnPermanentError(t *testing.T) {
	req := require.New(t)

	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, isTransient, func(context.Context) error {
		calls++
		return errPermanent
	})
	req.ErrorIs(err, errPermanent)
	req.Equal(1, calls)
}

func Test_Do_ExhaustsBudget(t *testing.T) {
	req := require.New(t)

	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, isTransient, func(context.Context) error {
		calls++
		return errTransient
	})
	req.ErrorIs(err, errTransient)
	req.Equal(3, calls)
}

func Test_Do_RespectsContextCancellation(t *testing.T) {
	req := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, 10, 50*time.Millisecond, isTransient, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	req.ErrorIs(err, errTransient)
	req.Equal(1, calls)
}
