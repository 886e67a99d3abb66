package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tradepost/messaging/internal/repository"
)

// wrapErr tags transient failures with repository.ErrUnavailable so the
// boundary can retry them. Anything else passes through unchanged.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case pgconn.SafeToRetry(err),
		pgconn.Timeout(err),
		errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}
