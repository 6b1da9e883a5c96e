package backend

import (
	"context"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/osq/internal/qerr"
)

// classify maps a storage failure onto the error taxonomy. SQLite busy and
// locked conditions are retryable; every other storage error is a
// deterministic query failure. Cancellation and errors already classified
// pass through unchanged.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if _, ok := qerr.As(err); ok {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return qerr.Backend(true, err, format, args...)
	}
	return qerr.Backend(false, err, format, args...)
}
