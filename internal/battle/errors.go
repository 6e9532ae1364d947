package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/magefree/battle-server-go/internal/dice"
)

var (
	// ErrInvariant marks a fatal rule violation. It is never retried.
	ErrInvariant = errors.New("battle invariant violated")
	// ErrSuspended is returned by Fight when a step is waiting on a remote player or the dice
	// server. The battle keeps its stack and can be fought again after a save or reconnect.
	ErrSuspended = errors.New("battle suspended")
	// ErrInterrupted is returned by a remote player that cannot answer right now.
	ErrInterrupted = errors.New("remote player interrupted")
)

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}

// isInterruption reports whether err means "try again later" rather than failure.
func isInterruption(err error) bool {
	return errors.Is(err, ErrInterrupted) ||
		errors.Is(err, dice.ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
