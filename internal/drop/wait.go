package drop

import (
	"context"
	"fmt"
	"time"
)

// Done returns a channel that is closed once the drop has finished,
// either Completed or Error.
func (d *Drop) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the drop has finished, the timeout elapses or ctx is
// cancelled. A drop that finished before Wait was called returns at once.
// A non-positive timeout waits on ctx alone.
func (d *Drop) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-d.done:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-d.done:
		return nil
	case <-expired:
		return fmt.Errorf("drop %s: %w after %s", d.uid, ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits for every drop to finish under one shared timeout.
func WaitAll(ctx context.Context, timeout time.Duration, drops ...*Drop) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for i, d := range drops {
		select {
		case <-d.done:
		case <-expired:
			pending := 0
			for _, rest := range drops[i:] {
				select {
				case <-rest.done:
				default:
					pending++
				}
			}
			if pending == 0 {
				return nil
			}
			return fmt.Errorf("%w: %d of %d drops unfinished after %s", ErrTimeout, pending, len(drops), timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
