package progress

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned by Stream when the identifier never appeared within the
// configured wait limit.
var ErrWaitTimeout = errors.New("download id never appeared")

// StreamOptions tunes Stream.
type StreamOptions struct {
	// Interval is the poll tick. Writes to the store wake the stream earlier.
	Interval time.Duration
	// WaitTimeout bounds how long an unknown identifier is waited for. Zero waits forever.
	WaitTimeout time.Duration
}

// Stream relays the states of id to emit until a terminal state is emitted, ctx is cancelled
// or emit fails.
//
// A state is emitted only when it differs from the previously emitted one. Unknown
// identifiers are waited for. A nil return means the terminal state was delivered;
// cancellation returns ctx.Err().
func Stream(ctx context.Context, store *Store, id string, opts StreamOptions, emit func(State) error) error {
	if opts.Interval <= 0 {
		opts.Interval = 200 * time.Millisecond
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time

	if opts.WaitTimeout > 0 {
		timer := time.NewTimer(opts.WaitTimeout)
		defer timer.Stop()

		deadline = timer.C
	}

	var (
		last    State
		emitted bool
	)

	for {
		// Grab the wake channel before reading so a write between Get and select is not lost.
		changed := store.Changed(id)

		state, ok := store.Get(id)
		if ok {
			deadline = nil

			if !emitted || state != last {
				if err := emit(state); err != nil {
					return err
				}

				last = state
				emitted = true
			}

			if state.Status.IsTerminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return ErrWaitTimeout
		case <-changed:
		case <-ticker.C:
		}
	}
}
