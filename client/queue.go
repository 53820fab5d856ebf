package client

import "context"

// actionQueue serializes a session's outbound operations through one
// single-flight slot, per spec.md §4.3. query and connect use TryEnter and
// are rejected outright with BusyKind when an action is already in
// flight; every other operation uses Enter and waits its turn. Grounded
// on the teacher's action-method-bound-to-session pattern, re-architected
// per spec.md §9's guidance into an explicit queue rather than
// self-capturing closures.
type actionQueue struct {
	slot chan struct{}
}

// newActionQueue returns an empty (available) action queue.
func newActionQueue() *actionQueue {
	q := &actionQueue{slot: make(chan struct{}, 1)}
	q.slot <- struct{}{}
	return q
}

// TryEnter attempts to claim the single-flight slot without waiting. It
// returns false immediately if an action is already in flight — the
// policy query and connect use.
func (q *actionQueue) TryEnter() bool {
	select {
	case <-q.slot:
		return true
	default:
		return false
	}
}

// Enter claims the slot, waiting (FIFO with respect to channel order) for
// it to become free, or returns ctx.Err() if ctx is done first.
func (q *actionQueue) Enter(ctx context.Context) error {
	select {
	case <-q.slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave releases the slot for the next waiting action.
func (q *actionQueue) Leave() {
	q.slot <- struct{}{}
}

// IsBusy reports whether the slot is currently held, without claiming it.
func (q *actionQueue) IsBusy() bool {
	select {
	case <-q.slot:
		q.slot <- struct{}{}
		return false
	default:
		return true
	}
}
