package feed

import (
	"context"
	"sync"
	"time"

	"comingsoon/internal/model"
)

// Subscription is one standing query. Snapshots delivers full snapshots,
// newest state only: a snapshot nobody has read yet is replaced, never merged.
// The channel is closed when the subscription ends, after which Err reports
// why. A failed subscription stays failed.
type Subscription struct {
	w         *Watcher
	snapshots chan Snapshot
	wake      chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// Snapshots returns the channel of full snapshots.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.snapshots
}

// Done is closed once the subscription has stopped and released its query.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the *FeedError that ended the subscription, or nil if it was
// closed by its owner or is still running.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the standing query and waits for it to stop. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) run(ctx context.Context, last model.Revision) {
	defer close(s.done)
	defer s.w.remove(s)
	defer close(s.snapshots)

	ticker := time.NewTicker(s.w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}

		rev, err := s.w.src.Revision(ctx)
		if err != nil {
			s.fail(ctx, &FeedError{Op: "revision", Err: err})
			return
		}
		if rev == last {
			continue
		}

		snap, err := Load(ctx, s.w.src)
		s.w.rec.FeedSnapshot(err == nil)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		last = snap.Revision

		if !s.deliver(ctx, snap) {
			return
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, snap Snapshot) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case s.snapshots <- snap:
			return true
		default:
		}
		select {
		case <-s.snapshots:
		default:
		}
	}
}

func (s *Subscription) fail(ctx context.Context, err error) {
	// Errors caused by the owner releasing the subscription are not failures.
	if ctx.Err() != nil {
		return
	}
	s.w.log.Error("feed subscription failed", "error", err)
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
