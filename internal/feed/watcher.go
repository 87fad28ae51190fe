package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Recorder receives feed activity for metrics.
type Recorder interface {
	FeedSubscriptions(active int)
	FeedSnapshot(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) FeedSubscriptions(int) {}
func (nopRecorder) FeedSnapshot(bool)     {}

// Watcher hands out standing subscriptions over a Source.
type Watcher struct {
	src      Source
	log      *slog.Logger
	interval time.Duration
	rec      Recorder

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewWatcher creates a Watcher that checks the source every 2 seconds
// in addition to explicit Notify calls.
func NewWatcher(src Source, log *slog.Logger) *Watcher {
	return &Watcher{
		src:      src,
		log:      log,
		interval: 2 * time.Second,
		rec:      nopRecorder{},
		subs:     make(map[*Subscription]struct{}),
	}
}

// SetPollInterval overrides the default revision check interval.
func (w *Watcher) SetPollInterval(d time.Duration) {
	w.interval = d
}

// SetRecorder installs a metrics recorder.
func (w *Watcher) SetRecorder(r Recorder) {
	w.rec = r
}

// Source returns the source the watcher reads from.
func (w *Watcher) Source() Source {
	return w.src
}

// Notify wakes every live subscription so it re-checks the collection now.
func (w *Watcher) Notify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for s := range w.subs {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// SubscribersChanged implements the intake change hook by calling Notify.
func (w *Watcher) SubscribersChanged(context.Context) {
	w.Notify()
}

// Active returns the number of live subscriptions.
func (w *Watcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Subscribe opens a standing query. The first snapshot is loaded before
// Subscribe returns and is already waiting on Snapshots. If it cannot be
// loaded, Subscribe returns a *FeedError and no subscription.
// The caller must Close the subscription, or cancel ctx, to release it.
func (w *Watcher) Subscribe(ctx context.Context) (*Subscription, error) {
	first, err := Load(ctx, w.src)
	w.rec.FeedSnapshot(err == nil)
	if err != nil {
		w.log.Error("activate feed", "error", err)
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		w:         w,
		snapshots: make(chan Snapshot, 1),
		wake:      make(chan struct{}, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.snapshots <- first

	w.mu.Lock()
	w.subs[s] = struct{}{}
	n := len(w.subs)
	w.mu.Unlock()
	w.rec.FeedSubscriptions(n)

	go s.run(subCtx, first.Revision)
	return s, nil
}

func (w *Watcher) remove(s *Subscription) {
	w.mu.Lock()
	delete(w.subs, s)
	n := len(w.subs)
	w.mu.Unlock()
	w.rec.FeedSubscriptions(n)
}
