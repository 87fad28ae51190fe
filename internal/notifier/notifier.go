// Package notifier pushes every newly captured lead to the configured
// Telegram chats. It is a regular live-feed consumer.
package notifier

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"comingsoon/internal/feed"
	"comingsoon/internal/model"
	"comingsoon/internal/telegram"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Feed opens live-feed subscriptions over a source.
type Feed interface {
	Source() feed.Source
	Subscribe(ctx context.Context) (*feed.Subscription, error)
}

// Recorder counts delivered notifications.
type Recorder interface {
	NotificationSent()
}

type nopRecorder struct{}

func (nopRecorder) NotificationSent() {}

// Notifier watches the live feed and announces leads that arrive after it starts.
type Notifier struct {
	feed   Feed
	sender Sender
	chats  []int64
	log    *slog.Logger
	rec    Recorder
	pause  time.Duration
}

// New creates a Notifier sending to chats.
func New(f Feed, sender Sender, chats []int64, log *slog.Logger) *Notifier {
	return &Notifier{
		feed:   f,
		sender: sender,
		chats:  chats,
		log:    log,
		rec:    nopRecorder{},
		pause:  50 * time.Millisecond,
	}
}

// SetRecorder installs a metrics recorder.
func (n *Notifier) SetRecorder(r Recorder) {
	n.rec = r
}

// SetSendPause overrides the pause between two outgoing messages.
func (n *Notifier) SetSendPause(d time.Duration) {
	n.pause = d
}

// Run blocks until ctx is cancelled or the feed fails. Leads already stored
// when Run starts are not announced. A feed failure is returned and not
// retried.
func (n *Notifier) Run(ctx context.Context) error {
	rev, err := n.feed.Source().Revision(ctx)
	if err != nil {
		return &feed.FeedError{Op: "revision", Err: err}
	}
	baseline := rev.LastID

	sub, err := n.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	n.log.Info("lead notifications started", "chats", len(n.chats), "after_seq", baseline)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.Snapshots():
			if !ok {
				if err := sub.Err(); err != nil {
					n.log.Error("lead notifications stopped", "error", err)
					return err
				}
				return nil
			}
			baseline = n.announce(ctx, snap.Records, baseline)
		}
	}
}

func (n *Notifier) announce(ctx context.Context, records []model.DisplayRecord, baseline int64) int64 {
	fresh := newSince(records, baseline)
	for _, rec := range fresh {
		if ctx.Err() != nil {
			return baseline
		}
		msg := telegram.FormatNotification(rec)
		for _, chatID := range n.chats {
			n.sender.SendMessage(chatID, msg)
			n.rec.NotificationSent()
			if n.pause > 0 {
				// Telegram allows about 20 messages per second per bot.
				select {
				case <-ctx.Done():
					return baseline
				case <-time.After(n.pause):
				}
			}
		}
		baseline = rec.Seq
	}
	if len(fresh) > 0 {
		n.log.Info("sent lead notifications", "count", len(fresh))
	}
	return baseline
}

// newSince returns the records with Seq above baseline, oldest first.
func newSince(records []model.DisplayRecord, baseline int64) []model.DisplayRecord {
	var fresh []model.DisplayRecord
	for _, r := range records {
		if r.Seq > baseline {
			fresh = append(fresh, r)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Seq < fresh[j].Seq })
	return fresh
}
