package synchronizer

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"inbox-service/internal/models"
	"inbox-service/internal/observability"
	"inbox-service/internal/repositories"
)

// SubscribeOptions tunes reconnect behaviour of a Subscription.
type SubscribeOptions struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o SubscribeOptions) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if o.InitialBackoff > 0 {
		b.InitialInterval = o.InitialBackoff
	}
	if o.MaxBackoff > 0 {
		b.MaxInterval = o.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Subscription is a live, restartable view of a viewer's conversations.
// Updates carries the newest list only; a slow reader skips intermediate lists.
type Subscription struct {
	updates chan []models.Conversation
	cancel  context.CancelFunc
	done    chan struct{}
}

// Subscribe starts consuming feed for the viewer until ctx ends or Close is called.
// Feed failures keep the last known-good list and reconnect with backoff.
func (s *Synchronizer) Subscribe(ctx context.Context, feed repositories.MessageFeed, opts SubscribeOptions) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		updates: make(chan []models.Conversation, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go sub.run(ctx, s, feed, opts.backoff())
	return sub
}

// Updates delivers conversation lists; it is closed when the subscription ends.
func (sub *Subscription) Updates() <-chan []models.Conversation {
	return sub.updates
}

// Done is closed once the subscription goroutine has exited.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Close cancels the subscription and waits for it to stop.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}

func (sub *Subscription) run(ctx context.Context, s *Synchronizer, feed repositories.MessageFeed, b *backoff.ExponentialBackOff) {
	defer close(sub.done)
	defer close(sub.updates)

	if err := s.requireViewer("subscribe"); err != nil {
		log.Printf("inbox subscription refused err=%v", err)
		return
	}

	for {
		err := sub.consume(ctx, s, feed, b)
		if ctx.Err() != nil {
			return
		}
		kind := KindOf(err)
		if kind == KindUnauthorized {
			log.Printf("inbox subscription stopped user_id=%s err=%v", s.viewerID, err)
			return
		}

		wait := b.NextBackOff()
		observability.IncFeedReconnect(string(kind))
		log.Printf("inbox feed interrupted user_id=%s kind=%s retry_in=%s err=%v", s.viewerID, kind, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (sub *Subscription) consume(ctx context.Context, s *Synchronizer, feed repositories.MessageFeed, b *backoff.ExponentialBackOff) error {
	stream, err := feed.Open(ctx, s.viewerID)
	if err != nil {
		return classify("open feed", err)
	}
	defer stream.Close()

	for {
		msgs, err := stream.Next(ctx)
		if err != nil {
			return classify("read feed", err)
		}
		b.Reset()
		sub.publish(s.Ingest(msgs))
	}
}

func (sub *Subscription) publish(convs []models.Conversation) {
	select {
	case sub.updates <- convs:
		return
	default:
	}
	// replace the unread stale list
	select {
	case <-sub.updates:
	default:
	}
	select {
	case sub.updates <- convs:
	default:
	}
}
