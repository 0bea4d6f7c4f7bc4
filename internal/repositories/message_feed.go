package repositories

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"
	"golang.org/x/time/rate"

	"inbox-service/internal/models"
)

// MessagesChannel is the NOTIFY channel the messages trigger publishes on.
const MessagesChannel = "messages_changed"

// PGFeed implements MessageFeed with LISTEN/NOTIFY plus a periodic resync.
type PGFeed struct {
	dsn      string
	messages MessageRepository
	resync   time.Duration
	minGap   time.Duration
}

// NewPGFeed builds a feed reading snapshots through messages.
func NewPGFeed(dsn string, messages MessageRepository, resync time.Duration) *PGFeed {
	if resync <= 0 {
		resync = 30 * time.Second
	}
	return &PGFeed{dsn: dsn, messages: messages, resync: resync, minGap: 200 * time.Millisecond}
}

// Open starts listening for changes that concern userID.
func (f *PGFeed) Open(ctx context.Context, userID string) (MessageStream, error) {
	listener := pq.NewListener(f.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("pg listener event=%d user_id=%s err=%v", ev, userID, err)
		}
	})
	if err := listener.Listen(MessagesChannel); err != nil {
		_ = listener.Close()
		return nil, wrapPG(fmt.Errorf("listen %s: %w", MessagesChannel, err), "open feed")
	}
	return &pgStream{
		listener: listener,
		notify:   listener.Notify,
		messages: f.messages,
		userID:   userID,
		ticker:   time.NewTicker(f.resync),
		limiter:  rate.NewLimiter(rate.Every(f.minGap), 1),
		first:    true,
	}, nil
}

// listenerConn is the part of *pq.Listener a stream drives.
type listenerConn interface {
	Ping() error
	Close() error
}

type pgStream struct {
	listener listenerConn
	notify   <-chan *pq.Notification
	messages MessageRepository
	userID   string
	ticker   *time.Ticker
	limiter  *rate.Limiter
	first    bool
}

// Next blocks until a relevant change, a reconnect or the resync tick,
// then returns a fresh snapshot.
func (s *pgStream) Next(ctx context.Context) ([]models.Message, error) {
	if !s.first {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
	s.first = false

	// bursts of notifications collapse into one query
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.drain()
	return s.messages.ListMessagesForUser(ctx, s.userID)
}

func (s *pgStream) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-s.notify:
			if !ok {
				return fmt.Errorf("%w: listener closed", ErrUnavailable)
			}
			// nil is delivered after the listener reconnected; changes may have been missed
			if n == nil || notificationConcerns(n.Extra, s.userID) {
				return nil
			}
		case <-s.ticker.C:
			// the listener reconnects on its own; a failed ping only gets logged
			if err := s.listener.Ping(); err != nil {
				log.Printf("pg listener ping failed user_id=%s err=%v", s.userID, err)
			}
			return nil
		}
	}
}

func (s *pgStream) drain() {
	for {
		select {
		case _, ok := <-s.notify:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (s *pgStream) Close() error {
	s.ticker.Stop()
	return s.listener.Close()
}

// notificationConcerns checks a "sender,receiver" payload against userID.
func notificationConcerns(payload, userID string) bool {
	for _, id := range strings.Split(payload, ",") {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}
