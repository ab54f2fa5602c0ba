// Package notify carries realtime match and message events to interested
// clients without polling.
package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/oggyb/buildermatch/internal/db"
)

type EventKind string

const (
	EventMatchCreated EventKind = "match_created"
	EventMessage      EventKind = "message"
)

// Event is one inserted row pushed to subscribers.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Match   *db.Match   `json:"match,omitempty"`
	Message *db.Message `json:"message,omitempty"`
	// Unread is the recipient's unread count for the match after this event.
	// Set only on inbox message events.
	Unread int64     `json:"unread,omitempty"`
	At     time.Time `json:"at"`
}

// Broker fans events out to topic subscribers.
type Broker interface {
	Publish(ctx context.Context, topic string, ev Event) error
	// Subscribe registers fn for topic. The returned func removes it.
	Subscribe(topic string, fn func(Event)) (unsubscribe func() error, err error)
	Close() error
}

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("broker closed")

// UserTopic is the per-user inbox: new matches and incoming messages.
func UserTopic(userID string) string {
	return "buildermatch.inbox." + token(userID)
}

// MatchTopic carries every message inserted into one match.
func MatchTopic(matchID string) string {
	return "buildermatch.messages." + token(matchID)
}

// token encodes id as one subject token. Distinct ids give distinct tokens.
func token(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// Subscription is a scoped registration on a broker topic.
// Stop is safe to call any number of times and runs automatically when the
// context passed to Start ends.
type Subscription struct {
	unsubscribe func() error
	once        sync.Once
	err         error
	done        chan struct{}
}

// Start subscribes onEvent to topic for as long as ctx lives or until Stop.
func Start(ctx context.Context, b Broker, topic string, onEvent func(Event)) (*Subscription, error) {
	if b == nil {
		return nil, errors.New("nil broker")
	}
	if onEvent == nil {
		return nil, errors.New("nil handler")
	}

	unsub, err := b.Subscribe(topic, onEvent)
	if err != nil {
		return nil, err
	}

	s := &Subscription{unsubscribe: unsub, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.done:
		}
	}()
	return s, nil
}

// Stop releases the subscription. Later calls return the first result.
func (s *Subscription) Stop() error {
	s.once.Do(func() {
		s.err = s.unsubscribe()
		close(s.done)
	})
	return s.err
}

// Done is closed once the subscription has been released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
