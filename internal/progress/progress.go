// Package progress carries ordered status events from a long-running publish
// operation to whoever started it.
//
// Delivery is best-effort. A consumer may detach at any time (a closed SSE
// connection, for instance); the operation keeps running and its outcome is
// still persisted, but later events are dropped. Every operation ends with
// exactly one terminal event, complete or error.
package progress

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type EventType string

const (
	EventUploading  EventType = "uploading"
	EventProcessing EventType = "processing"
	EventPosting    EventType = "posting"
	EventPosted     EventType = "posted"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

type Event struct {
	Type     EventType `json:"type"`
	Segment  int       `json:"segment,omitempty"`
	Total    int       `json:"total,omitempty"`
	Percent  int       `json:"percent,omitempty"`
	TweetID  string    `json:"tweet_id,omitempty"`
	Text     string    `json:"text,omitempty"`
	Message  string    `json:"message,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	PostID   int64     `json:"post_id,omitempty"`
	Position *int      `json:"position,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func Uploading(segment, total int) Event {
	percent := 100
	if total > 0 {
		percent = segment * 100 / total
	}
	return Event{Type: EventUploading, Segment: segment, Total: total, Percent: percent}
}

func Processing() Event { return Event{Type: EventProcessing} }

func Posting() Event { return Event{Type: EventPosting} }

func Complete(tweetID, text string) Event {
	return Event{Type: EventComplete, TweetID: tweetID, Text: text}
}

func Error(message, reason string) Event {
	return Event{Type: EventError, Message: message, Reason: reason}
}

// Emitter accepts events for one operation. Send reports whether the event
// was accepted; it never blocks once the consumer has gone away.
type Emitter interface {
	Send(e Event) bool
}

// Stream is a channel-backed Emitter consumed by a single reader.
type Stream struct {
	id       string
	mu       sync.Mutex
	events   chan Event
	detached chan struct{}
	detach   sync.Once
	finished bool
}

func NewStream(buffer int) *Stream {
	id, err := gonanoid.New()
	if err != nil {
		id = "unknown"
	}
	return &Stream{
		id:       id,
		events:   make(chan Event, buffer),
		detached: make(chan struct{}),
	}
}

// ID identifies the operation for logs.
func (s *Stream) ID() string { return s.id }

// Events is closed after the terminal event has been queued.
func (s *Stream) Events() <-chan Event { return s.events }

// Send queues e in order. Events after the terminal one are ignored.
func (s *Stream) Send(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	if e.Terminal() {
		s.finished = true
		defer close(s.events)
	}

	select {
	case s.events <- e:
		return true
	case <-s.detached:
		return false
	}
}

// Detach tells the stream its consumer is gone. Pending and future sends
// return immediately.
func (s *Stream) Detach() {
	s.detach.Do(func() { close(s.detached) })
}

func (s *Stream) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

type discard struct{}

func (discard) Send(Event) bool { return true }

// Discard drops every event. Used for background publishes with no caller.
var Discard Emitter = discard{}

type memberEmitter struct {
	parent   Emitter
	postID   int64
	position int
}

// Member forwards a thread member's non-terminal events to parent, tagged
// with the member's post id and position. Terminal events are swallowed so
// the thread decides how the whole operation ends.
func Member(parent Emitter, postID int64, position int) Emitter {
	return &memberEmitter{parent: parent, postID: postID, position: position}
}

func (m *memberEmitter) Send(e Event) bool {
	if e.Terminal() {
		return false
	}
	return m.parent.Send(Tag(e, m.postID, m.position))
}

// Tag attaches thread member coordinates to e.
func Tag(e Event, postID int64, position int) Event {
	pos := position
	e.PostID = postID
	e.Position = &pos
	return e
}
