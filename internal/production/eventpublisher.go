package production

import (
	"context"
	"time"

	"github.com/comalice/scxmlrt/internal/queue"
)

// SessionMetadata describes the transition a published event rode in on,
// replacing the teacher's MachineMetadata now that a "machine" is a
// Session (see root package Driver/Session).
type SessionMetadata struct {
	SessionID  string
	Transition string
	Timestamp  time.Time
}

// EventPublisher observes every event a session processes, for an embedder
// wiring this engine's traffic into its own message bus or audit log.
type EventPublisher interface {
	Publish(ctx context.Context, event queue.Event, metadata SessionMetadata) error
	Close() error
}

// PublishedEvent bundles an event with its session metadata for publishing.
type PublishedEvent struct {
	Event    queue.Event
	Metadata SessionMetadata
}

// ChannelPublisher is a stdlib-only implementation that forwards events to
// a Go channel. Non-blocking publish with drop on backpressure, matching
// how internal/queue's own external queue prefers dropping over blocking
// the interpreter loop.
type ChannelPublisher struct {
	ch chan<- PublishedEvent
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- PublishedEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event queue.Event, metadata SessionMetadata) error {
	select {
	case p.ch <- PublishedEvent{Event: event, Metadata: metadata}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil // non-blocking drop
	}
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
