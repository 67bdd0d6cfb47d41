package production

import (
	"context"
	"testing"
	"time"

	"github.com/comalice/scxmlrt/internal/queue"
)

func TestChannelPublisher_Delivery(t *testing.T) {
	ch := make(chan PublishedEvent, 10)
	p := NewChannelPublisher(ch)

	event := queue.Event{Name: "test-event"}
	meta := SessionMetadata{
		SessionID:  "test-session",
		Transition: "s1 -> s2",
		Timestamp:  time.Now(),
	}

	ctx := context.Background()
	err := p.Publish(ctx, event, meta)
	if err != nil {
		t.Errorf("Publish failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.Event.Name != event.Name {
			t.Errorf("Event name mismatch: got %q, want %q", got.Event.Name, event.Name)
		}
		if got.Metadata.SessionID != meta.SessionID {
			t.Errorf("Metadata SessionID mismatch: got %q, want %q", got.Metadata.SessionID, meta.SessionID)
		}
		if got.Metadata.Transition != meta.Transition {
			t.Errorf("Metadata Transition mismatch: got %q, want %q", got.Metadata.Transition, meta.Transition)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("No event delivered")
	}
}

func TestChannelPublisher_BackpressureDrop(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)
	ch <- PublishedEvent{} // fill buffer

	event := queue.Event{Name: "drop-test"}
	meta := SessionMetadata{SessionID: "test"}

	ctx := context.Background()
	err := p.Publish(ctx, event, meta)
	if err != nil {
		t.Errorf("Publish on full channel failed: %v", err)
	}
	// should drop silently
}

func TestChannelPublisher_Close(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)

	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestChannelPublisher_Integration_PublishMetadata(t *testing.T) {
	publishCh := make(chan PublishedEvent, 10)
	publisher := NewChannelPublisher(publishCh)

	event := queue.Event{Name: "TRANSITION"}
	meta := SessionMetadata{
		SessionID:  "integration-test",
		Transition: "green -> yellow",
		Timestamp:  time.Now(),
	}

	ctx := context.Background()
	err := publisher.Publish(ctx, event, meta)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-publishCh:
		if got.Metadata.Transition != "green -> yellow" {
			t.Errorf("Metadata transition mismatch: got %q, want %q", got.Metadata.Transition, "green -> yellow")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("No published event received")
	}
}
