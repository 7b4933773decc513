package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBasicPublishSubscribe(t *testing.T) {
	subject := NewSubject()
	defer Complete(subject)

	received := make(chan StatusChangedEvent, 1)
	sub := Subscribe[StatusChangedEvent](subject, TopicStatusChanged, func(ctx context.Context, evt StatusChangedEvent) error {
		received <- evt
		return nil
	})
	defer sub.Unsubscribe()

	err := Publish[StatusChangedEvent](subject, TopicStatusChanged, StatusChangedEvent{
		From: "disconnected", To: "connecting",
	})
	if err != nil {
		t.Fatalf("Failed to publish event: %v", err)
	}

	select {
	case got := <-received:
		if got.From != "disconnected" || got.To != "connecting" {
			t.Errorf("Expected {disconnected, connecting}, got %+v", got)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Event not received within timeout")
	}
}

func TestTypeSafety(t *testing.T) {
	subject := NewSubject()
	defer Complete(subject)

	statusReceived := make(chan StatusChangedEvent, 1)
	Subscribe[StatusChangedEvent](subject, "shared.topic", func(ctx context.Context, evt StatusChangedEvent) error {
		statusReceived <- evt
		return nil
	})

	toastReceived := make(chan ToastEvent, 1)
	Subscribe[ToastEvent](subject, "shared.topic", func(ctx context.Context, evt ToastEvent) error {
		toastReceived <- evt
		return nil
	})

	// A ToastEvent on the shared topic must only reach the ToastEvent
	// subscriber.
	if err := Publish[ToastEvent](subject, "shared.topic", ToastEvent{Level: ToastError, Message: "boom"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case got := <-toastReceived:
		if got.Message != "boom" {
			t.Errorf("Expected boom, got %+v", got)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("ToastEvent not received within timeout")
	}

	select {
	case got := <-statusReceived:
		t.Errorf("StatusChangedEvent subscriber received foreign event: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTopicIsolation(t *testing.T) {
	subject := NewSubject()
	defer Complete(subject)

	received := make(chan ToastEvent, 1)
	Subscribe[ToastEvent](subject, TopicToast, func(ctx context.Context, evt ToastEvent) error {
		received <- evt
		return nil
	})

	if err := Publish[ToastEvent](subject, "other.topic", ToastEvent{Message: "elsewhere"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case got := <-received:
		t.Errorf("Subscriber received event from another topic: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMultipleSubscribers(t *testing.T) {
	subject := NewSubject()
	defer Complete(subject)

	const subscribers = 3
	var wg sync.WaitGroup
	wg.Add(subscribers)
	for i := 0; i < subscribers; i++ {
		Subscribe[HistoryAppendedEvent](subject, TopicHistoryAppended, func(ctx context.Context, evt HistoryAppendedEvent) error {
			wg.Done()
			return nil
		})
	}

	if err := Publish[HistoryAppendedEvent](subject, TopicHistoryAppended, HistoryAppendedEvent{ID: 1, Method: "tools/list"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Not all subscribers received the event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	subject := NewSubject()
	defer Complete(subject)

	received := make(chan ToastEvent, 2)
	sub := Subscribe[ToastEvent](subject, TopicToast, func(ctx context.Context, evt ToastEvent) error {
		received <- evt
		return nil
	})

	if err := Publish[ToastEvent](subject, TopicToast, ToastEvent{Message: "first"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	select {
	case <-received:
	case <-time.After(1 * time.Second):
		t.Fatal("First event not received")
	}

	sub.Unsubscribe()

	if err := Publish[ToastEvent](subject, TopicToast, ToastEvent{Message: "second"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	select {
	case got := <-received:
		t.Errorf("Received event after unsubscribe: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReplayDeliversRecentEvents(t *testing.T) {
	subject := NewSubject(WithReplay(2))
	defer Complete(subject)

	// Publish before anyone subscribes; only the last two survive.
	for _, to := range []string{"connecting", "connected", "disconnected"} {
		if err := Publish[StatusChangedEvent](subject, TopicStatusChanged, StatusChangedEvent{To: to}); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	received := make(chan StatusChangedEvent, 2)
	Subscribe[StatusChangedEvent](subject, TopicStatusChanged, func(ctx context.Context, evt StatusChangedEvent) error {
		received <- evt
		return nil
	})

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case evt := <-received:
			got = append(got, evt.To)
		case <-time.After(1 * time.Second):
			t.Fatalf("Replayed event %d not received", i)
		}
	}
	if got[0] != "connected" || got[1] != "disconnected" {
		t.Errorf("Expected replay of [connected disconnected], got %v", got)
	}
}

func TestSynchronousDelivery(t *testing.T) {
	subject := NewSubject(WithBufferSize(0))
	defer Complete(subject)

	var delivered bool
	Subscribe[ToastEvent](subject, TopicToast, func(ctx context.Context, evt ToastEvent) error {
		delivered = true
		return nil
	})

	if err := Publish[ToastEvent](subject, TopicToast, ToastEvent{Message: "now"}); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	// With a zero buffer the handler runs inline with Publish.
	if !delivered {
		t.Error("Expected synchronous delivery before Publish returned")
	}
}

func TestPublishAfterComplete(t *testing.T) {
	subject := NewSubject()
	Complete(subject)

	err := Publish[ToastEvent](subject, TopicToast, ToastEvent{Message: "late"})
	if err != ErrCompleted {
		t.Errorf("Expected ErrCompleted, got %v", err)
	}

	// Complete is idempotent.
	Complete(subject)
}
