package events

import (
	"testing"
	"time"
)

func TestPublishDelivers(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(CheckFinished, CheckFinishedEvent{RunID: "r1", Check: "power-use", Status: "pass"})

	select {
	case ev := <-ch:
		if ev.Name != CheckFinished {
			t.Fatalf("Name = %q", ev.Name)
		}
		got, err := DecodeAs[CheckFinishedEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs() error = %v", err)
		}
		if got.RunID != "r1" || got.Check != "power-use" || got.Status != "pass" {
			t.Errorf("payload = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			h.Publish(RunStarted, RunStartedEvent{RunID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", got, subscriberBuffer)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	if got := h.Subscribers(); got != 1 {
		t.Fatalf("Subscribers() = %d, want 1", got)
	}
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if got := h.Subscribers(); got != 0 {
		t.Errorf("Subscribers() = %d, want 0", got)
	}
	h.Publish(RunFinished, RunFinishedEvent{RunID: "r"})

	var nilHub *EventHub
	nilHub.Publish(RunFinished, nil)
}

func TestDecodeAsEmpty(t *testing.T) {
	got, err := DecodeAs[RunFinishedEvent](Event{Name: RunFinished})
	if err != nil || got.RunID != "" {
		t.Errorf("DecodeAs() = %+v, %v", got, err)
	}
	if _, err := DecodeAs[RunFinishedEvent](Event{Data: []byte("{")}); err == nil {
		t.Error("DecodeAs() error = nil for bad JSON")
	}
}
