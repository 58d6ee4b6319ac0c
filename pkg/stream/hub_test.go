package stream

import (
	"testing"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub()
	a := h.Subscribe(4)
	b := h.Subscribe(4)

	h.Publish(NewEvent(EventDecision, map[string]string{"result": "executed"}))

	for name, ch := range map[string]chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Type != EventDecision || evt.At == "" {
				t.Fatalf("subscriber %s got %+v", name, evt)
			}
		default:
			t.Fatalf("subscriber %s missed the event", name)
		}
	}
}

func TestHubSlowSubscriberDropsEvents(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe(1)

	h.Publish(NewEvent(EventRulesChanged, nil))
	h.Publish(NewEvent(EventSettingsChanged, nil)) // buffer full, dropped

	evt := <-slow
	if evt.Type != EventRulesChanged {
		t.Fatalf("first buffered event = %q", evt.Type)
	}
	select {
	case evt := <-slow:
		t.Fatalf("overflow event %q should have been dropped", evt.Type)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(1)

	h.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("unsubscribed channel must be closed")
	}

	// Second unsubscribe is a no-op, not a double close.
	h.Unsubscribe(ch)

	// Publishing after unsubscribe must not panic on the closed channel.
	h.Publish(NewEvent(EventDecision, nil))
}

func TestHubSubscribeDefaultBuffer(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(0)
	if cap(ch) != 32 {
		t.Fatalf("default buffer = %d, want 32", cap(ch))
	}
}
