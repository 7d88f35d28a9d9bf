package hodl

import (
	"testing"
	"time"
)

// TestResolutionNotifier checks wake-up delivery and unsubscription.
func TestResolutionNotifier(t *testing.T) {
	n := newResolutionNotifier()

	a, cancelA := n.subscribe("key")
	b, cancelB := n.subscribe("key")
	other, cancelOther := n.subscribe("other")
	defer cancelOther()

	// Repeated notifications coalesce and never block.
	for i := 0; i < 3; i++ {
		if woken := n.notify("key"); woken != 2 {
			t.Fatalf("expected 2 subscribers, got %d", woken)
		}
	}

	for _, c := range []<-chan struct{}{a, b} {
		select {
		case <-c:
		case <-time.After(testTimeout):
			t.Fatalf("no wake-up received")
		}
	}

	select {
	case <-other:
		t.Fatalf("unexpected wake-up")
	default:
	}

	cancelA()
	cancelB()
	if woken := n.notify("key"); woken != 0 {
		t.Fatalf("expected no subscribers, got %d", woken)
	}
	if len(n.subscribers) != 1 {
		t.Fatalf("expected empty keys to be removed")
	}
}
