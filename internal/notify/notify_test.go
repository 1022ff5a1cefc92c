package notify

import (
	"sync"
	"testing"
	"time"
)

func TestPublish_NoSubscribers(t *testing.T) {
	n := New(4)
	n.Publish(Event{Kind: CellUpdated, Year: "2023-2024"})
	if n.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", n.Dropped())
	}
}

func TestSubscribe_ReceivesEvent(t *testing.T) {
	n := New(4)
	sub := n.Subscribe("cache")

	n.Publish(Event{Kind: FileReplaced, Year: "2023-2024", ETag: "abc"})

	select {
	case e := <-sub.Ch:
		if e.Year != "2023-2024" || e.Kind != FileReplaced || e.ETag != "abc" {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.At.IsZero() {
			t.Fatal("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestSubscribe_YearFilter(t *testing.T) {
	n := New(4)
	sub := n.Subscribe("", "2022-2023")
	if sub.ID == "" {
		t.Fatal("expected generated ID")
	}

	n.Publish(Event{Year: "2023-2024"})
	n.Publish(Event{Year: "2022-2023"})

	e := <-sub.Ch
	if e.Year != "2022-2023" {
		t.Fatalf("expected filtered event for 2022-2023, got %s", e.Year)
	}
	select {
	case e := <-sub.Ch:
		t.Fatalf("unexpected extra event %+v", e)
	default:
	}
}

func TestPublish_FullBufferDrops(t *testing.T) {
	n := New(1)
	sub := n.Subscribe("slow")

	n.Publish(Event{Year: "2023-2024"})
	n.Publish(Event{Year: "2023-2024"})

	if got := n.Dropped(); got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}
	if len(sub.Ch) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(sub.Ch))
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	n := New(4)
	sub := n.Subscribe("gone")
	n.Unsubscribe("gone")

	if _, ok := <-sub.Ch; ok {
		t.Fatal("expected closed channel")
	}
	// Publishing after unsubscribe must not panic.
	n.Publish(Event{Year: "2023-2024"})
	n.Unsubscribe("gone")
}

func TestResubscribe_ClosesPreviousChannel(t *testing.T) {
	n := New(4)
	first := n.Subscribe("dup")
	second := n.Subscribe("dup")

	if _, ok := <-first.Ch; ok {
		t.Fatal("expected first channel closed")
	}
	n.Publish(Event{Year: "2023-2024"})
	if len(second.Ch) != 1 {
		t.Fatal("expected second subscriber to receive the event")
	}
}

func TestConcurrentPublish(t *testing.T) {
	n := New(1000)
	sub := n.Subscribe("all")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				n.Publish(Event{Year: "2023-2024"})
			}
		}()
	}
	wg.Wait()

	if len(sub.Ch) != 500 {
		t.Fatalf("expected 500 events, got %d", len(sub.Ch))
	}
	n.Close()
	if _, ok := <-sub.Ch; !ok {
		t.Fatal("buffered events should still drain after close")
	}
}
