package realtime

import (
	"errors"
	"testing"
	"time"
)

func TestEventQueue_DeliversInOrder(t *testing.T) {
	q := NewEventQueue(4)
	for _, typ := range []string{"a", "b", "c"} {
		if !q.Push(Event{Type: typ}) {
			t.Fatalf("Expected push of %s to succeed", typ)
		}
	}
	q.Close(nil)

	var got []string
	for ev := range q.Events() {
		got = append(got, ev.Type)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}
	if q.Err() != nil {
		t.Errorf("Expected nil Err after clean close, got %v", q.Err())
	}
}

func TestEventQueue_PushBlocksWhenFull(t *testing.T) {
	q := NewEventQueue(1)
	q.Push(Event{Type: "first"})

	pushed := make(chan bool)
	go func() { pushed <- q.Push(Event{Type: "second"}) }()

	select {
	case <-pushed:
		t.Fatal("Expected push to block on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	if ev := <-q.Events(); ev.Type != "first" {
		t.Errorf("Expected 'first', got '%s'", ev.Type)
	}
	if ok := <-pushed; !ok {
		t.Error("Expected blocked push to complete once consumed")
	}
}

func TestEventQueue_CloseReleasesBlockedPush(t *testing.T) {
	q := NewEventQueue(1)
	q.Push(Event{Type: "first"})

	pushed := make(chan bool)
	go func() { pushed <- q.Push(Event{Type: "second"}) }()
	time.Sleep(20 * time.Millisecond)

	failure := errors.New("peer connection failed")
	q.Close(failure)

	select {
	case ok := <-pushed:
		if ok {
			t.Error("Expected push to report failure after close")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected close to release the blocked push")
	}

	if !errors.Is(q.Err(), failure) {
		t.Errorf("Expected close reason to be kept, got %v", q.Err())
	}
	if q.Push(Event{Type: "late"}) {
		t.Error("Expected push after close to fail")
	}
}

func TestEventQueue_CloseIdempotent(t *testing.T) {
	q := NewEventQueue(1)
	first := errors.New("first")
	q.Close(first)
	q.Close(errors.New("second"))

	if !errors.Is(q.Err(), first) {
		t.Errorf("Expected first close reason to win, got %v", q.Err())
	}
	if !q.Closed() {
		t.Error("Expected queue to report closed")
	}
}
