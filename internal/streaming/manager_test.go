package streaming

import (
	"testing"
	"time"
)

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	m := Get()
	ref := "exec-pubsub"

	ch := m.Subscribe(ref, 8)
	defer m.Unsubscribe(ref, ch)

	m.Publish(ref, Event{Type: EventInvocationStarted, AgentID: "decomposer"})
	m.Publish(ref, Event{Type: EventInvocationCompleted, DecompositionID: "d-1"})

	first := recvEvent(t, ch)
	if first.Type != EventInvocationStarted || first.ExecutionRef != ref {
		t.Errorf("first event = %+v", first)
	}
	if first.Timestamp.IsZero() {
		t.Error("publish must stamp events")
	}

	second := recvEvent(t, ch)
	if second.Type != EventInvocationCompleted || second.DecompositionID != "d-1" {
		t.Errorf("second event = %+v", second)
	}
	if second.Seq != first.Seq+1 {
		t.Errorf("seq not monotonic: %d then %d", first.Seq, second.Seq)
	}
}

func TestReplaySince(t *testing.T) {
	m := Get()
	ref := "exec-replay"

	for i := 0; i < 5; i++ {
		m.Publish(ref, Event{Type: EventNodesEmitted})
	}

	// Seqs start at 1, so since=0 means the full history.
	all := m.ReplaySince(ref, 0)
	if len(all) != 5 {
		t.Fatalf("replay since 0 returned %d events, want all 5", len(all))
	}
	for i, ev := range all {
		if ev.Seq != uint64(i+1) {
			t.Errorf("event %d has seq %d, want %d", i, ev.Seq, i+1)
		}
	}

	if got := m.ReplaySince(ref, 2); len(got) != 3 {
		t.Errorf("replay since 2 returned %d events, want 3", len(got))
	}
	if got := m.ReplaySince(ref, 99); len(got) != 0 {
		t.Errorf("replay past the end returned %d events", len(got))
	}
	if got := m.ReplaySince("exec-unknown", 0); got != nil {
		t.Errorf("unknown ref replay = %v, want nil", got)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	m := Get()
	ref := "exec-slow"

	ch := m.Subscribe(ref, 1)
	defer m.Unsubscribe(ref, ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish(ref, Event{Type: EventNodesEmitted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestRingOverwrite(t *testing.T) {
	r := newRing(3)
	for i := uint64(0); i < 5; i++ {
		r.push(Event{Seq: i})
	}
	got := r.since(0)
	if len(got) != 3 {
		t.Fatalf("ring kept %d events, want 3", len(got))
	}
	if got[0].Seq != 2 || got[2].Seq != 4 {
		t.Errorf("ring window = %+v, want seqs 2..4", got)
	}
}

func TestPublishDuringUnsubscribe(t *testing.T) {
	m := Get()
	ref := "exec-churn"

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			ch := m.Subscribe(ref, 1)
			m.Unsubscribe(ref, ch)
		}
	}()

	// Must never panic on a send to a just-closed channel.
	for i := 0; i < 200; i++ {
		m.Publish(ref, Event{Type: EventNodesEmitted})
	}
	<-done
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := Get()
	ref := "exec-close"

	ch := m.Subscribe(ref, 1)
	m.Unsubscribe(ref, ch)

	if _, open := <-ch; open {
		t.Error("unsubscribed channel must be closed")
	}
}
