package realtime

import "testing"

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe("thread-1", "chat")
	defer sub.Close()

	b.Publish("thread-1", "chat", "m1")
	b.Publish("thread-1", "chat", "m2")

	sig1 := <-sub.C()
	sig2 := <-sub.C()
	if sig1.Kind != SignalMessage || sig1.Message != "m1" {
		t.Fatalf("expected m1, got %+v", sig1)
	}
	if sig2.Kind != SignalMessage || sig2.Message != "m2" {
		t.Fatalf("expected m2, got %+v", sig2)
	}
}

func TestLaggedSignalOnFullChannel(t *testing.T) {
	b := New(2, nil)
	sub := b.Subscribe("thread-1", "chat")
	defer sub.Close()

	// Fill the channel past capacity without draining it.
	for i := 0; i < 5; i++ {
		b.Publish("thread-1", "chat", i)
	}

	// First two signals are the buffered messages; the next should be Lagged.
	s1 := <-sub.C()
	s2 := <-sub.C()
	s3 := <-sub.C()
	if s1.Kind != SignalMessage || s2.Kind != SignalMessage {
		t.Fatalf("expected first two signals to be messages, got %+v %+v", s1, s2)
	}
	if s3.Kind != SignalLagged {
		t.Fatalf("expected Lagged signal once buffer saturates, got %+v", s3)
	}
}

func TestSubscribeUnknownTopicPublishIsNoop(t *testing.T) {
	b := New(4, nil)
	b.Publish("no-subscribers", "chat", "ignored") // must not panic
}

func TestCloseTopicSignalsClosed(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe("thread-1", "chat")

	b.CloseTopic("thread-1")

	sig, ok := <-sub.C()
	if !ok {
		t.Fatal("expected a Closed signal before channel close")
	}
	if sig.Kind != SignalClosed {
		t.Fatalf("expected Closed, got %+v", sig)
	}
	if _, stillOpen := <-sub.C(); stillOpen {
		t.Fatal("channel should be closed after CloseTopic")
	}
}
