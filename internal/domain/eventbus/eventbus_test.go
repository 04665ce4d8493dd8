package eventbus

import (
	"testing"
	"time"

	"voxd-server/internal/platform/logging"
)

func TestBus_PublishSubscribeRoundTrip(t *testing.T) {
	bus := New()

	received := make(chan TranscriptEventData, 1)
	if err := bus.Subscribe(EventTranscriptResult, func(data TranscriptEventData) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.Publish(EventTranscriptResult, TranscriptEventData{SessionID: "s1", Text: "hello"})

	select {
	case data := <-received:
		if data.SessionID != "s1" || data.Text != "hello" {
			t.Fatalf("unexpected payload: %+v", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestAsyncEventBus_PublishAsyncDeliversOffGoroutine(t *testing.T) {
	bus := NewAsyncEventBus(2)
	bus.Start()
	defer bus.Stop()

	received := make(chan BackendEventData, 1)
	if err := bus.SubscribeAsync(EventBackendDead, func(data BackendEventData) {
		received <- data
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	bus.PublishAsync(EventBackendDead, BackendEventData{RestartCount: 5, Message: "exhausted"})

	select {
	case data := <-received:
		if data.RestartCount != 5 {
			t.Fatalf("unexpected restart count: %d", data.RestartCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async event")
	}
}

func TestAsyncEventBus_DropsWhenQueueFull(t *testing.T) {
	bus := NewAsyncEventBus(1)
	// Workers are never started, so the fixed-size queue eventually
	// fills and the dropped hook fires for the overflow events.
	dropped := make(chan string, 16)
	// 1100 publishes into a 1000-slot queue drop 100 events, more than
	// the dropped channel holds, so the hook must not block.
	bus.OnDropped(func(topic string) {
		select {
		case dropped <- topic:
		default:
		}
	})

	for i := 0; i < 1100; i++ {
		bus.PublishAsync("topic:overflow", i)
	}

	select {
	case topic := <-dropped:
		if topic != "topic:overflow" {
			t.Fatalf("unexpected dropped topic: %q", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("expected at least one dropped event once the queue filled")
	}
}

func TestLogHandler_InstallSubscribesWithoutError(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "INFO"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer logger.Close()

	bus := New()
	h := NewLogHandler(logger)
	h.Install(bus.Subscribe)

	bus.Publish(EventTranscriptResult, TranscriptEventData{SessionID: "s1", Text: "hi"})
	bus.Publish(EventBackendDead, BackendEventData{RestartCount: 1, Message: "dead"})
}
