package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestRedisQueue_PublishAndConsumeImmediate(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan StartPayload, 1)
	go q.Consume(ctx, QueueStart, 20*time.Millisecond, func(_ context.Context, msg Message) error {
		var p StartPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Errorf("unmarshal payload: %v", err)
			return nil
		}
		received <- p
		return nil
	})

	if err := q.Publish(ctx, QueueStart, StartPayload{IndexerID: "abc", Attempt: 1}, 0); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case p := <-received:
		if p.IndexerID != "abc" || p.Attempt != 1 {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected message to be consumed")
	}
}

func TestRedisQueue_DelayedDelivery(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	received := make(chan time.Time, 1)
	go q.Consume(ctx, QueueStart, 20*time.Millisecond, func(_ context.Context, msg Message) error {
		received <- time.Now()
		return nil
	})

	if err := q.Publish(ctx, QueueStart, StartPayload{IndexerID: "abc"}, 150*time.Millisecond); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Sub(start) < 100*time.Millisecond {
			t.Fatalf("message delivered too early: %v", got.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected delayed message to be consumed")
	}
}

func TestRedisQueue_FailedHandlerIsRedelivered(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	go q.Consume(ctx, QueueFail, 20*time.Millisecond, func(_ context.Context, msg Message) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return errStub
		}
		close(done)
		return nil
	})

	if err := q.Publish(ctx, QueueFail, FailPayload{IndexerID: "xyz"}, 0); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
		mu.Lock()
		defer mu.Unlock()
		if attempts != 2 {
			t.Fatalf("expected exactly 2 attempts, got %d", attempts)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("expected handler to be retried after failure")
	}
}

func TestRedisQueue_WakeDeliversFasterThanPollInterval(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	received := make(chan time.Time, 1)
	// A long poll interval means the ticker alone wouldn't deliver within
	// the test's deadline; only the BRPOP wake subscription can.
	go q.Consume(ctx, QueueStart, 10*time.Second, func(_ context.Context, msg Message) error {
		received <- time.Now()
		return nil
	})

	// Give the wake subscription goroutine time to start blocking on BRPOP.
	time.Sleep(50 * time.Millisecond)

	if err := q.Publish(ctx, QueueStart, StartPayload{IndexerID: "abc"}, 0); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Sub(start) > time.Second {
			t.Fatalf("message delivered too slowly for a wake-driven path: %v", got.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected wake subscription to deliver the message promptly")
	}
}

func TestRedisQueue_PublishBeforeConsumeIsNotLost(t *testing.T) {
	client := newTestRedisClient(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, QueueStart, StartPayload{IndexerID: "early"}, 0); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	received := make(chan StartPayload, 1)
	go q.Consume(ctx, QueueStart, 10*time.Second, func(_ context.Context, msg Message) error {
		var p StartPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			t.Errorf("unmarshal payload: %v", err)
			return nil
		}
		received <- p
		return nil
	})

	select {
	case p := <-received:
		if p.IndexerID != "early" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the wake list's persisted push to be picked up once Consume starts")
	}
}

type stubError string

func (e stubError) Error() string { return string(e) }

var errStub = stubError("handler failed")
