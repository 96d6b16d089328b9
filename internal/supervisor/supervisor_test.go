package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/indexerhq/controlplane/internal/domain"
	"github.com/indexerhq/controlplane/internal/launcher"
	"github.com/indexerhq/controlplane/internal/queue"
)

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	done  chan struct{}
}

type publishCall struct {
	queue   queue.QueueType
	payload any
	delay   time.Duration
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{done: make(chan struct{}, 1)}
}

func (f *fakePublisher) Publish(_ context.Context, q queue.QueueType, payload any, delay time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, publishCall{queue: q, payload: payload, delay: delay})
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakePublisher) last() publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func spawnScript(t *testing.T, script string) *launcher.Process {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sink-console")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	l := launcher.New(launcher.Config{BinaryBasePath: dir})
	idx := &domain.Indexer{ID: "idx-1", Type: domain.TypeConsole}
	proc, err := l.Spawn(idx, "/tmp/idx-1.js", 9000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	return proc
}

func waitForPublish(t *testing.T, pub *fakePublisher) {
	t.Helper()
	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected supervisor to publish an outcome")
	}
}

func TestSupervisor_CleanExit_PublishesStop(t *testing.T) {
	proc := spawnScript(t, "#!/bin/sh\nexit 0\n")
	pub := newFakePublisher()
	s := New(pub, RetryPolicy{MaxStartRetries: 5, WorkingThreshold: time.Hour})

	idx := &domain.Indexer{ID: "idx-1"}
	s.Supervise(context.Background(), idx, proc, 0)
	waitForPublish(t, pub)

	call := pub.last()
	if call.queue != queue.QueueStop {
		t.Fatalf("expected stop queue, got %s", call.queue)
	}
	payload := call.payload.(queue.StopPayload)
	if payload.Status != domain.StatusStopped {
		t.Fatalf("expected Stopped status, got %s", payload.Status)
	}
}

func TestSupervisor_EarlyFailure_PublishesStartRetry(t *testing.T) {
	proc := spawnScript(t, "#!/bin/sh\nexit 1\n")
	pub := newFakePublisher()
	s := New(pub, RetryPolicy{MaxStartRetries: 5, WorkingThreshold: time.Hour, BaseDelay: time.Second, MaxDelay: time.Minute})

	idx := &domain.Indexer{ID: "idx-1"}
	s.Supervise(context.Background(), idx, proc, 1)
	waitForPublish(t, pub)

	call := pub.last()
	if call.queue != queue.QueueStart {
		t.Fatalf("expected start queue, got %s", call.queue)
	}
	payload := call.payload.(queue.StartPayload)
	if payload.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", payload.Attempt)
	}
	if call.delay <= 0 {
		t.Fatal("expected a nonzero retry delay")
	}
}

func TestSupervisor_RetriesExhausted_PublishesFail(t *testing.T) {
	proc := spawnScript(t, "#!/bin/sh\nexit 1\n")
	pub := newFakePublisher()
	s := New(pub, RetryPolicy{MaxStartRetries: 3, WorkingThreshold: time.Hour})

	idx := &domain.Indexer{ID: "idx-1"}
	s.Supervise(context.Background(), idx, proc, 3)
	waitForPublish(t, pub)

	call := pub.last()
	if call.queue != queue.QueueFail {
		t.Fatalf("expected fail queue, got %s", call.queue)
	}
}

func TestSupervisor_LongLivedThenDied_ResetsRetryBudget(t *testing.T) {
	proc := spawnScript(t, "#!/bin/sh\nsleep 0.2\nexit 1\n")
	pub := newFakePublisher()
	s := New(pub, RetryPolicy{MaxStartRetries: 2, WorkingThreshold: 50 * time.Millisecond})

	idx := &domain.Indexer{ID: "idx-1"}
	s.Supervise(context.Background(), idx, proc, 2)
	waitForPublish(t, pub)

	call := pub.last()
	if call.queue != queue.QueueStart {
		t.Fatalf("expected start queue, got %s", call.queue)
	}
	payload := call.payload.(queue.StartPayload)
	if payload.Attempt != 1 {
		t.Fatalf("expected retry budget reset to attempt 1, got %d", payload.Attempt)
	}
}

func TestComputeDelay_CapsAtMaxDelay(t *testing.T) {
	retry := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if d := computeDelay(10, retry); d != 5*time.Second {
		t.Fatalf("expected delay capped at MaxDelay, got %v", d)
	}
}
