// Package supervisor runs one cooperative task per live sink child,
// multiplexing stdout, stderr, and process-exit, then classifying the
// exit and producing queue work. The Supervisor owns no record state —
// it only publishes to the Work Queue Adapter, decoupling supervision
// policy from persistence.
package supervisor

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/indexerhq/controlplane/internal/domain"
	"github.com/indexerhq/controlplane/internal/launcher"
	"github.com/indexerhq/controlplane/internal/logging"
	"github.com/indexerhq/controlplane/internal/queue"
)

// Publisher is the subset of the Work Queue Adapter the Supervisor needs.
type Publisher interface {
	Publish(ctx context.Context, q queue.QueueType, payload any, delay time.Duration) error
}

// RetryPolicy holds the restart-with-bounded-retries constants.
type RetryPolicy struct {
	MaxStartRetries  int
	WorkingThreshold time.Duration
	BaseDelay        time.Duration
	MaxDelay         time.Duration
}

// Supervisor supervises live sink children and produces retry/stop/fail
// queue work from their exit outcome.
type Supervisor struct {
	publisher Publisher
	retry     RetryPolicy
}

// New builds a Supervisor.
func New(publisher Publisher, retry RetryPolicy) *Supervisor {
	return &Supervisor{publisher: publisher, retry: retry}
}

// Supervise starts the cooperative task for proc and returns immediately;
// the task runs until the child exits or ctx is cancelled.
func (s *Supervisor) Supervise(ctx context.Context, idx *domain.Indexer, proc *launcher.Process, attempt int) {
	go s.run(ctx, idx, proc, attempt)
}

func (s *Supervisor) run(ctx context.Context, idx *domain.Indexer, proc *launcher.Process, attempt int) {
	log := logging.WithIndexer(idx.ID)
	start := time.Now()

	exitCh := make(chan error, 1)
	go func() { exitCh <- proc.Cmd.Wait() }()

	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		for proc.Stdout.Scan() {
			log.Info("sink stdout", "line", proc.Stdout.Text())
		}
	}()

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		for proc.Stderr.Scan() {
			log.Warn("sink stderr", "line", proc.Stderr.Text())
		}
	}()

	var exitErr error
	select {
	case exitErr = <-exitCh:
	case <-ctx.Done():
		// The daemon is shutting down; the child outlives us, the
		// next startup recovery pass will reconcile it.
		return
	}

	<-stdoutDone
	<-stderrDone

	elapsed := time.Since(start)
	exitCode := exitCodeOf(exitErr)
	s.classify(context.Background(), log, idx.ID, exitCode, elapsed, attempt)
}

// exitCodeOf extracts the process exit code from cmd.Wait()'s error, or 0
// if the process exited cleanly.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// classify implements the exit-outcome policy: a clean exit reconciles to
// Stopped, a death after the working threshold resets the retry budget,
// an exhausted retry budget fails the indexer, and anything else
// schedules another start attempt with backoff.
func (s *Supervisor) classify(ctx context.Context, log *slog.Logger, id string, exitCode int, elapsed time.Duration, attempt int) {
	if exitCode == 0 {
		log.Info("sink exited cleanly", "elapsed", elapsed)
		s.publish(ctx, log, queue.QueueStop, queue.StopPayload{IndexerID: id, Status: domain.StatusStopped}, 0)
		return
	}

	if elapsed > s.retry.WorkingThreshold {
		log.Warn("sink died after working threshold, resetting retry budget",
			"exit_code", exitCode, "elapsed", elapsed)
		s.publish(ctx, log, queue.QueueStart, queue.StartPayload{IndexerID: id, Attempt: 1}, 0)
		return
	}

	if attempt >= s.retry.MaxStartRetries {
		log.Error("sink exhausted start retries", "exit_code", exitCode, "attempt", attempt)
		s.publish(ctx, log, queue.QueueFail, queue.FailPayload{IndexerID: id}, 0)
		return
	}

	delay := computeDelay(attempt, s.retry)
	log.Warn("sink exited early, scheduling retry",
		"exit_code", exitCode, "attempt", attempt+1, "delay", delay)
	s.publish(ctx, log, queue.QueueStart, queue.StartPayload{IndexerID: id, Attempt: attempt + 1}, delay)
}

func (s *Supervisor) publish(ctx context.Context, log *slog.Logger, q queue.QueueType, payload any, delay time.Duration) {
	if err := s.publisher.Publish(ctx, q, payload, delay); err != nil {
		log.Error("failed to publish supervisor outcome", "queue", q, "error", err)
	}
}
