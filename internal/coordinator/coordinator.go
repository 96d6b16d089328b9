// Package coordinator implements the canonical indexer lifecycle state
// machine, wiring the Indexer Store, Script Artifact Store, Sink
// Launcher, Work Queue Adapter, and Status Prober together.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/indexerhq/controlplane/internal/artifact"
	"github.com/indexerhq/controlplane/internal/domain"
	"github.com/indexerhq/controlplane/internal/launcher"
	"github.com/indexerhq/controlplane/internal/logging"
	"github.com/indexerhq/controlplane/internal/prober"
	"github.com/indexerhq/controlplane/internal/store"
	"github.com/indexerhq/controlplane/internal/supervisor"
)

// Config holds the Coordinator's tunables that aren't wired in as
// sub-component dependencies.
type Config struct {
	StagingDir       string
	ProbeDeadline    time.Duration
	ProbePollInterval time.Duration
}

// CreateParams is the input to Create, mirroring the multipart/form-data
// fields of POST /v1/indexers.
type CreateParams struct {
	Type                   domain.Type
	ScriptBody             []byte
	TargetURL              *string
	TableName              *string
	CustomConnectionString *string
	StartingBlock          *int64
	IndexerID              *string
}

// Coordinator implements the lifecycle state machine.
type Coordinator struct {
	store      store.Store
	artifacts  artifact.Store
	launcher   *launcher.Launcher
	prober     *prober.Prober
	supervisor *supervisor.Supervisor
	cfg        Config
}

// New builds a Coordinator.
func New(s store.Store, artifacts artifact.Store, l *launcher.Launcher, p *prober.Prober, sup *supervisor.Supervisor, cfg Config) *Coordinator {
	return &Coordinator{store: s, artifacts: artifacts, launcher: l, prober: p, supervisor: sup, cfg: cfg}
}

// Create allocates an id and status-server port, validates params, writes
// the Created record, uploads the script, starts the child inline, and
// probes it for health before returning.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (*domain.Indexer, error) {
	port, err := allocateLoopbackPort()
	if err != nil {
		return nil, fmt.Errorf("allocate status server port: %w", err)
	}

	idx := &domain.Indexer{
		ID:                     uuid.New().String(),
		Status:                 domain.StatusCreated,
		Type:                   params.Type,
		TargetURL:              params.TargetURL,
		TableName:              params.TableName,
		StatusServerPort:       port,
		CustomConnectionString: params.CustomConnectionString,
		StartingBlock:          params.StartingBlock,
		IndexerID:              params.IndexerID,
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	if err := c.store.Insert(ctx, idx); err != nil {
		return nil, err
	}

	if err := c.artifacts.Put(ctx, artifact.ScriptKey(idx.ID), params.ScriptBody); err != nil {
		return nil, fmt.Errorf("upload script: %w", err)
	}

	if err := c.Start(ctx, idx.ID, 1); err != nil {
		return nil, fmt.Errorf("start after create: %w", err)
	}

	status, err := c.prober.PollUntilHealthy(ctx, port, c.cfg.ProbeDeadline, c.cfg.ProbePollInterval)
	if err != nil {
		if failErr := c.Fail(ctx, idx.ID); failErr != nil {
			logging.Op().Error("fail after probe failure also failed", "indexer_id", idx.ID, "error", failErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	logging.WithIndexer(idx.ID).Info("create probe succeeded", "current_block", status.CurrentBlock)

	return c.store.Get(ctx, idx.ID)
}

// Start fetches and stages the script, spawns the sink child, and
// atomically records the new pid. attempt carries the retry ordinal
// through to the Supervisor so it can apply the exit-outcome policy; a
// fresh retry budget starts at 1, so MaxStartRetries consecutive failures
// exhaust it. It is legal from {Created, Stopped, FailedRunning}; from
// Running it is a no-op iff the recorded pid is still alive.
func (c *Coordinator) Start(ctx context.Context, id string, attempt int) error {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch idx.Status {
	case domain.StatusRunning:
		if idx.ProcessID != nil && launcher.IsAlive(*idx.ProcessID) {
			return nil
		}
		// Stale record: the pid is a zombie or the process is simply
		// gone (e.g. after a host restart). Proceed to a fresh start.
	case domain.StatusCreated, domain.StatusStopped, domain.StatusFailedRunning:
		// Legal entry points.
	default:
		return ErrIllegalTransition
	}

	scriptPath, err := artifact.Stage(ctx, c.artifacts, artifact.ScriptKey(idx.ID), idx.ID, c.cfg.StagingDir)
	if err != nil {
		return fmt.Errorf("stage script: %w", err)
	}

	proc, err := c.launcher.Spawn(idx, scriptPath, idx.StatusServerPort)
	if err != nil {
		return err
	}

	if err := c.store.UpdateStatusAndPID(ctx, idx.ID, domain.StatusRunning, &proc.Pid, []domain.Status{idx.Status}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another start won the race; this one's child is
			// redundant, stop it rather than leaking it.
			launcher.Terminate(proc.Pid)
			return nil
		}
		return err
	}

	c.supervisor.Supervise(context.Background(), idx, proc, attempt)
	return nil
}

// Stop sends a termination signal to the recorded pid. Confirmed
// termination (the signal was delivered, or the process was already gone)
// transitions to Stopped; a signalling error transitions to
// FailedStopping.
func (c *Coordinator) Stop(ctx context.Context, id string) error {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if idx.Status != domain.StatusRunning {
		return ErrIllegalTransition
	}

	var pid int
	if idx.ProcessID != nil {
		pid = *idx.ProcessID
	}

	sigErr := launcher.Terminate(pid)
	if sigErr == nil || !launcher.IsAlive(pid) {
		return c.store.UpdateStatusAndPID(ctx, idx.ID, domain.StatusStopped, nil, []domain.Status{domain.StatusRunning})
	}
	return c.store.UpdateStatus(ctx, idx.ID, domain.StatusFailedStopping, []domain.Status{domain.StatusRunning})
}

// Fail transitions a Running record to FailedRunning. Legal from Running
// only.
func (c *Coordinator) Fail(ctx context.Context, id string) error {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if idx.Status != domain.StatusRunning {
		return ErrIllegalTransition
	}
	return c.store.UpdateStatusAndPID(ctx, idx.ID, domain.StatusFailedRunning, nil, []domain.Status{domain.StatusRunning})
}

// ReconcileStopped applies a message-driven transition to newStatus
// (∈ {Stopped, FailedStopping}) produced by the Supervisor's exit
// classification. Legal from {Running, Stopped, FailedStopping}; a
// redundant message (current status already equals newStatus) is a
// no-op, which tolerates at-least-once queue redelivery.
func (c *Coordinator) ReconcileStopped(ctx context.Context, id string, newStatus domain.Status) error {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if idx.Status == newStatus {
		return nil
	}
	switch idx.Status {
	case domain.StatusRunning, domain.StatusStopped, domain.StatusFailedStopping:
	default:
		return ErrIllegalTransition
	}

	if idx.ProcessID != nil && launcher.IsAlive(*idx.ProcessID) {
		// The child is still alive; this message is stale — the
		// liveness re-check inside the handler, not at scan time,
		// is what makes startup recovery and reconciliation safe.
		return nil
	}

	if newStatus == domain.StatusStopped {
		return c.store.UpdateStatusAndPID(ctx, idx.ID, domain.StatusStopped, nil, []domain.Status{idx.Status})
	}
	return c.store.UpdateStatus(ctx, idx.ID, newStatus, []domain.Status{idx.Status})
}

// Delete removes a Stopped record. Legal only from Stopped.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if idx.Status != domain.StatusStopped {
		return ErrIllegalTransition
	}
	if err := c.artifacts.Delete(ctx, artifact.ScriptKey(idx.ID)); err != nil {
		logging.WithIndexer(idx.ID).Warn("failed to delete script artifact", "error", err)
	}
	return c.store.Delete(ctx, idx.ID)
}

// Get, List, and GetByTableName pass straight through to the Store; they
// carry no state-machine semantics of their own.
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Indexer, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator) GetByTableName(ctx context.Context, tableName string) (*domain.Indexer, error) {
	return c.store.GetByTableName(ctx, tableName)
}

func (c *Coordinator) List(ctx context.Context, filter store.ListFilter) ([]*domain.Indexer, error) {
	return c.store.List(ctx, filter)
}

// GetStatus performs the single-shot read-status probe for the HTTP
// status endpoint.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (*domain.StatusResponse, error) {
	idx, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.prober.GetStatus(ctx, idx.StatusServerPort)
}

// RecoverAtStartup lists every Running record and publishes a start job
// for each, attempt=1, unconditionally — the liveness check happens once
// per message inside the start handler, not during this scan.
func (c *Coordinator) RecoverAtStartup(ctx context.Context, publish func(ctx context.Context, id string, attempt int) error) error {
	running := domain.StatusRunning
	records, err := c.store.List(ctx, store.ListFilter{Status: &running})
	if err != nil {
		return fmt.Errorf("list running indexers: %w", err)
	}
	for _, idx := range records {
		if err := publish(ctx, idx.ID, 1); err != nil {
			logging.WithIndexer(idx.ID).Error("startup recovery publish failed", "error", err)
		}
	}
	return nil
}

// allocateLoopbackPort binds a loopback TCP listener on port 0, records
// the kernel-assigned port, and closes it before the sink is spawned —
// a TOCTOU race with other local listeners that's accepted: a stolen
// port surfaces as a create-time probe failure.
func allocateLoopbackPort() (int32, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return int32(l.Addr().(*net.TCPAddr).Port), nil
}
