package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/indexerhq/controlplane/internal/domain"
	"github.com/indexerhq/controlplane/internal/launcher"
	"github.com/indexerhq/controlplane/internal/prober"
	"github.com/indexerhq/controlplane/internal/queue"
	"github.com/indexerhq/controlplane/internal/store"
	"github.com/indexerhq/controlplane/internal/supervisor"
)

// fakeStore is an in-memory store.Store double so the Coordinator's
// state-machine logic can be exercised without Postgres.
type fakeStore struct {
	mu   sync.Mutex
	recs map[string]*domain.Indexer
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*domain.Indexer)}
}

func (f *fakeStore) Close() error                   { return nil }
func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) Insert(_ context.Context, idx *domain.Indexer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx.TableName != nil {
		for _, other := range f.recs {
			if other.TableName != nil && *other.TableName == *idx.TableName {
				return store.ErrAlreadyExists
			}
		}
	}
	cp := *idx
	f.recs[idx.ID] = &cp
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*domain.Indexer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.recs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *idx
	return &cp, nil
}

func (f *fakeStore) GetByTableName(_ context.Context, tableName string) (*domain.Indexer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range f.recs {
		if idx.TableName != nil && *idx.TableName == tableName {
			cp := *idx
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) List(_ context.Context, filter store.ListFilter) ([]*domain.Indexer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Indexer
	for _, idx := range f.recs {
		if filter.Status != nil && idx.Status != *filter.Status {
			continue
		}
		cp := *idx
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, newStatus domain.Status, fromStatuses []domain.Status) error {
	return f.UpdateStatusAndPID(ctx, id, newStatus, nil, fromStatuses)
}

func (f *fakeStore) UpdateStatusAndPID(_ context.Context, id string, newStatus domain.Status, pid *int, fromStatuses []domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.recs[id]
	if !ok {
		return store.ErrNotFound
	}
	matched := false
	for _, st := range fromStatuses {
		if idx.Status == st {
			matched = true
			break
		}
	}
	if !matched {
		return store.ErrConflict
	}
	idx.Status = newStatus
	if pid != nil || newStatus == domain.StatusStopped {
		idx.ProcessID = pid
	}
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.recs, id)
	return nil
}

// fakeArtifactStore is an in-memory artifact.Store double.
type fakeArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: make(map[string][]byte)}
}

func (a *fakeArtifactStore) Put(_ context.Context, key string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = append([]byte(nil), body...)
	return nil
}

func (a *fakeArtifactStore) Get(_ context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return body, nil
}

func (a *fakeArtifactStore) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

// testEnv wires a Coordinator against fakes and a real Launcher spawning
// a fake sink script, exercising the state-machine transitions that don't
// require a live status probe (Create, which probes, is covered at the
// HTTP layer, where its probe-timeout path is exercised).
type testEnv struct {
	coord     *Coordinator
	store     *fakeStore
	artifacts *fakeArtifactStore
}

func newTestEnv(t *testing.T, sinkScript string) *testEnv {
	t.Helper()

	binDir := t.TempDir()
	for _, name := range []string{"sink-webhook", "sink-postgres", "sink-console"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte(sinkScript), 0o755); err != nil {
			t.Fatalf("write fake sink: %v", err)
		}
	}

	st := newFakeStore()
	artifacts := newFakeArtifactStore()
	l := launcher.New(launcher.Config{BinaryBasePath: binDir})
	p := prober.New(time.Second)
	pub := &discardPublisher{}
	sup := supervisor.New(pub, supervisor.RetryPolicy{MaxStartRetries: 5, WorkingThreshold: time.Hour, BaseDelay: time.Second, MaxDelay: time.Minute})

	coord := New(st, artifacts, l, p, sup, Config{
		StagingDir:        t.TempDir(),
		ProbeDeadline:     2 * time.Second,
		ProbePollInterval: 10 * time.Millisecond,
	})

	return &testEnv{coord: coord, store: st, artifacts: artifacts}
}

type discardPublisher struct{}

func (discardPublisher) Publish(_ context.Context, _ queue.QueueType, _ any, _ time.Duration) error {
	return nil
}

func stringPtr(s string) *string { return &s }

func TestCoordinator_Stop_IllegalFromNonRunning(t *testing.T) {
	env := newTestEnv(t, "#!/bin/sh\nsleep 5\n")
	idx := &domain.Indexer{ID: "idx-1", Status: domain.StatusCreated, Type: domain.TypeConsole, StatusServerPort: 1}
	env.store.Insert(context.Background(), idx)

	if err := env.coord.Stop(context.Background(), idx.ID); err != ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestCoordinator_Delete_IllegalWhenNotStopped(t *testing.T) {
	env := newTestEnv(t, "#!/bin/sh\nsleep 5\n")
	idx := &domain.Indexer{ID: "idx-1", Status: domain.StatusRunning, Type: domain.TypeConsole, StatusServerPort: 1}
	env.store.Insert(context.Background(), idx)

	if err := env.coord.Delete(context.Background(), idx.ID); err != ErrIllegalTransition {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestCoordinator_ReconcileStopped_RedundantIsNoop(t *testing.T) {
	env := newTestEnv(t, "#!/bin/sh\nsleep 5\n")
	idx := &domain.Indexer{ID: "idx-1", Status: domain.StatusStopped, Type: domain.TypeConsole, StatusServerPort: 1}
	env.store.Insert(context.Background(), idx)

	if err := env.coord.ReconcileStopped(context.Background(), idx.ID, domain.StatusStopped); err != nil {
		t.Fatalf("expected no-op, got error: %v", err)
	}
}

func TestCoordinator_Start_Webhook_ReachesRunning(t *testing.T) {
	env := newTestEnv(t, "#!/bin/sh\nsleep 5\n")
	idx := &domain.Indexer{
		ID: "idx-1", Status: domain.StatusCreated, Type: domain.TypeWebhook,
		TargetURL: stringPtr("https://example.com"), StatusServerPort: 1,
	}
	env.store.Insert(context.Background(), idx)
	env.artifacts.Put(context.Background(), "scripts/idx-1.js", []byte("console.log(1)"))

	if err := env.coord.Start(context.Background(), idx.ID, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got, err := env.coord.Get(context.Background(), idx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.StatusRunning || got.ProcessID == nil {
		t.Fatalf("expected Running with a pid, got %+v", got)
	}
}

func TestCoordinator_Start_NoopWhenAlreadyRunningAndAlive(t *testing.T) {
	env := newTestEnv(t, "#!/bin/sh\nsleep 5\n")
	idx := &domain.Indexer{
		ID: "idx-1", Status: domain.StatusCreated, Type: domain.TypeConsole, StatusServerPort: 1,
	}
	env.store.Insert(context.Background(), idx)
	env.artifacts.Put(context.Background(), "scripts/idx-1.js", []byte("console.log(1)"))

	if err := env.coord.Start(context.Background(), idx.ID, 0); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	first, _ := env.coord.Get(context.Background(), idx.ID)

	if err := env.coord.Start(context.Background(), idx.ID, 0); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	second, _ := env.coord.Get(context.Background(), idx.ID)

	if *first.ProcessID != *second.ProcessID {
		t.Fatalf("expected the same pid after a no-op start, got %d and %d", *first.ProcessID, *second.ProcessID)
	}
}
