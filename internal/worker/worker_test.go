package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"distributor/internal/config"
	"distributor/internal/orchestrator"
	"distributor/internal/session"
	"distributor/internal/stats"
)

type fakeManager struct {
	running     map[string][]int64
	failures    map[string]error
	logs        map[int64]string
	stopErr     error
	stopped     []int64
	stoppedByID []int64
}

func (f *fakeManager) StopContainer(ctx context.Context, sess *session.Session) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, sess.ID)
	sess.DetachContainer()
	return nil
}

func (f *fakeManager) StopContainerBySessionID(ctx context.Context, sessionID int64, hostAddr string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stoppedByID = append(f.stoppedByID, sessionID)
	return nil
}

func (f *fakeManager) RunningSessionIDsByHost(ctx context.Context) (map[string][]int64, map[string]error) {
	return f.running, f.failures
}

func (f *fakeManager) ContainerLog(ctx context.Context, sess *session.Session) (string, error) {
	log, ok := f.logs[sess.ID]
	if !ok {
		return "", errors.New("no log")
	}
	return log, nil
}

type fakeRepo struct {
	byID    map[int64]*session.Session
	idle    []*session.Session
	bound   []*session.Session
	deleted []int64
}

func (f *fakeRepo) GetByClient(ctx context.Context, ip, ua string) (*session.Session, error) {
	return nil, session.ErrNotFound
}

func (f *fakeRepo) GetByID(ctx context.Context, id int64) (*session.Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) Upsert(ctx context.Context, s *session.Session) error { return nil }

func (f *fakeRepo) Delete(ctx context.Context, s *session.Session) error {
	f.deleted = append(f.deleted, s.ID)
	return nil
}

func (f *fakeRepo) Count(ctx context.Context) (int, error)      { return len(f.byID), nil }
func (f *fakeRepo) CountBound(ctx context.Context) (int, error) { return len(f.bound), nil }

func (f *fakeRepo) CountPerHost(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, s := range f.bound {
		counts[s.ContainerHost]++
	}
	return counts, nil
}

func (f *fakeRepo) AssignedPorts(ctx context.Context) ([]int, error) { return nil, nil }
func (f *fakeRepo) UniqueClientIPs(ctx context.Context) (int, error) { return len(f.byID), nil }

func (f *fakeRepo) ListIdleBefore(ctx context.Context, cutoff time.Time) ([]*session.Session, error) {
	return f.idle, nil
}

func (f *fakeRepo) ListBound(ctx context.Context) ([]*session.Session, error) {
	return f.bound, nil
}

type fakeSink struct {
	snaps []*stats.Snapshot
	err   error
}

func (f *fakeSink) Insert(ctx context.Context, snap *stats.Snapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func boundSession(id int64, host string) *session.Session {
	s := session.New("203.0.113.9", "Mozilla/5.0")
	s.ID = id
	s.AttachContainer(
		"a3f9c1d2e4b5a6c7d8e9f0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1",
		host, 4000+int(id), "token")
	return s
}

func testPool() []config.ContainerHost {
	return []config.ContainerHost{
		{Addr: "10.0.0.1", User: "wrp", KeyFile: "k1", MaxContainers: 10},
	}
}

func newTestWorker(manager ContainerManager, repo session.Repository, sink StatsSink, logDir string) *CleanupTaskWorker {
	logger := slog.New(slog.DiscardHandler)
	collector := stats.NewCollector(repo, testPool(), logger)
	return NewCleanupTaskWorker(manager, repo, collector, sink, WorkerConfig{LogDir: logDir}, logger)
}

func TestHandleSessionCleanupStopsAndDeletes(t *testing.T) {
	withContainer := boundSession(1, "10.0.0.1")
	withoutContainer := session.New("198.51.100.4", "curl/8.0")
	withoutContainer.ID = 2

	repo := &fakeRepo{idle: []*session.Session{withContainer, withoutContainer}}
	manager := &fakeManager{}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	task, err := NewSessionCleanupTask(10)
	if err != nil {
		t.Fatalf("NewSessionCleanupTask: %v", err)
	}
	if err := w.HandleSessionCleanup(context.Background(), task); err != nil {
		t.Fatalf("HandleSessionCleanup: %v", err)
	}

	if len(manager.stopped) != 1 || manager.stopped[0] != 1 {
		t.Errorf("stopped = %v, want [1]", manager.stopped)
	}
	if len(repo.deleted) != 2 {
		t.Errorf("deleted = %v, want both idle sessions", repo.deleted)
	}
}

func TestHandleSessionCleanupKeepsSessionWhenStopFails(t *testing.T) {
	repo := &fakeRepo{idle: []*session.Session{boundSession(1, "10.0.0.1")}}
	manager := &fakeManager{stopErr: orchestrator.ErrConnectivity}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	task, _ := NewSessionCleanupTask(10)
	if err := w.HandleSessionCleanup(context.Background(), task); err != nil {
		t.Fatalf("HandleSessionCleanup: %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Errorf("deleted = %v, want none while the stop keeps failing", repo.deleted)
	}
}

func TestHandleSessionCleanupTreatsMissingContainerAsStopped(t *testing.T) {
	repo := &fakeRepo{idle: []*session.Session{boundSession(1, "10.0.0.1")}}
	manager := &fakeManager{stopErr: orchestrator.ErrNoContainer}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	task, _ := NewSessionCleanupTask(10)
	if err := w.HandleSessionCleanup(context.Background(), task); err != nil {
		t.Fatalf("HandleSessionCleanup: %v", err)
	}
	if len(repo.deleted) != 1 {
		t.Errorf("deleted = %v, want the session removed anyway", repo.deleted)
	}
}

func TestHandleContainerCleanupStopsOrphans(t *testing.T) {
	tracked := boundSession(1, "10.0.0.1")

	repo := &fakeRepo{byID: map[int64]*session.Session{1: tracked}}
	manager := &fakeManager{running: map[string][]int64{"10.0.0.1": {1, 2}}}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	if err := w.HandleContainerCleanup(context.Background(), NewContainerCleanupTask()); err != nil {
		t.Fatalf("HandleContainerCleanup: %v", err)
	}

	// 1 has a session row, 2 does not.
	if len(manager.stoppedByID) != 1 || manager.stoppedByID[0] != 2 {
		t.Fatalf("stoppedByID = %v, want only the rowless container 2", manager.stoppedByID)
	}
}

func TestHandleContainerCleanupKeepsRowBackedContainer(t *testing.T) {
	// The row exists but its binding is gone, e.g. a start that has not
	// persisted yet. An existing row always means keep.
	unbound := session.New("198.51.100.4", "curl/8.0")
	unbound.ID = 3

	repo := &fakeRepo{byID: map[int64]*session.Session{3: unbound}}
	manager := &fakeManager{running: map[string][]int64{"10.0.0.1": {3}}}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	if err := w.HandleContainerCleanup(context.Background(), NewContainerCleanupTask()); err != nil {
		t.Fatalf("HandleContainerCleanup: %v", err)
	}
	if len(manager.stoppedByID) != 0 {
		t.Errorf("stoppedByID = %v, container with an existing session row must be kept", manager.stoppedByID)
	}
}

func TestHandleContainerCleanupSurvivesHostFailure(t *testing.T) {
	repo := &fakeRepo{byID: map[int64]*session.Session{}}
	manager := &fakeManager{
		running:  map[string][]int64{"10.0.0.1": {5}},
		failures: map[string]error{"10.0.0.2": orchestrator.ErrConnectivity},
	}
	w := newTestWorker(manager, repo, &fakeSink{}, t.TempDir())

	if err := w.HandleContainerCleanup(context.Background(), NewContainerCleanupTask()); err != nil {
		t.Fatalf("HandleContainerCleanup: %v", err)
	}
	if len(manager.stoppedByID) != 1 || manager.stoppedByID[0] != 5 {
		t.Errorf("stoppedByID = %v, want [5]", manager.stoppedByID)
	}
}

func TestHandleLogCollectWritesFiles(t *testing.T) {
	sess := boundSession(7, "10.0.0.1")
	repo := &fakeRepo{bound: []*session.Session{sess}}
	manager := &fakeManager{logs: map[int64]string{7: "2026-01-02T10:00:00Z wrp ready\n"}}

	dir := filepath.Join(t.TempDir(), "containers")
	w := newTestWorker(manager, repo, &fakeSink{}, dir)

	if err := w.HandleLogCollect(context.Background(), NewLogCollectTask()); err != nil {
		t.Fatalf("HandleLogCollect: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "wrp_session_7.log"))
	if err != nil {
		t.Fatalf("reading collected log: %v", err)
	}
	if string(data) != "2026-01-02T10:00:00Z wrp ready\n" {
		t.Errorf("collected log = %q", data)
	}
}

func TestHandleStatsCollectStoresSnapshot(t *testing.T) {
	bound := boundSession(1, "10.0.0.1")
	repo := &fakeRepo{
		byID:  map[int64]*session.Session{1: bound, 2: session.New("198.51.100.4", "curl/8.0")},
		bound: []*session.Session{bound},
	}
	sink := &fakeSink{}
	w := newTestWorker(&fakeManager{}, repo, sink, t.TempDir())

	if err := w.HandleStatsCollect(context.Background(), NewStatsCollectTask()); err != nil {
		t.Fatalf("HandleStatsCollect: %v", err)
	}

	if len(sink.snaps) != 1 {
		t.Fatalf("stored snapshots = %d, want 1", len(sink.snaps))
	}
	snap := sink.snaps[0]
	if snap.Sessions != 2 || snap.BoundSessions != 1 || snap.Capacity != 10 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.HostsAvailable != 1 {
		t.Errorf("hosts available = %d, want 1", snap.HostsAvailable)
	}
	if snap.PerHost["10.0.0.1"] != 1 {
		t.Errorf("per host = %v", snap.PerHost)
	}
}

func TestHandleSessionCleanupRejectsBadPayload(t *testing.T) {
	w := newTestWorker(&fakeManager{}, &fakeRepo{}, &fakeSink{}, t.TempDir())

	task := NewContainerCleanupTask() // nil payload is not valid JSON
	if err := w.HandleSessionCleanup(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
