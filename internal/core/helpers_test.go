package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

func init() {
	logging.Discard()
}

type recordingNotifier struct {
	mu       sync.Mutex
	customer []*notify.Notification
	admin    []*notify.Notification
}

func (r *recordingNotifier) Notify(n *notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customer = append(r.customer, n)
}

func (r *recordingNotifier) NotifyAdmins(n *notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, n)
}

func (r *recordingNotifier) Customer() []*notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*notify.Notification(nil), r.customer...)
}

func (r *recordingNotifier) Admin() []*notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*notify.Notification(nil), r.admin...)
}

func (r *recordingNotifier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customer, r.admin = nil, nil
}

// fakeApprovals maps approved model ids to their owner.
type fakeApprovals map[int64]int64

func (f fakeApprovals) ApprovedOwner(_ context.Context, modelID int64) (int64, bool, error) {
	owner, ok := f[modelID]
	return owner, ok, nil
}

type testEnv struct {
	ctx      context.Context
	store    *db.Store
	notifier *recordingNotifier
	registry *Registry
	queue    *Queue
	jobs     *Jobs
	tracker  *Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := db.NewStore(conn)
	notifier := &recordingNotifier{}
	approvals := fakeApprovals{42: 7, 43: 7, 44: 8}

	return &testEnv{
		ctx:      context.Background(),
		store:    store,
		notifier: notifier,
		registry: NewRegistry(store),
		queue:    NewQueue(store, approvals, notifier),
		jobs:     NewJobs(store, notifier, 10),
		tracker:  NewTracker(store, NewStorePreferences(store), notifier),
	}
}

func (e *testEnv) printer(t *testing.T, name string, caps ValueMap) int64 {
	t.Helper()
	id, err := e.registry.Register(e.ctx, name, "Prusa MK4", caps, "")
	require.NoError(t, err)
	return id
}

func (e *testEnv) enqueue(t *testing.T, modelID, userID int64, priority int, settings ValueMap) int64 {
	t.Helper()
	id, err := e.queue.Enqueue(e.ctx, EnqueueRequest{
		ModelID:  modelID,
		UserID:   userID,
		Priority: priority,
		Settings: settings,
	})
	require.NoError(t, err)
	return id
}

func floatPtr(f float64) *float64 { return &f }
func int64Ptr(i int64) *int64     { return &i }
