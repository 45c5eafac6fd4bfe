package syncer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

func newTestWorker(t *testing.T, rows *fakeRows, online bool, queueSize int) (*Worker, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	metrics := NewMetrics(prometheus.NewRegistry())
	engine := NewEngine(st, rows, &fakeObjects{}, &fakeProber{reachable: online}, 100, metrics, logger.Discard())
	return NewWorker(engine, queueSize, logger.Discard()), st
}

func TestWorker_RunsQueuedJobs(t *testing.T) {
	rows := &fakeRows{}
	worker, _ := newTestWorker(t, rows, true, 8)

	worker.Start(context.Background())
	worker.UploadPatient(&types.Patient{ID: "p1", FullName: "Ali", Gender: "male"})
	worker.DeletePatient("p2")
	worker.Close()

	assert.Equal(t, []string{
		"DeletePatientByLocalID:p1", "InsertPatients",
		"DeletePatientByLocalID:p2",
	}, rows.calls)
}

func TestWorker_OfflineJobSetsPendingFlag(t *testing.T) {
	rows := &fakeRows{}
	worker, st := newTestWorker(t, rows, false, 8)

	worker.Start(context.Background())
	worker.UploadPatient(&types.Patient{ID: "p1", FullName: "Ali", Gender: "male"})
	worker.Close()

	assert.Zero(t, rows.callCount())
	pending, err := st.SyncPending()
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestWorker_FullSyncTriggersAreCollapsed(t *testing.T) {
	rows := &fakeRows{}
	worker, _ := newTestWorker(t, rows, true, 8)

	// Queue a burst before the worker runs; only one full mirror should
	// actually execute.
	worker.FullSync()
	worker.FullSync()
	worker.FullSync()

	worker.Start(context.Background())
	worker.Close()

	deletes := 0
	for _, call := range rows.calls {
		if call == "DeleteByDevice:templates_archive" {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes)
}

func TestWorker_FullQueueDefersToPendingFlag(t *testing.T) {
	rows := &fakeRows{}
	worker, st := newTestWorker(t, rows, true, 1)

	// Worker not started: the first job fills the queue, the second one
	// is dropped in favor of the persisted pending marker.
	worker.DeletePatient("p1")
	worker.DeletePatient("p2")

	pending, err := st.SyncPending()
	require.NoError(t, err)
	assert.True(t, pending)

	worker.Start(context.Background())
	worker.Close()
	assert.Equal(t, []string{"DeletePatientByLocalID:p1"}, rows.calls)
}

func TestWorker_WatchRecoversAfterReconnect(t *testing.T) {
	rows := &fakeRows{}
	worker, st := newTestWorker(t, rows, true, 8)

	// Simulate an earlier offline session that left work behind.
	require.NoError(t, st.SetSyncPending(true))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	worker.Watch(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		pending, err := st.SyncPending()
		return err == nil && !pending
	}, 2*time.Second, 10*time.Millisecond, "reconnect watcher should run a full mirror and clear the flag")

	cancel()
	worker.Close()
}

func TestWorker_WatchStaysQuietWhenNothingPending(t *testing.T) {
	rows := &fakeRows{}
	worker, _ := newTestWorker(t, rows, true, 8)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	worker.Watch(ctx, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	cancel()
	worker.Close()

	assert.Zero(t, rows.callCount())
}
