package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// Job is one queued sync operation.
type Job func(ctx context.Context)

// Worker is the explicit fire-and-forget handoff between local mutations
// and the network leg. Enqueue never blocks, so the local save is perceived
// as instantaneous regardless of network latency; jobs then run one at a
// time, which keeps remote writes for one device strictly sequential.
type Worker struct {
	engine *Engine
	logger *logger.Logger

	mu     sync.Mutex
	jobs   chan Job
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	// fullQueued collapses bursts of full-sync triggers into one queued run.
	fullQueued atomic.Bool
}

// NewWorker creates the sync worker with a bounded queue.
func NewWorker(engine *Engine, queueSize int, log *logger.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Worker{
		engine: engine,
		logger: log,
		jobs:   make(chan Job, queueSize),
	}
}

// Start runs the worker loop until ctx is cancelled and the queue drains.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for job := range w.jobs {
			job(ctx)
		}
	}()
}

// Close stops intake and waits for queued jobs to finish.
func (w *Worker) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.jobs)
		w.mu.Unlock()
	})
	w.wg.Wait()
}

// enqueue hands a job off without blocking. A full or closed queue marks
// sync pending instead of waiting: the next full mirror reconciles whatever
// the dropped job would have mirrored.
func (w *Worker) enqueue(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		select {
		case w.jobs <- job:
			return true
		default:
		}
		w.logger.WithComponent("syncer").Warn("Sync queue full, deferring to full mirror")
	}
	if err := w.engine.store.SetSyncPending(true); err != nil {
		w.logger.WithError(err).Error("Cannot persist pending-sync flag")
	}
	return false
}

// UploadPatient queues an incremental patient mirror.
func (w *Worker) UploadPatient(p *types.Patient) {
	snapshot := *p
	w.enqueue(func(ctx context.Context) {
		w.engine.UploadPatient(ctx, &snapshot)
	})
}

// DeletePatient queues removal of a patient's mirror row.
func (w *Worker) DeletePatient(localID string) {
	w.enqueue(func(ctx context.Context) {
		w.engine.DeletePatient(ctx, localID)
	})
}

// UploadPrescription queues an incremental prescription mirror.
func (w *Worker) UploadPrescription(rx *types.Prescription) {
	snapshot := *rx
	w.enqueue(func(ctx context.Context) {
		w.engine.UploadPrescription(ctx, &snapshot)
	})
}

// DeletePrescription queues removal of a prescription's mirror row.
func (w *Worker) DeletePrescription(localID string) {
	w.enqueue(func(ctx context.Context) {
		w.engine.DeletePrescription(ctx, localID)
	})
}

// FullSync queues a full recovery mirror. Repeat triggers while one is
// already queued are collapsed.
func (w *Worker) FullSync() {
	if !w.fullQueued.CompareAndSwap(false, true) {
		return
	}
	accepted := w.enqueue(func(ctx context.Context) {
		w.fullQueued.Store(false)
		w.engine.FullSync(ctx)
	})
	if !accepted {
		w.fullQueued.Store(false)
	}
}

// Watch is the reconnection listener: it probes reachability on a fixed
// interval and, whenever the remote is reachable while the pending flag is
// set, triggers a full mirror. There is no backoff and no retry budget; a
// persistently unreachable remote simply leaves the flag set.
func (w *Worker) Watch(ctx context.Context, interval time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pending, err := w.engine.store.SyncPending()
				if err != nil {
					w.logger.WithError(err).Error("Reconnect watcher: cannot read pending flag")
					continue
				}
				if pending && w.engine.prober.Reachable(ctx) {
					w.logger.WithComponent("syncer").Info("Network available with pending sync, triggering full mirror")
					w.FullSync()
				}
			}
		}
	}()
}
