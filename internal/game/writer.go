package game

import (
	"context"
	"sync"
	"time"

	"github.com/Soar-Robotics/hashfarm/internal/models"

	"go.uber.org/zap"
)

const asyncWriteTimeout = 5 * time.Second

type writeJob struct {
	seq   uint64
	patch models.PlayerPatch
}

// writer persists one player's snapshots. Every snapshot carries a sequence
// number and a write is skipped once a newer one has landed, so a slow
// background tick write can never overwrite a later synchronous action.
//
// next is only called from the session goroutine.
type writer struct {
	store  PlayerStore
	wallet string
	logger *zap.Logger

	seq uint64

	mu      sync.Mutex // held across store writes
	written uint64

	pendingMu sync.Mutex
	pending   *writeJob
	kick      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newWriter(st PlayerStore, wallet string, logger *zap.Logger) *writer {
	ctx, cancel := context.WithCancel(context.Background())
	w := &writer{
		store:  st,
		wallet: wallet,
		logger: logger,
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *writer) next() uint64 {
	w.seq++
	return w.seq
}

// writeSync persists patch and returns the store error, if any.
func (w *writer) writeSync(ctx context.Context, patch models.PlayerPatch) error {
	return w.write(ctx, writeJob{seq: w.next(), patch: patch})
}

// enqueue schedules patch for a background write and returns immediately.
// Only the latest pending snapshot is kept.
func (w *writer) enqueue(patch models.PlayerPatch) {
	job := &writeJob{seq: w.next(), patch: patch}
	w.pendingMu.Lock()
	w.pending = job
	w.pendingMu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *writer) write(ctx context.Context, job writeJob) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job.seq <= w.written {
		return nil
	}
	if err := w.store.UpsertPlayer(ctx, w.wallet, job.patch); err != nil {
		return err
	}
	w.written = job.seq
	return nil
}

func (w *writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.kick:
		}
		w.pendingMu.Lock()
		job := w.pending
		w.pending = nil
		w.pendingMu.Unlock()
		if job == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(w.ctx, asyncWriteTimeout)
		if err := w.write(ctx, *job); err != nil {
			w.logger.Warn("Background persist failed", zap.String("wallet", w.wallet), zap.Uint64("seq", job.seq), zap.Error(err))
		}
		cancel()
	}
}

// close abandons any queued or in-flight background write and waits for the
// loop to exit.
func (w *writer) close() {
	w.cancel()
	<-w.done
}
