package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Ensure WorkerPool implements the interface.
var _ driving.SyncQueue = (*WorkerPool)(nil)

// WorkerPoolConfig sizes the pool.
type WorkerPoolConfig struct {
	// Workers is the number of concurrent sync executions.
	Workers int
	// QueueSize bounds pending requests; Enqueue fails when it is full.
	QueueSize int
	// ProviderConcurrency bounds concurrent runs against one provider.
	// Zero disables the bound.
	ProviderConcurrency int
}

// DefaultWorkerPoolConfig returns the standard pool size.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{Workers: 4, QueueSize: 256, ProviderConcurrency: 2}
}

type syncJob struct {
	connectionID string
	trigger      domain.SyncTrigger
}

// WorkerPool runs sync requests in the background on a bounded set of
// workers. A connection is queued at most once at a time.
type WorkerPool struct {
	syncer      driving.SyncManager
	connections driven.ConnectionStore
	cfg         WorkerPoolConfig

	jobs chan syncJob

	queueMu sync.Mutex
	queued  map[string]bool

	slotMu sync.Mutex
	slots  map[domain.ProviderType]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorkerPool creates a pool. Call Start to begin processing.
func NewWorkerPool(syncer driving.SyncManager, connections driven.ConnectionStore, cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &WorkerPool{
		syncer:      syncer,
		connections: connections,
		cfg:         cfg,
		jobs:        make(chan syncJob, cfg.QueueSize),
		queued:      make(map[string]bool),
		slots:       make(map[domain.ProviderType]chan struct{}),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (p *WorkerPool) Start(ctx context.Context) {
	p.once.Do(func() {
		p.ctx, p.cancel = context.WithCancel(ctx)
		p.wg.Add(p.cfg.Workers)
		for i := 0; i < p.cfg.Workers; i++ {
			go func() {
				defer p.wg.Done()
				p.worker()
			}()
		}
		logger.Info("worker pool started with %d workers", p.cfg.Workers)
	})
}

// Stop cancels in-flight runs and waits for workers to exit.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Enqueue schedules a sync without blocking.
func (p *WorkerPool) Enqueue(connectionID string, trigger domain.SyncTrigger) bool {
	if connectionID == "" {
		return false
	}
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if p.queued[connectionID] {
		return false
	}
	select {
	case p.jobs <- syncJob{connectionID: connectionID, trigger: trigger}:
		p.queued[connectionID] = true
		return true
	default:
		logger.Warn("sync queue full, dropping %s request for %s", trigger, connectionID)
		return false
	}
}

// EnqueueAfter schedules a sync once delay has elapsed.
func (p *WorkerPool) EnqueueAfter(connectionID string, trigger domain.SyncTrigger, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if p.ctx != nil && p.ctx.Err() != nil {
			return
		}
		p.Enqueue(connectionID, trigger)
	})
}

// Pending returns the number of queued requests.
func (p *WorkerPool) Pending() int {
	return len(p.jobs)
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobs:
			p.queueMu.Lock()
			delete(p.queued, job.connectionID)
			p.queueMu.Unlock()
			p.process(job)
		}
	}
}

func (p *WorkerPool) process(job syncJob) {
	release, ok := p.acquireProviderSlot(job.connectionID)
	if !ok {
		return
	}
	defer release()

	result, err := p.syncer.SyncConnection(p.ctx, job.connectionID, job.trigger)
	if err != nil {
		logger.Warn("background sync %s: %v", job.connectionID, err)
		return
	}
	logger.Debug("background sync %s finished: %s", job.connectionID, result.Status)
}

// acquireProviderSlot blocks until the connection's provider has a free slot.
// Returns false if the pool stopped while waiting.
func (p *WorkerPool) acquireProviderSlot(connectionID string) (func(), bool) {
	if p.cfg.ProviderConcurrency <= 0 || p.connections == nil {
		return func() {}, true
	}
	conn, err := p.connections.Get(p.ctx, connectionID)
	if err != nil {
		return func() {}, true
	}

	p.slotMu.Lock()
	sem, exists := p.slots[conn.Provider]
	if !exists {
		sem = make(chan struct{}, p.cfg.ProviderConcurrency)
		p.slots[conn.Provider] = sem
	}
	p.slotMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, true
	case <-p.ctx.Done():
		return nil, false
	}
}
