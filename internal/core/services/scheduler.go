package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of task results kept per task.
const historyRetention = 100

// stateCleaner purges abandoned authorization states.
type stateCleaner interface {
	PurgeExpiredStates(ctx context.Context) (int, error)
}

// Scheduler runs periodic background tasks on a cron runner: syncing every
// user's connections and purging expired authorization states.
// It is a pure core service with no external control API.
type Scheduler struct {
	config      domain.SchedulerConfig
	store       driven.SchedulerStore
	connections driven.ConnectionStore
	syncer      driving.SyncManager
	cleaner     stateCleaner

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
// The store and cleaner may be nil.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	connections driven.ConnectionStore,
	syncer driving.SyncManager,
	cleaner stateCleaner,
) *Scheduler {
	return &Scheduler{
		config:      config,
		store:       store,
		connections: connections,
		syncer:      syncer,
		cleaner:     cleaner,
	}
}

// Start registers the enabled tasks and blocks until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		logger.Info("scheduler disabled")
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	for _, id := range []string{domain.TaskIDConnectionSync, domain.TaskIDStateCleanup} {
		taskCfg := s.config.GetTaskConfig(id)
		if !taskCfg.Enabled || taskCfg.Interval <= 0 {
			continue
		}
		if err := s.ensureTask(ctx, id, taskName(id), taskCfg); err != nil {
			logger.Warn("scheduler: failed to initialise task %s: %v", id, err)
		}
		taskID := id
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", taskCfg.Interval), func() {
			s.runTask(ctx, taskID)
		}); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("schedule task %s: %w", id, err)
		}
	}

	s.cron = c
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	c.Start()
	logger.Info("scheduler started with %d tasks", len(c.Entries()))

	select {
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	case <-stopCh:
		return nil
	}
}

// Stop gracefully shuts down the scheduler and waits for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.wg.Wait()
	return nil
}

// RunNow executes a task immediately and waits for it.
func (s *Scheduler) RunNow(ctx context.Context, taskID string) *domain.TaskResult {
	return s.runTask(ctx, taskID)
}

func taskName(id string) string {
	switch id {
	case domain.TaskIDConnectionSync:
		return "Connection Sync"
	case domain.TaskIDStateCleanup:
		return "Authorization State Cleanup"
	default:
		return id
	}
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	if s.store == nil {
		return nil
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// runTask executes a single task and records its result.
func (s *Scheduler) runTask(ctx context.Context, taskID string) *domain.TaskResult {
	s.wg.Add(1)
	defer s.wg.Done()

	result := &domain.TaskResult{
		TaskID:    taskID,
		StartedAt: time.Now(),
	}

	var err error
	switch taskID {
	case domain.TaskIDConnectionSync:
		result.ItemsProcessed, err = s.runConnectionSync(ctx)
	case domain.TaskIDStateCleanup:
		result.ItemsProcessed, err = s.runStateCleanup(ctx)
	default:
		err = fmt.Errorf("unknown task ID: %s", taskID)
	}

	result.EndedAt = time.Now()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		logger.Warn("scheduler: task %s failed: %v", taskID, err)
	}

	s.record(ctx, taskID, result)
	return result
}

func (s *Scheduler) record(ctx context.Context, taskID string, result *domain.TaskResult) {
	if s.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	task, err := s.store.GetTask(ctx, taskID)
	if err == nil && task != nil {
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)
		if result.Success {
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		} else {
			task.LastError = result.Error
		}
		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", taskID, saveErr)
		}
	}

	if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
		logger.Warn("scheduler: failed to record result for %s: %v", taskID, recordErr)
	}
	if pruneErr := s.store.PruneHistory(ctx, historyRetention); pruneErr != nil {
		logger.Warn("scheduler: failed to prune history: %v", pruneErr)
	}
}

// runConnectionSync syncs every user with a syncable connection.
// Returns the number of connection runs attempted.
func (s *Scheduler) runConnectionSync(ctx context.Context) (int, error) {
	if s.syncer == nil || s.connections == nil {
		return 0, nil
	}
	users, err := s.connections.ListSyncableUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	total := 0
	var errs []error
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		results, err := s.syncer.SyncAllForUser(ctx, userID, domain.TriggerScheduled)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		total += len(results)
	}
	return total, errors.Join(errs...)
}

// runStateCleanup purges expired authorization states.
func (s *Scheduler) runStateCleanup(ctx context.Context) (int, error) {
	if s.cleaner == nil {
		return 0, nil
	}
	return s.cleaner.PurgeExpiredStates(ctx)
}
