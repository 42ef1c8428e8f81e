package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
	"github.com/custodia-labs/syncengine/internal/core/ports/driving"
	"github.com/custodia-labs/syncengine/internal/logger"
)

// Ensure SyncManager implements the interface.
var _ driving.SyncManager = (*SyncManager)(nil)

// SyncConfig tunes sync execution.
type SyncConfig struct {
	// LeaseTTL is the maximum time a run may hold a connection's lease.
	LeaseTTL time.Duration

	// CallTimeout bounds each provider call.
	CallTimeout time.Duration

	// Retry controls page-level retries of transient failures.
	Retry RetryPolicy

	// ConflictWindow is how close a manual entry's start time must be to a
	// synced record's for both to occupy the same slot.
	ConflictWindow time.Duration

	// DefaultLookback is the first-sync window when the adapter has none.
	DefaultLookback time.Duration

	// RateLimitBackoff is the reschedule delay when the provider gives none.
	RateLimitBackoff time.Duration

	// UserParallelism bounds concurrent connection syncs in SyncAllForUser.
	UserParallelism int

	// Holder identifies this process in lease records.
	Holder string
}

// DefaultSyncConfig returns the standard sync settings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		LeaseTTL:         15 * time.Minute,
		CallTimeout:      30 * time.Second,
		Retry:            DefaultRetryPolicy(),
		ConflictWindow:   15 * time.Minute,
		DefaultLookback:  30 * 24 * time.Hour,
		RateLimitBackoff: time.Minute,
		UserParallelism:  4,
		Holder:           "syncengine",
	}
}

// recordOutcome is what happened to one fetched record.
type recordOutcome int

const (
	outcomeSkipped recordOutcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeConflictDeferred
)

// SyncManager reconciles provider records into canonical entities.
// One algorithm serves every trigger: scheduled, manual, webhook and initial.
type SyncManager struct {
	connections driven.ConnectionStore
	mappings    driven.MappingStore
	history     driven.HistoryStore
	leases      driven.LeaseStore
	entities    driven.EntityStore
	registry    driving.ProviderRegistry
	auth        driving.AuthManager
	notifier    driven.Notifier
	queue       driving.SyncQueue
	clock       Clock
	cfg         SyncConfig

	// Status tracking
	mu          sync.RWMutex
	activeSyncs map[string]*driving.SyncStatus
}

// NewSyncManager creates a sync manager. The notifier may be nil.
func NewSyncManager(
	connections driven.ConnectionStore,
	mappings driven.MappingStore,
	history driven.HistoryStore,
	leases driven.LeaseStore,
	entities driven.EntityStore,
	registry driving.ProviderRegistry,
	auth driving.AuthManager,
	notifier driven.Notifier,
	clock Clock,
	cfg SyncConfig,
) *SyncManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.UserParallelism <= 0 {
		cfg.UserParallelism = 1
	}
	return &SyncManager{
		connections: connections,
		mappings:    mappings,
		history:     history,
		leases:      leases,
		entities:    entities,
		registry:    registry,
		auth:        auth,
		notifier:    notifier,
		clock:       clock,
		cfg:         cfg,
		activeSyncs: make(map[string]*driving.SyncStatus),
	}
}

// SetQueue sets where rate-limited runs are rescheduled. Without a queue
// they simply wait for the next scheduled tick.
func (s *SyncManager) SetQueue(queue driving.SyncQueue) {
	s.queue = queue
}

// SyncConnection runs one sync for a connection under its lease.
func (s *SyncManager) SyncConnection(
	ctx context.Context,
	connectionID string,
	trigger domain.SyncTrigger,
) (*domain.SyncResult, error) {
	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if !conn.Syncable() {
		return nil, fmt.Errorf("sync %s: %w", conn.ID, domain.ErrConnectionRevoked)
	}

	holder := s.cfg.Holder + "/" + uuid.NewString()
	acquired, err := s.leases.Acquire(ctx, conn.ID, holder, s.cfg.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		logger.Debug("sync %s skipped: already in progress", conn.ID)
		now := s.clock.Now()
		return &domain.SyncResult{
			ConnectionID: conn.ID,
			Trigger:      trigger,
			Status:       domain.SyncSkippedInProgress,
			StartedAt:    now,
			EndedAt:      now,
		}, nil
	}
	defer func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), conn.ID, holder); err != nil {
			logger.Warn("release lease for %s: %v", conn.ID, err)
		}
	}()

	lease := &runLease{holder: holder, until: s.clock.Now().Add(s.cfg.LeaseTTL)}
	return s.run(ctx, conn, trigger, lease), nil
}

// runLease tracks the lease a run holds and when it lapses.
type runLease struct {
	holder string
	until  time.Time
}

// leaseMargin is left unused at the end of a lease so bounded calls stop
// before another worker can take it over.
func (s *SyncManager) leaseMargin() time.Duration {
	margin := s.cfg.LeaseTTL / 10
	if margin > 30*time.Second {
		margin = 30 * time.Second
	}
	return margin
}

// remaining is how long the run may keep working under its lease.
func (s *SyncManager) remaining(lease *runLease) time.Duration {
	return lease.until.Sub(s.clock.Now()) - s.leaseMargin()
}

// renew extends the lease before fetched records are written.
func (s *SyncManager) renew(ctx context.Context, conn *domain.Connection, lease *runLease) error {
	ok, err := s.leases.Renew(ctx, conn.ID, lease.holder, s.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLeaseLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: lease for %s expired", domain.ErrLeaseLost, conn.ID)
	}
	lease.until = s.clock.Now().Add(s.cfg.LeaseTTL)
	return nil
}

// run executes the sync algorithm. The caller holds the lease.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (s *SyncManager) run(
	ctx context.Context,
	conn *domain.Connection,
	trigger domain.SyncTrigger,
	lease *runLease,
) *domain.SyncResult {
	result := &domain.SyncResult{
		ID:           uuid.NewString(),
		ConnectionID: conn.ID,
		Trigger:      trigger,
		StartedAt:    s.clock.Now(),
	}

	status := &driving.SyncStatus{
		ConnectionID: conn.ID,
		Running:      true,
		Trigger:      trigger,
		LastSyncAt:   conn.LastSyncAt,
	}
	s.setStatus(conn.ID, status)
	defer s.clearStatus(conn.ID)

	logger.Section("Sync " + conn.ID)
	logger.Info("starting %s sync for %s", trigger, conn)

	// 1. Resolve the adapter
	adapter, err := s.registry.Get(conn.Provider)
	if err != nil {
		return s.fail(ctx, conn, result, err)
	}

	// 2. Make sure tokens are usable
	token, err := s.auth.EnsureFreshToken(ctx, conn)
	if err != nil {
		if domain.IsTerminalRefresh(err) {
			s.promptReconnect(ctx, conn, "authorization expired, please reconnect")
		}
		return s.fail(ctx, conn, result, err)
	}

	// 3. Compute the sync window
	since := conn.LastSyncAt
	if since.IsZero() {
		lookback := adapter.DefaultLookback()
		if lookback <= 0 {
			lookback = s.cfg.DefaultLookback
		}
		since = result.StartedAt.Add(-lookback)
	}

	// 4. Stream pages and reconcile each record independently
	watermark := conn.LastSyncAt
	persisted := conn.LastSyncAt
	prefixIntact := true
	var fetchErr error
	cursor := ""

	for {
		left := s.remaining(lease)
		if left <= 0 {
			fetchErr = fmt.Errorf("%w: lease for %s is about to expire", domain.ErrLeaseLost, conn.ID)
			break
		}
		pageCtx, cancel := context.WithTimeout(ctx, left)
		page, err := s.fetchPage(pageCtx, conn, adapter, &token, since, cursor)
		leaseExpired := pageCtx.Err() != nil && ctx.Err() == nil
		cancel()
		if err != nil {
			if leaseExpired {
				err = fmt.Errorf("%w: %w", domain.ErrLeaseLost, err)
			}
			fetchErr = err
			break
		}

		// Another worker may own the connection by now; its run wins
		if err := s.renew(ctx, conn, lease); err != nil {
			fetchErr = err
			break
		}

		for _, record := range page.Records {
			result.Counts.Fetched++
			outcome, err := s.processRecord(ctx, conn, adapter, record)
			if err != nil {
				result.Counts.Errored++
				prefixIntact = false
				logger.Warn("sync %s: record %s failed: %v", conn.ID, record.ExternalID, err)
				s.updateStatus(conn.ID, func(st *driving.SyncStatus) { st.ErrorCount++ })
				continue
			}

			switch outcome {
			case outcomeCreated:
				result.Counts.Created++
			case outcomeUpdated:
				result.Counts.Updated++
			case outcomeConflictDeferred:
				result.Counts.ConflictDeferred++
			default:
				result.Counts.Skipped++
			}
			if prefixIntact && record.Timestamp.After(watermark) {
				watermark = record.Timestamp
			}
			s.updateStatus(conn.ID, func(st *driving.SyncStatus) { st.RecordsProcessed++ })
		}

		// 5. Persist progress after every page so an interrupted run resumes here
		if watermark.After(persisted) {
			if err := s.connections.UpdateLastSync(context.WithoutCancel(ctx), conn.ID, watermark); err != nil {
				logger.Warn("advance watermark for %s: %v", conn.ID, err)
			} else {
				persisted = watermark
				s.updateStatus(conn.ID, func(st *driving.SyncStatus) { st.LastSyncAt = watermark })
			}
		}

		if page.NextCursor == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			fetchErr = err
			break
		}
		cursor = page.NextCursor
	}

	// 6. Summarise
	switch {
	case fetchErr != nil && domain.IsRateLimited(fetchErr):
		result.Status = domain.SyncRateLimited
		result.ErrorSummary = fetchErr.Error()
		s.reschedule(conn, trigger, fetchErr)
	case fetchErr != nil && result.Counts.Fetched == 0:
		result.Status = domain.SyncFailed
		result.ErrorSummary = fetchErr.Error()
	case fetchErr != nil:
		result.Status = domain.SyncPartial
		result.ErrorSummary = fetchErr.Error()
	case result.Counts.Errored > 0:
		result.Status = domain.SyncPartial
		result.ErrorSummary = fmt.Sprintf("%d of %d records failed", result.Counts.Errored, result.Counts.Fetched)
	default:
		result.Status = domain.SyncSuccess
	}

	if fetchErr != nil {
		s.handleFetchError(ctx, conn, fetchErr)
	} else if conn.Status == domain.StatusError {
		s.setConnectionStatus(ctx, conn, domain.StatusActive, "")
	}

	return s.finish(ctx, conn, result)
}

// fetchPage fetches one page, retrying transient failures with backoff and
// refreshing the token once after a 401.
func (s *SyncManager) fetchPage(
	ctx context.Context,
	conn *domain.Connection,
	adapter driven.ProviderAdapter,
	token **domain.TokenPair,
	since time.Time,
	cursor string,
) (*domain.RecordPage, error) {
	retries := 0
	refreshed := false

	for {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		page, err := adapter.Fetch(callCtx, *token, since, cursor)
		cancel()
		if err == nil {
			return page, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch interrupted: %w", ctxErr)
		}

		switch {
		case domain.IsUnauthorized(err) && !refreshed:
			refreshed = true
			logger.Debug("sync %s: access token rejected, refreshing", conn.ID)
			fresh, rerr := s.auth.ForceRefresh(ctx, conn)
			if rerr != nil {
				return nil, rerr
			}
			*token = fresh

		case domain.IsUnauthorized(err):
			return nil, domain.NewProviderError(conn.Provider, domain.ProviderPermanent, 401,
				fmt.Errorf("access token rejected after refresh: %w", err))

		case retryable(err) && retries < s.cfg.Retry.MaxRetries:
			delay := s.cfg.Retry.Delay(retries)
			retries++
			logger.Debug("sync %s: fetch failed (%v), retry %d in %s", conn.ID, err, retries, delay)
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("fetch interrupted: %w", err)
			}

		default:
			return nil, err
		}
	}
}

// processRecord reconciles one record. Panics are converted to errors so a
// single bad record never aborts the run.
func (s *SyncManager) processRecord(
	ctx context.Context,
	conn *domain.Connection,
	adapter driven.ProviderAdapter,
	record domain.ExternalRecord,
) (outcome recordOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing record: %v", r)
		}
	}()

	if record.ExternalID == "" {
		return 0, fmt.Errorf("record without external id: %w", domain.ErrInvalidInput)
	}

	// a. Dedup against the mapping
	key := domain.MappingKey{ConnectionID: conn.ID, ExternalID: record.ExternalID, EntityType: record.EntityType}
	fingerprint := record.Fingerprint()

	existing, err := s.mappings.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("get mapping: %w", err)
	}
	if existing != nil && existing.Fingerprint == fingerprint {
		return outcomeSkipped, nil
	}

	// b. Map and resolve conflicts
	draft, err := adapter.MapToCanonical(record)
	if err != nil {
		return 0, fmt.Errorf("map record: %w", err)
	}
	draft.UserID = conn.UserID
	draft.Provider = conn.Provider
	if draft.EntityType == "" {
		draft.EntityType = record.EntityType
	}

	mapping := &domain.RecordMapping{
		ConnectionID: conn.ID,
		ExternalID:   record.ExternalID,
		EntityType:   record.EntityType,
		Snapshot:     record.Payload,
		Fingerprint:  fingerprint,
		LastSyncedAt: s.clock.Now(),
	}
	if existing != nil {
		mapping.EntityID = existing.EntityID
	}

	occupant, err := s.entities.FindInSlot(ctx, conn.UserID, draft.EntityType, draft.StartAt, s.cfg.ConflictWindow)
	if err != nil {
		return 0, fmt.Errorf("find slot: %w", err)
	}
	if occupant != nil && occupant.Origin == domain.OriginManual {
		// Manual entries win: keep the snapshot for change detection only
		if err := s.mappings.Upsert(ctx, mapping); err != nil {
			return 0, fmt.Errorf("upsert mapping: %w", err)
		}
		logger.Debug("sync %s: record %s deferred to manual entry %s", conn.ID, record.ExternalID, occupant.ID)
		return outcomeConflictDeferred, nil
	}

	outcome = outcomeUpdated
	if mapping.EntityID == "" {
		outcome = outcomeCreated
	}
	entityID, err := s.entities.Upsert(ctx, mapping.EntityID, draft)
	if err != nil {
		return 0, fmt.Errorf("upsert entity: %w", err)
	}
	mapping.EntityID = entityID
	if err := s.mappings.Upsert(ctx, mapping); err != nil {
		return 0, fmt.Errorf("upsert mapping: %w", err)
	}
	return outcome, nil
}

// handleFetchError applies connection-level consequences of a failed fetch.
func (s *SyncManager) handleFetchError(ctx context.Context, conn *domain.Connection, err error) {
	switch {
	case domain.IsTerminalRefresh(err):
		s.promptReconnect(ctx, conn, "authorization expired, please reconnect")
	case domain.IsPermanent(err):
		if s.setConnectionStatus(ctx, conn, domain.StatusError, err.Error()) {
			s.promptReconnect(ctx, conn, "the provider rejected access, please reconnect")
		}
	case domain.IsRateLimited(err):
		logger.Info("sync %s rate limited by %s", conn.ID, conn.Provider)
	case errors.Is(err, domain.ErrLeaseLost):
		logger.Warn("sync %s stopped: %v", conn.ID, err)
	default:
		logger.Warn("sync %s interrupted: %v", conn.ID, err)
	}
}

func (s *SyncManager) reschedule(conn *domain.Connection, trigger domain.SyncTrigger, err error) {
	if s.queue == nil {
		return
	}
	delay := domain.RetryAfter(err)
	if delay <= 0 {
		delay = s.cfg.RateLimitBackoff
	}
	s.queue.EnqueueAfter(conn.ID, trigger, delay)
	logger.Info("sync %s rescheduled in %s", conn.ID, delay)
}

// fail records a run that stopped before fetching.
func (s *SyncManager) fail(ctx context.Context, conn *domain.Connection, result *domain.SyncResult, err error) *domain.SyncResult {
	result.Status = domain.SyncFailed
	result.ErrorSummary = err.Error()
	logger.Warn("sync %s failed: %v", conn.ID, err)
	return s.finish(ctx, conn, result)
}

// finish writes the history entry and notifies. It runs even when ctx is
// cancelled so interrupted runs are still recorded.
func (s *SyncManager) finish(ctx context.Context, conn *domain.Connection, result *domain.SyncResult) *domain.SyncResult {
	ctx = context.WithoutCancel(ctx)
	result.EndedAt = s.clock.Now()

	if err := s.history.Append(ctx, result); err != nil {
		logger.Error("append sync history for %s: %v", conn.ID, err)
	}

	c := result.Counts
	logger.Info("sync %s %s: fetched=%d created=%d updated=%d skipped=%d deferred=%d errored=%d",
		conn.ID, result.Status, c.Fetched, c.Created, c.Updated, c.Skipped, c.ConflictDeferred, c.Errored)

	if s.notifier != nil {
		if err := s.notifier.SyncCompleted(ctx, conn, result); err != nil {
			logger.Warn("notify sync result for %s: %v", conn.ID, err)
		}
	}
	return result
}

func (s *SyncManager) promptReconnect(ctx context.Context, conn *domain.Connection, reason string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ReconnectRequired(context.WithoutCancel(ctx), conn, reason); err != nil {
		logger.Warn("notify reconnect for %s: %v", conn.ID, err)
	}
}

// setConnectionStatus reports whether the status was written. A connection
// revoked while the run was in flight stays revoked.
func (s *SyncManager) setConnectionStatus(ctx context.Context, conn *domain.Connection, status domain.ConnectionStatus, reason string) bool {
	err := s.connections.UpdateStatus(context.WithoutCancel(ctx), conn.ID, status, reason)
	switch {
	case errors.Is(err, domain.ErrConnectionRevoked):
		logger.Info("sync %s: connection revoked during the run", conn.ID)
		conn.Status = domain.StatusRevoked
		return false
	case err != nil:
		logger.Warn("set %s status %s: %v", conn.ID, status, err)
		return false
	}
	conn.Status = status
	conn.StatusReason = reason
	return true
}

// SyncAllForUser syncs each of the user's non-revoked connections. A failing
// connection never stops the others; its failure shows in its result.
func (s *SyncManager) SyncAllForUser(
	ctx context.Context,
	userID string,
	trigger domain.SyncTrigger,
) ([]domain.SyncResult, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	var syncable []domain.Connection
	for _, c := range conns {
		if c.Syncable() {
			syncable = append(syncable, c)
		}
	}

	results := make([]domain.SyncResult, len(syncable))
	var g errgroup.Group
	g.SetLimit(s.cfg.UserParallelism)
	for i := range syncable {
		conn := syncable[i]
		g.Go(func() error {
			res, err := s.SyncConnection(ctx, conn.ID, trigger)
			if err != nil {
				logger.Warn("sync %s: %v", conn.ID, err)
				now := s.clock.Now()
				results[i] = domain.SyncResult{
					ConnectionID: conn.ID,
					Trigger:      trigger,
					Status:       domain.SyncFailed,
					ErrorSummary: err.Error(),
					StartedAt:    now,
					EndedAt:      now,
				}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Status returns the live status of a connection's sync.
func (s *SyncManager) Status(ctx context.Context, connectionID string) (*driving.SyncStatus, error) {
	s.mu.RLock()
	if status, ok := s.activeSyncs[connectionID]; ok {
		// Return a copy to avoid race conditions
		cp := *status
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	conn, err := s.connections.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return &driving.SyncStatus{
		ConnectionID: connectionID,
		Running:      false,
		LastSyncAt:   conn.LastSyncAt,
	}, nil
}

// setStatus sets the sync status for a connection.
func (s *SyncManager) setStatus(connectionID string, status *driving.SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSyncs[connectionID] = status
}

// updateStatus mutates the live status under the lock.
func (s *SyncManager) updateStatus(connectionID string, fn func(*driving.SyncStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.activeSyncs[connectionID]; ok {
		fn(status)
	}
}

// clearStatus removes the sync status for a connection.
func (s *SyncManager) clearStatus(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeSyncs, connectionID)
}
