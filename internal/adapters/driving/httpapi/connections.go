package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// connectionView is the API shape of a connection. Credential handles
// never leave the engine.
type connectionView struct {
	ID                string     `json:"id"`
	Provider          string     `json:"provider"`
	ExternalAccountID string     `json:"external_account_id,omitempty"`
	Status            string     `json:"status"`
	StatusReason      string     `json:"status_reason,omitempty"`
	Scopes            []string   `json:"scopes"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toConnectionView(c *domain.Connection) connectionView {
	return connectionView{
		ID:                c.ID,
		Provider:          string(c.Provider),
		ExternalAccountID: c.ExternalAccountID,
		Status:            string(c.Status),
		StatusReason:      c.StatusReason,
		Scopes:            c.Scopes,
		ExpiresAt:         timePtr(c.ExpiresAt),
		LastSyncAt:        timePtr(c.LastSyncAt),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

type syncResultView struct {
	ID           string     `json:"id"`
	Trigger      string     `json:"trigger"`
	Status       string     `json:"status"`
	Counts       countsView `json:"counts"`
	ErrorSummary string     `json:"error_summary,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      time.Time  `json:"ended_at"`
	DurationMS   int64      `json:"duration_ms"`
}

type countsView struct {
	Fetched          int `json:"fetched"`
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	Skipped          int `json:"skipped"`
	ConflictDeferred int `json:"conflict_deferred"`
	Errored          int `json:"errored"`
}

func toSyncResultView(r *domain.SyncResult) syncResultView {
	return syncResultView{
		ID:           r.ID,
		Trigger:      string(r.Trigger),
		Status:       string(r.Status),
		Counts:       countsView(r.Counts),
		ErrorSummary: r.ErrorSummary,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
		DurationMS:   r.Duration().Milliseconds(),
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Server) listConnections(c *gin.Context) {
	conns, err := s.svc.Connections.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		fail(c, "list connections", err)
		return
	}
	items := make([]connectionView, 0, len(conns))
	for i := range conns {
		items = append(items, toConnectionView(&conns[i]))
	}
	Ok(c, http.StatusOK, items, map[string]any{"total": len(items)})
}

// ownedConnection loads the path connection, answering 404 when it belongs
// to someone else.
func (s *Server) ownedConnection(c *gin.Context) (*domain.Connection, bool) {
	conn, err := s.svc.Connections.Get(c.Request.Context(), currentUser(c).ID, c.Param("id"))
	if err != nil {
		fail(c, "get connection", err)
		return nil, false
	}
	return conn, true
}

func (s *Server) getConnection(c *gin.Context) {
	conn, ok := s.ownedConnection(c)
	if !ok {
		return
	}
	Ok(c, http.StatusOK, toConnectionView(conn), nil)
}

func (s *Server) connectionStatus(c *gin.Context) {
	conn, ok := s.ownedConnection(c)
	if !ok {
		return
	}
	status, err := s.svc.Sync.Status(c.Request.Context(), conn.ID)
	if err != nil {
		fail(c, "sync status", err)
		return
	}
	Ok(c, http.StatusOK, gin.H{
		"connection_id":     status.ConnectionID,
		"running":           status.Running,
		"trigger":           status.Trigger,
		"records_processed": status.RecordsProcessed,
		"error_count":       status.ErrorCount,
		"last_sync_at":      timePtr(status.LastSyncAt),
	}, nil)
}

func (s *Server) connectionHistory(c *gin.Context) {
	conn, ok := s.ownedConnection(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 20)
	if limit > 100 {
		limit = 100
	}
	results, err := s.svc.Connections.History(c.Request.Context(), conn.ID, limit)
	if err != nil {
		fail(c, "sync history", err)
		return
	}
	items := make([]syncResultView, 0, len(results))
	for i := range results {
		items = append(items, toSyncResultView(&results[i]))
	}
	Ok(c, http.StatusOK, items, map[string]any{"limit": limit})
}

// triggerSync enqueues a manual sync. The run happens on the worker pool.
func (s *Server) triggerSync(c *gin.Context) {
	conn, ok := s.ownedConnection(c)
	if !ok {
		return
	}
	if !conn.Syncable() {
		Error(c, http.StatusConflict, "connection is "+string(conn.Status)+"; reauthorize to sync", nil)
		return
	}
	queued := s.svc.Queue.Enqueue(conn.ID, domain.TriggerManual)
	Ok(c, http.StatusAccepted, gin.H{"connection_id": conn.ID, "queued": queued}, nil)
}

func (s *Server) revokeConnection(c *gin.Context) {
	conn, ok := s.ownedConnection(c)
	if !ok {
		return
	}
	if err := s.svc.Auth.Revoke(c.Request.Context(), conn); err != nil {
		fail(c, "revoke connection", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
