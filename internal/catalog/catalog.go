// Package catalog implements the Session Catalog: the per-user sliding
// window of at most 10 sessions, local id minting, and FIFO reconciliation
// against Upstream's authoritative latest-10 list.
package catalog

import (
	"strconv"
	"time"

	"streamchat-orchestrator/internal/bus"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/repository/memory"
)

// MaxSessionsPerUser is the sliding-window cap. The source code's own "25"
// branch is a documented bug; this authoritative value is 10.
const MaxSessionsPerUser = 10

// EvictionHook is notified when a session falls out of the sliding window,
// so collaborating components (the Transcript Store, thinking buffers, the
// consumer manager) can drop anything keyed by that session.
type EvictionHook interface {
	OnSessionEvicted(userID, sessionID string)
}

type Catalog struct {
	repo   *memory.CatalogRepository
	logger logger.ILogger
	hooks  []EvictionHook
}

func New(repo *memory.CatalogRepository, log logger.ILogger) *Catalog {
	return &Catalog{repo: repo, logger: log}
}

func (c *Catalog) AddEvictionHook(h EvictionHook) {
	c.hooks = append(c.hooks, h)
}

// SeedLogin records the Upstream cursor at login time, from which local ids
// begin minting.
func (c *Catalog) SeedLogin(userID string, lastUpstreamSessionID int64) {
	c.repo.SetCursor(&domain.UpstreamCursor{
		UserID:                userID,
		LastUpstreamSessionID: lastUpstreamSessionID,
		LocalCounter:          lastUpstreamSessionID,
	})
}

// NextLocalID mints the next session id: max(lastUpstreamSessionId,
// currentLocalCounter) + 1, committing the counter.
func (c *Catalog) NextLocalID(userID string) string {
	cursor, ok := c.repo.Cursor(userID)
	if !ok {
		cursor = &domain.UpstreamCursor{UserID: userID}
	}
	next := cursor.LocalCounter
	if cursor.LastUpstreamSessionID > next {
		next = cursor.LastUpstreamSessionID
	}
	next++
	cursor.LocalCounter = next
	c.repo.SetCursor(cursor)
	return strconv.FormatInt(next, 10)
}

// UpsertResult reports the side effects of Upsert so the coordinator can
// attach window_management metadata to its response.
type UpsertResult struct {
	EvictedSessionID string
	NearLimitWarning bool
}

// Upsert inserts a new session or bumps an existing one's bookkeeping
// fields. New insertions apply the sliding-window policy first: at 10
// sessions already present, the numerically smallest id is evicted before
// the new one lands; at exactly 9 present (about to become the 10th), a
// near-limit warning is surfaced instead.
func (c *Catalog) Upsert(s *domain.Session) UpsertResult {
	var res UpsertResult

	if existing, ok := c.repo.Get(s.OwnerUserID, s.ID); ok {
		existing.UpdatedAt = time.Now()
		existing.CurrentChatID = s.CurrentChatID
		existing.TotalChats = s.TotalChats
		if s.Title != "" {
			existing.Title = s.Title
		}
		c.repo.Put(s.OwnerUserID, existing)
		return res
	}

	count := c.repo.Count(s.OwnerUserID)
	if count >= MaxSessionsPerUser {
		evictID := c.repo.OldestID(s.OwnerUserID)
		if evictID != "" {
			c.evict(s.OwnerUserID, evictID)
			res.EvictedSessionID = evictID
		}
	} else if count == MaxSessionsPerUser-1 {
		res.NearLimitWarning = true
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.UpdatedAt = time.Now()
	c.repo.Put(s.OwnerUserID, s)
	return res
}

func (c *Catalog) evict(userID, sessionID string) {
	c.repo.Delete(userID, sessionID)
	for _, h := range c.hooks {
		h.OnSessionEvicted(userID, sessionID)
	}
	c.logger.Info("Catalog", "session evicted from sliding window", map[string]interface{}{
		"user_id": userID, "session_id": sessionID,
	})
}

func (c *Catalog) Get(userID, sessionID string) (*domain.Session, bool) {
	return c.repo.Get(userID, sessionID)
}

// List returns the user's sessions ordered by id descending.
func (c *Catalog) List(userID string) []*domain.Session {
	return c.repo.ListDescending(userID)
}

// HasUpstreamSourced implements the cache policy: a catalog holding at
// least one Upstream-sourced entry is served from memory; an all-local
// catalog is treated as stale and triggers a fresh fetch.
func (c *Catalog) HasUpstreamSourced(userID string) bool {
	for _, s := range c.repo.ListDescending(userID) {
		if s.Source == domain.SessionSourceUpstream || s.Source == domain.SessionSourceLocalUpdatedUpstream {
			return true
		}
	}
	return false
}

// SyncFromUpstream merges an authoritative session-index publication into
// the catalog. Upstream's title always overwrites any local title for the
// same id (P7); ids not yet known locally are inserted fresh.
func (c *Catalog) SyncFromUpstream(userID string, entries []bus.IndexEntry) {
	for _, e := range entries {
		if existing, ok := c.repo.Get(userID, e.SessionID); ok {
			existing.Title = e.Title
			if existing.Source == domain.SessionSourceLocal {
				existing.Source = domain.SessionSourceLocalUpdatedUpstream
			} else {
				existing.Source = domain.SessionSourceUpstream
			}
			existing.UpdatedAt = time.Now()
			c.repo.Put(userID, existing)
			continue
		}

		count := c.repo.Count(userID)
		if count >= MaxSessionsPerUser {
			if evictID := c.repo.OldestID(userID); evictID != "" {
				c.evict(userID, evictID)
			}
		}

		c.repo.Put(userID, &domain.Session{
			ID:          e.SessionID,
			Title:       e.Title,
			OwnerUserID: userID,
			Source:      domain.SessionSourceUpstream,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		})
	}

	c.logger.Info("Catalog", "synced session index from upstream", map[string]interface{}{
		"user_id": userID, "entries": len(entries),
	})
}

// Delete removes a single session (client-requested delete, not eviction).
func (c *Catalog) Delete(userID, sessionID string) {
	c.repo.Delete(userID, sessionID)
	for _, h := range c.hooks {
		h.OnSessionEvicted(userID, sessionID)
	}
}

// Flush clears every session and cursor for userID, part of the logout
// total flush.
func (c *Catalog) Flush(userID string) {
	c.repo.FlushUser(userID)
}
