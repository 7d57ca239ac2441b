// Package memory holds the process-memory backing stores for the Session
// Catalog and Transcript Store, built the way the teacher backs its session
// store: a patrickmn/go-cache instance under a small typed wrapper. The
// cache's own TTL expiry is a safety net underneath the catalog's explicit
// logout flush, not a substitute for it.
package memory

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"streamchat-orchestrator/internal/domain"

	"github.com/patrickmn/go-cache"
)

// CatalogRepository stores Sessions and each user's Upstream cursor. Session
// ordering (needed for the sliding-window eviction and descending-id list
// view) is tracked separately from the cache, since go-cache itself has no
// notion of order.
type CatalogRepository struct {
	cache *cache.Cache

	mu      sync.RWMutex
	order   map[string][]string // userID -> sessionIDs, oldest first
	cursors map[string]*domain.UpstreamCursor
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		cache:   cache.New(2*time.Hour, 10*time.Minute),
		order:   make(map[string][]string),
		cursors: make(map[string]*domain.UpstreamCursor),
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// Put inserts or replaces a session, appending it to the order index only
// the first time it is seen for that user.
func (r *CatalogRepository) Put(userID string, s *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Set(sessionKey(userID, s.ID), s, cache.DefaultExpiration)

	ids := r.order[userID]
	for _, id := range ids {
		if id == s.ID {
			return
		}
	}
	r.order[userID] = append(ids, s.ID)
}

func (r *CatalogRepository) Get(userID, sessionID string) (*domain.Session, bool) {
	v, ok := r.cache.Get(sessionKey(userID, sessionID))
	if !ok {
		return nil, false
	}
	return v.(*domain.Session), true
}

// Delete removes a session from both the cache and the order index.
func (r *CatalogRepository) Delete(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(sessionKey(userID, sessionID))
	ids := r.order[userID]
	for i, id := range ids {
		if id == sessionID {
			r.order[userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// OldestID returns the numerically smallest session id currently held for
// userID, or "" if the user has none.
func (r *CatalogRepository) OldestID(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[userID]
	if len(ids) == 0 {
		return ""
	}
	smallest := ids[0]
	smallestN, _ := strconv.ParseInt(smallest, 10, 64)
	for _, id := range ids[1:] {
		n, err := strconv.ParseInt(id, 10, 64)
		if err == nil && n < smallestN {
			smallest, smallestN = id, n
		}
	}
	return smallest
}

// Count returns how many sessions are currently tracked for userID.
func (r *CatalogRepository) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order[userID])
}

// ListDescending returns every session for userID ordered by numeric id,
// descending (newest first), matching the FIFO re-sync's returned ordering.
func (r *CatalogRepository) ListDescending(userID string) []*domain.Session {
	r.mu.RLock()
	ids := append([]string(nil), r.order[userID]...)
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.ParseInt(ids[i], 10, 64)
		b, _ := strconv.ParseInt(ids[j], 10, 64)
		return a > b
	})

	out := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.Get(userID, id); ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *CatalogRepository) Cursor(userID string) (*domain.UpstreamCursor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cursors[userID]
	return c, ok
}

func (r *CatalogRepository) SetCursor(c *domain.UpstreamCursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[c.UserID] = c
}

// FlushUser clears every session and the cursor for userID, part of the
// logout total flush.
func (r *CatalogRepository) FlushUser(userID string) {
	r.mu.Lock()
	ids := r.order[userID]
	delete(r.order, userID)
	delete(r.cursors, userID)
	r.mu.Unlock()

	for _, id := range ids {
		r.cache.Delete(sessionKey(userID, id))
	}
}
