package memory

import (
	"sync"
	"time"

	"streamchat-orchestrator/internal/domain"

	"github.com/patrickmn/go-cache"
)

// transcriptEntry is one (userId, sessionId) transcript: an ordered slice of
// Messages guarded by its own mutex so concurrent chats in different
// sessions never contend on a single global lock.
type transcriptEntry struct {
	mu       sync.Mutex
	messages []*domain.Message
}

// TranscriptRepository backs the Transcript Store the same way
// CatalogRepository backs the Session Catalog: patrickmn/go-cache holding
// process-memory entries, with TTL expiry as a safety net under the
// logout flush.
type TranscriptRepository struct {
	cache      *cache.Cache
	creationMu sync.Mutex
}

func NewTranscriptRepository() *TranscriptRepository {
	return &TranscriptRepository{
		cache: cache.New(2*time.Hour, 10*time.Minute),
	}
}

func transcriptKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

func (r *TranscriptRepository) entry(userID, sessionID string) *transcriptEntry {
	key := transcriptKey(userID, sessionID)
	if v, ok := r.cache.Get(key); ok {
		return v.(*transcriptEntry)
	}

	r.creationMu.Lock()
	defer r.creationMu.Unlock()
	if v, ok := r.cache.Get(key); ok {
		return v.(*transcriptEntry)
	}
	e := &transcriptEntry{}
	r.cache.Set(key, e, cache.DefaultExpiration)
	return e
}

// Append adds msg to the end of the transcript.
func (r *TranscriptRepository) Append(userID, sessionID string, msg *domain.Message) {
	e := r.entry(userID, sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

// Snapshot returns a shallow copy of the transcript's message pointers,
// stable against concurrent Append/Scrub calls made after it returns.
func (r *TranscriptRepository) Snapshot(userID, sessionID string) []*domain.Message {
	e := r.entry(userID, sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// ScrubIncomplete removes every message matching chatID with
// IsComplete == false, returning how many were removed.
func (r *TranscriptRepository) ScrubIncomplete(userID, sessionID, chatID string) int {
	e := r.entry(userID, sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.messages[:0:0]
	removed := 0
	for _, m := range e.messages {
		if m.ChatID == chatID && !m.IsComplete {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	e.messages = kept
	return removed
}

// Delete removes the whole transcript for (userID, sessionID).
func (r *TranscriptRepository) Delete(userID, sessionID string) {
	r.cache.Delete(transcriptKey(userID, sessionID))
}

// DeleteUser removes userID's transcript for each session id in
// sessionIDs. go-cache has no prefix-scan, so the caller (the Transcript
// Store) supplies the session ids; transcripts of sessions not listed are
// left in place.
func (r *TranscriptRepository) DeleteUser(userID string, sessionIDs []string) {
	for _, sid := range sessionIDs {
		r.Delete(userID, sid)
	}
}
