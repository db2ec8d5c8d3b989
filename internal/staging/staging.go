package staging

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// Batch holds one uploaded simulation awaiting confirmation. Approved rows
// are the ones that passed overlap validation at upload time.
type Batch struct {
	SessionID string               `json:"session_id"`
	Actor     string               `json:"actor"`
	Approved  []models.Appointment `json:"approved"`
	Rejected  []models.Appointment `json:"rejected"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// Store keeps staged batches keyed by session id with a TTL, so concurrent
// uploads from different actors never clobber each other.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]Batch
	now   func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:   ttl,
		items: make(map[string]Batch),
		now:   time.Now,
	}
}

func (s *Store) Put(actor string, approved, rejected []models.Appointment) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	now := s.now().UTC()
	b := Batch{
		SessionID: uuid.NewString(),
		Actor:     actor,
		Approved:  approved,
		Rejected:  rejected,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.items[b.SessionID] = b
	return b
}

func (s *Store) Get(sessionID string) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	b, ok := s.items[sessionID]
	return b, ok
}

// Take removes and returns the batch, so a session can be confirmed once.
func (s *Store) Take(sessionID string) (Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	b, ok := s.items[sessionID]
	if ok {
		delete(s.items, sessionID)
	}
	return b, ok
}

func (s *Store) sweepLocked() {
	now := s.now().UTC()
	for id, b := range s.items {
		if now.After(b.ExpiresAt) {
			delete(s.items, id)
		}
	}
}
