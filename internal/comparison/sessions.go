package comparison

import (
	"container/heap"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Session errors.
var (
	ErrSessionNotFound = errors.New("comparison session not found")
	ErrSessionFull     = errors.New("comparison session is full")
)

// DefaultSessionTTL is how long a session lives after creation.
const DefaultSessionTTL = 24 * time.Hour

// Session is a user's running list of products to compare.
type Session struct {
	ID         string    `json:"session_id"`
	ProductIDs []string  `json:"product_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (s *Session) clone() *Session {
	out := *s
	out.ProductIDs = slices.Clone(s.ProductIDs)
	if out.ProductIDs == nil {
		out.ProductIDs = []string{}
	}
	return &out
}

// SessionStore persists sessions until they expire.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// Update applies fn to a live session atomically and returns the stored
	// result. Nothing is written when fn fails.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	// Sweep removes sessions that expired at or before now and returns how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// MemorySessionStore keeps sessions in memory with an expiry index.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	expiry   expiryHeap
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session), now: time.Now}
}

// Get returns a copy of the session. Expired sessions are not found even
// before they are swept.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Put stores a copy of the session.
func (s *MemorySessionStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(sess)
	return nil
}

// Update runs fn on a copy under the store lock.
func (s *MemorySessionStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.sessions[id]
	if !ok || !s.now().Before(cur.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	sess := cur.clone()
	if err := fn(sess); err != nil {
		return nil, err
	}
	s.putLocked(sess)
	return sess.clone(), nil
}

func (s *MemorySessionStore) putLocked(sess *Session) {
	prev, exists := s.sessions[sess.ID]
	s.sessions[sess.ID] = sess.clone()
	if !exists || !prev.ExpiresAt.Equal(sess.ExpiresAt) {
		heap.Push(&s.expiry, expiryEntry{id: sess.ID, at: sess.ExpiresAt})
	}
}

// Delete removes the session. Its index entry is dropped on the next sweep.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Sweep pops due index entries and removes the sessions they still match.
func (s *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for s.expiry.Len() > 0 && !s.expiry[0].at.After(now) {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		e := heap.Pop(&s.expiry).(expiryEntry)
		sess, ok := s.sessions[e.id]
		if ok && sess.ExpiresAt.Equal(e.at) {
			delete(s.sessions, e.id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type expiryEntry struct {
	id string
	at time.Time
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

const sessionKeyPrefix = "session:"

// CacheSessionStore keeps sessions in a cache.Client. Expiry is delegated to
// the cache TTL, so Sweep has nothing to do.
type CacheSessionStore struct {
	cache cache.Client
	now   func() time.Time
}

// NewCacheSessionStore creates a store on top of c.
func NewCacheSessionStore(c cache.Client) *CacheSessionStore {
	return &CacheSessionStore{cache: c, now: time.Now}
}

// Get loads a session.
func (s *CacheSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := cache.GetJSON(ctx, s.cache, sessionKeyPrefix+id, &sess)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// Put saves a session with the time it has left as TTL.
func (s *CacheSessionStore) Put(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, sess.ID)
	}
	if err := cache.SetJSON(ctx, s.cache, sessionKeyPrefix+sess.ID, sess, ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Update runs fn through the cache's atomic update.
func (s *CacheSessionStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := s.cache.Update(ctx, sessionKeyPrefix+id, func(current []byte) ([]byte, time.Duration, error) {
		if current == nil {
			return nil, 0, ErrSessionNotFound
		}
		var sess Session
		if err := json.Unmarshal(current, &sess); err != nil {
			return nil, 0, fmt.Errorf("decode session %s: %w", id, err)
		}
		now := s.now()
		if !now.Before(sess.ExpiresAt) {
			return nil, 0, ErrSessionNotFound
		}
		if err := fn(&sess); err != nil {
			return nil, 0, err
		}
		data, err := json.Marshal(&sess)
		if err != nil {
			return nil, 0, fmt.Errorf("encode session %s: %w", id, err)
		}
		out = sess.clone()
		return data, sess.ExpiresAt.Sub(now), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a session.
func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionKeyPrefix+id)
}

// Sweep is a no-op; the cache expires sessions itself.
func (s *CacheSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ SessionStore = (*CacheSessionStore)(nil)
)

// SessionConfig configures a SessionService.
type SessionConfig struct {
	TTL         time.Duration
	MaxProducts int
}

// SessionService implements the session operations.
type SessionService struct {
	store    SessionStore
	products storage.Reader
	ttl      time.Duration
	max      int
	now      func() time.Time
}

// NewSessionService creates a session service.
func NewSessionService(store SessionStore, products storage.Reader, cfg SessionConfig) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.MaxProducts <= 0 || cfg.MaxProducts > MaxProducts {
		cfg.MaxProducts = MaxProducts
	}
	return &SessionService{store: store, products: products, ttl: cfg.TTL, max: cfg.MaxProducts, now: time.Now}
}

// Create starts an empty session.
func (s *SessionService) Create(ctx context.Context) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		ProductIDs: []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// Add appends a product. Adding a product already in the session changes
// nothing; adding to a full session fails with ErrSessionFull. Concurrent
// adds to one session are all kept, up to the limit.
func (s *SessionService) Add(ctx context.Context, id, productID string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if slices.Contains(sess.ProductIDs, productID) {
		return sess, nil
	}
	if len(sess.ProductIDs) >= s.max {
		return nil, s.errFull()
	}

	if !s.products.ValidID(productID) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidID, productID)
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	// The session may have changed while the product was loading.
	return s.store.Update(ctx, id, func(sess *Session) error {
		if slices.Contains(sess.ProductIDs, productID) {
			return nil
		}
		if len(sess.ProductIDs) >= s.max {
			return s.errFull()
		}
		sess.ProductIDs = append(sess.ProductIDs, productID)
		sess.UpdatedAt = s.now()
		return nil
	})
}

// Remove drops a product. Removing an absent product changes nothing.
func (s *SessionService) Remove(ctx context.Context, id, productID string) (*Session, error) {
	return s.store.Update(ctx, id, func(sess *Session) error {
		i := slices.Index(sess.ProductIDs, productID)
		if i < 0 {
			return nil
		}
		sess.ProductIDs = slices.Delete(sess.ProductIDs, i, i+1)
		sess.UpdatedAt = s.now()
		return nil
	})
}

// Clear empties the session but keeps it alive.
func (s *SessionService) Clear(ctx context.Context, id string) (*Session, error) {
	return s.store.Update(ctx, id, func(sess *Session) error {
		sess.ProductIDs = []string{}
		sess.UpdatedAt = s.now()
		return nil
	})
}

func (s *SessionService) errFull() error {
	return fmt.Errorf("%w: max %d products", ErrSessionFull, s.max)
}
