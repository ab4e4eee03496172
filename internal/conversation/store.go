package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Persister loads and saves the full conversation document.
type Persister interface {
	Load(ctx context.Context) (map[string]*Conversation, error)
	Save(ctx context.Context, snapshot map[string]*Conversation) error
}

// Store is the in-memory authority for conversation state. Mutations for one
// customer are serialized; every committed mutation rewrites the snapshot.
type Store struct {
	mu      sync.RWMutex
	items   map[string]*Conversation
	keys    keyLocks
	saveMu  sync.Mutex
	persist Persister
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a store. A nil persister keeps state in memory only.
func NewStore(log *slog.Logger, persister Persister) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		items:   map[string]*Conversation{},
		keys:    keyLocks{locks: map[string]*keyLock{}},
		persist: persister,
		logger:  log.With(slog.String("service", "conversation")),
		now:     time.Now,
	}
}

// Load replaces in-memory state with the persisted document. Entries that
// break the phase invariant are reset to idle with their history kept.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	loaded, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	items := make(map[string]*Conversation, len(loaded))
	for id, c := range loaded {
		if c == nil {
			continue
		}
		c.ID = id
		if c.History == nil {
			c.History = []Turn{}
		}
		if len(c.History) > MaxHistory {
			c.History = c.History[len(c.History)-MaxHistory:]
		}
		if err := c.Validate(); err != nil {
			s.logger.Warn("reset inconsistent conversation", slog.String("customer_id", id), slog.Any("error", err))
			c.Phase = PhaseIdle
			c.PendingOrder = nil
			c.ExternalRecordID = ""
		}
		items[id] = c
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	s.logger.Info("conversations loaded", slog.Int("count", len(items)))
	return nil
}

// Get returns a copy of the conversation for id.
func (s *Store) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return Conversation{}, false
	}
	return *c.Clone(), true
}

// List returns copies of all conversations ordered by id.
func (s *Store) List() []Conversation {
	s.mu.RLock()
	out := make([]Conversation, 0, len(s.items))
	for _, c := range s.items {
		out = append(out, *c.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update runs fn on a copy of the conversation for id, creating an idle one
// when missing. The per-customer lock is held for the whole call, so fn may
// perform blocking I/O. The copy is committed only when fn returns nil.
func (s *Store) Update(ctx context.Context, id string, fn func(c *Conversation) error) (Conversation, error) {
	return s.update(ctx, id, true, fn)
}

// UpdateExisting is Update without creation; it returns ErrNotFound for an unknown id.
func (s *Store) UpdateExisting(ctx context.Context, id string, fn func(c *Conversation) error) (Conversation, error) {
	return s.update(ctx, id, false, fn)
}

func (s *Store) update(ctx context.Context, id string, create bool, fn func(c *Conversation) error) (Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Conversation{}, ErrEmptyCustomerKey
	}
	unlock := s.keys.lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.items[id]
	s.mu.RUnlock()
	var work *Conversation
	switch {
	case ok:
		work = current.Clone()
	case create:
		work = New(id, s.now())
	default:
		return Conversation{}, ErrNotFound
	}

	if err := fn(work); err != nil {
		if ok {
			return *current.Clone(), err
		}
		return Conversation{}, err
	}
	if err := work.Validate(); err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	s.items[id] = work
	s.mu.Unlock()
	s.flush(ctx)
	return *work.Clone(), nil
}

// Flush writes the current snapshot.
func (s *Store) Flush(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.persist.Save(ctx, s.snapshot())
}

func (s *Store) flush(ctx context.Context) {
	if err := s.Flush(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("persist conversations failed", slog.Any("error", err))
	}
}

func (s *Store) snapshot() map[string]*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Conversation, len(s.items))
	for id, c := range s.items {
		out[id] = c.Clone()
	}
	return out
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out one mutex per customer id and drops it once unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
