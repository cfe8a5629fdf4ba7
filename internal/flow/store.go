package flow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the registry of active flows. Implementations serialize mutations
// per user and never return a flow past its expiry.
type Store interface {
	Create(userID string, kind Kind) (Flow, error)
	Active(userID string) []Flow
	Get(userID, flowID string) (Flow, error)
	Owner(flowID string) (string, bool)
	AppendHistory(userID, flowID string, speaker Speaker, text string) (Flow, error)
	UpdateData(userID, flowID string, update map[string]string) (Flow, error)
	UpdateStep(userID, flowID string, step Step) (Flow, error)
	SetCandidates(userID, flowID string, candidates []Candidate) (Flow, error)
	Reset(userID, flowID string) (Flow, error)
	Delete(userID, flowID string) error
	Sweep() int
	Export() []Flow
	Import(flows []Flow) int
}

// MemoryStore keeps flows in process memory. Each user's flows sit behind
// their own mutex; the top-level lock only guards the bucket and owner maps.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*bucket
	owners map[string]string

	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

type bucket struct {
	mu    sync.Mutex
	flows []Flow
	dead  bool
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator injects the flow id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *MemoryStore) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		users:  make(map[string]*bucket),
		owners: make(map[string]string),
		ttl:    DefaultTTL,
		now:    time.Now,
		newID:  func() string { return "flow-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL reports the configured idle lifetime.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

func (s *MemoryStore) lookup(userID string, create bool) *bucket {
	s.mu.RLock()
	b := s.users[userID]
	s.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.users[userID]; b == nil {
		b = &bucket{}
		s.users[userID] = b
	}
	return b
}

// withUser runs fn while holding userID's bucket lock. Expired flows are
// dropped before fn sees the bucket, and empty buckets are retired afterwards.
// It reports how many flows were evicted, and false when the user has no
// bucket and create is false.
func (s *MemoryStore) withUser(userID string, create bool, fn func(b *bucket)) (int, bool) {
	for {
		b := s.lookup(userID, create)
		if b == nil {
			return 0, false
		}
		b.mu.Lock()
		if b.dead {
			b.mu.Unlock()
			continue
		}

		evicted := s.evictLocked(b, s.now())
		fn(b)

		if len(b.flows) == 0 {
			s.mu.Lock()
			if s.users[userID] == b {
				delete(s.users, userID)
			}
			s.mu.Unlock()
			b.dead = true
		}
		b.mu.Unlock()
		return evicted, true
	}
}

func (s *MemoryStore) evictLocked(b *bucket, now time.Time) int {
	live, expired := Prune(b.flows, now)
	if len(expired) == 0 {
		return 0
	}
	b.flows = live
	s.mu.Lock()
	for _, f := range expired {
		delete(s.owners, f.ID)
	}
	s.mu.Unlock()
	return len(expired)
}

func (s *MemoryStore) newFlow(userID string, kind Kind) Flow {
	now := s.now()
	return Normalize(Flow{
		ID:        s.newID(),
		UserID:    userID,
		Kind:      kind,
		Step:      StepCollecting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
}

// Create starts a collecting flow of kind for userID.
func (s *MemoryStore) Create(userID string, kind Kind) (Flow, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Flow{}, fmt.Errorf("flow: user id is required")
	}
	canonical, ok := ParseKind(string(kind))
	if !ok {
		return Flow{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	var created Flow
	s.withUser(userID, true, func(b *bucket) {
		created = s.newFlow(userID, canonical)
		b.flows = append(b.flows, created)
		s.mu.Lock()
		s.owners[created.ID] = userID
		s.mu.Unlock()
	})
	return Clone(created), nil
}

// Active returns userID's unexpired flows in creation order.
func (s *MemoryStore) Active(userID string) []Flow {
	var out []Flow
	s.withUser(userID, false, func(b *bucket) {
		out = make([]Flow, 0, len(b.flows))
		for _, f := range b.flows {
			out = append(out, Normalize(f))
		}
	})
	return out
}

// Get returns one unexpired flow.
func (s *MemoryStore) Get(userID, flowID string) (Flow, error) {
	var (
		found Flow
		ok    bool
	)
	s.withUser(userID, false, func(b *bucket) {
		if i := indexOf(b.flows, flowID); i >= 0 {
			found, ok = Normalize(b.flows[i]), true
		}
	})
	if !ok {
		return Flow{}, fmt.Errorf("%w: %s", ErrNotFound, flowID)
	}
	return found, nil
}

// Owner returns the user owning flowID, if the flow is still registered.
func (s *MemoryStore) Owner(flowID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.owners[flowID]
	return userID, ok
}

// mutate applies fn to one flow and refreshes its TTL. An empty userID is
// resolved through the owner index.
func (s *MemoryStore) mutate(userID, flowID string, fn func(f *Flow) error) (Flow, error) {
	if userID == "" {
		owner, ok := s.Owner(flowID)
		if !ok {
			return Flow{}, fmt.Errorf("%w: %s", ErrNotFound, flowID)
		}
		userID = owner
	}

	var (
		updated Flow
		err     = fmt.Errorf("%w: %s", ErrNotFound, flowID)
	)
	s.withUser(userID, false, func(b *bucket) {
		i := indexOf(b.flows, flowID)
		if i < 0 {
			return
		}
		next := Clone(b.flows[i])
		if err = fn(&next); err != nil {
			return
		}
		now := s.now()
		next.UpdatedAt = now
		next.ExpiresAt = now.Add(s.ttl)
		b.flows[i] = Normalize(next)
		updated = Clone(b.flows[i])
	})
	return updated, err
}

// AppendHistory records a turn on the flow.
func (s *MemoryStore) AppendHistory(userID, flowID string, speaker Speaker, text string) (Flow, error) {
	return s.mutate(userID, flowID, func(f *Flow) error {
		f.History = append(f.History, Turn{Speaker: speaker, Text: text, At: s.now()})
		return nil
	})
}

// UpdateData merges update into the flow's collected data.
func (s *MemoryStore) UpdateData(userID, flowID string, update map[string]string) (Flow, error) {
	return s.mutate(userID, flowID, func(f *Flow) error {
		f.Data = MergeData(f.Data, update)
		return nil
	})
}

// UpdateStep moves the flow to step. Leaving confirming drops slot candidates.
func (s *MemoryStore) UpdateStep(userID, flowID string, step Step) (Flow, error) {
	canonical, ok := ParseStep(string(step))
	if !ok {
		return Flow{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	return s.mutate(userID, flowID, func(f *Flow) error {
		f.Step = canonical
		if canonical != StepConfirming {
			f.Candidates = nil
		}
		return nil
	})
}

// SetCandidates stores alternative slots and puts the flow in slot selection.
func (s *MemoryStore) SetCandidates(userID, flowID string, candidates []Candidate) (Flow, error) {
	return s.mutate(userID, flowID, func(f *Flow) error {
		f.Step = StepConfirming
		f.Candidates = append([]Candidate(nil), candidates...)
		return nil
	})
}

// Reset replaces the flow with a fresh collecting flow of the same kind.
func (s *MemoryStore) Reset(userID, flowID string) (Flow, error) {
	var (
		fresh Flow
		found bool
	)
	s.withUser(userID, false, func(b *bucket) {
		i := indexOf(b.flows, flowID)
		if i < 0 {
			return
		}
		found = true
		old := b.flows[i]
		fresh = s.newFlow(userID, old.Kind)
		b.flows = append(append(b.flows[:i:i], b.flows[i+1:]...), fresh)

		s.mu.Lock()
		delete(s.owners, old.ID)
		s.owners[fresh.ID] = userID
		s.mu.Unlock()
	})
	if !found {
		return Flow{}, fmt.Errorf("%w: %s", ErrNotFound, flowID)
	}
	return Clone(fresh), nil
}

// Delete removes the flow.
func (s *MemoryStore) Delete(userID, flowID string) error {
	found := false
	s.withUser(userID, false, func(b *bucket) {
		i := indexOf(b.flows, flowID)
		if i < 0 {
			return
		}
		found = true
		b.flows = append(b.flows[:i:i], b.flows[i+1:]...)
		s.mu.Lock()
		delete(s.owners, flowID)
		s.mu.Unlock()
	})
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, flowID)
	}
	return nil
}

// Sweep evicts expired flows for every user and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	evicted := 0
	for _, userID := range s.userIDs() {
		n, _ := s.withUser(userID, false, func(*bucket) {})
		evicted += n
	}
	return evicted
}

func (s *MemoryStore) userIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Export returns a copy of every unexpired flow, ordered by user then creation.
func (s *MemoryStore) Export() []Flow {
	var out []Flow
	for _, userID := range s.userIDs() {
		out = append(out, s.Active(userID)...)
	}
	return out
}

// Import loads flows produced by Export. Expired, ownerless or duplicate flows
// and flows of unknown kind are skipped. It reports how many were loaded.
func (s *MemoryStore) Import(flows []Flow) int {
	now := s.now()
	loaded := 0
	for _, raw := range flows {
		f := Normalize(raw)
		if f.ID == "" || f.UserID == "" || f.Expired(now) {
			continue
		}
		if _, ok := ParseKind(string(f.Kind)); !ok {
			continue
		}
		if _, taken := s.Owner(f.ID); taken {
			continue
		}
		s.withUser(f.UserID, true, func(b *bucket) {
			b.flows = append(b.flows, f)
			sort.SliceStable(b.flows, func(i, j int) bool {
				return b.flows[i].CreatedAt.Before(b.flows[j].CreatedAt)
			})
			s.mu.Lock()
			s.owners[f.ID] = f.UserID
			s.mu.Unlock()
		})
		loaded++
	}
	return loaded
}

func indexOf(flows []Flow, flowID string) int {
	for i := range flows {
		if flows[i].ID == flowID {
			return i
		}
	}
	return -1
}
