package persistence

import (
	"context"
	"sort"
	"sync"

	"LaunchLedger/internal/state"
)

// MemoryStore is an in-memory Store. Each WithinLaunch call holds a
// per-launch mutex and stages its writes, which are published under the
// store lock only when fn succeeds.
type MemoryStore struct {
	mu        sync.RWMutex
	launches  map[string]*state.Launch
	positions map[state.PositionKey]*state.Position
	processed map[string]struct{}
	keyOrder  []string
	records   map[string][]*state.TransactionRecord // keyed by launch

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		launches:  make(map[string]*state.Launch),
		positions: make(map[state.PositionKey]*state.Position),
		processed: make(map[string]struct{}),
		records:   make(map[string][]*state.TransactionRecord),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) launchLock(launch string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[launch]
	if !ok {
		l = &sync.Mutex{}
		s.locks[launch] = l
	}
	return l
}

func (s *MemoryStore) WithinLaunch(ctx context.Context, launch string, fn func(tx Tx) error) error {
	lock := s.launchLock(launch)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:     s,
		launches:  make(map[string]*state.Launch),
		positions: make(map[state.PositionKey]*state.Position),
		processed: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range tx.processed {
		if _, dup := s.processed[key]; dup {
			return ErrConflict
		}
	}

	for addr, l := range tx.launches {
		if prev, ok := s.launches[addr]; ok {
			l.Version = prev.Version + 1
		} else {
			l.Version = 1
		}
		s.launches[addr] = l
	}
	for key, p := range tx.positions {
		if prev, ok := s.positions[key]; ok {
			p.Version = prev.Version + 1
		} else {
			p.Version = 1
		}
		s.positions[key] = p
	}
	for _, key := range tx.keyOrder {
		s.processed[key] = struct{}{}
		s.keyOrder = append(s.keyOrder, key)
	}
	for _, rec := range tx.records {
		s.records[rec.Launch] = append(s.records[rec.Launch], rec)
	}
	return nil
}

func (s *MemoryStore) GetLaunch(_ context.Context, address string) (*state.Launch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.launches[address]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) GetPosition(_ context.Context, launch, user string) (*state.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[state.PositionKey{Launch: launch, User: user}]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListActivePositions(_ context.Context, launch string) ([]*state.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*state.Position
	for key, p := range s.positions {
		if key.Launch == launch && p.IsActive() {
			out = append(out, p.Clone())
		}
	}
	sortPositions(out)
	return out, nil
}

func (s *MemoryStore) HasProcessedSignature(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[key]
	return ok, nil
}

// ListOpenLaunches returns launches that are neither graduated nor refunding.
func (s *MemoryStore) ListOpenLaunches(_ context.Context) ([]*state.Launch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*state.Launch
	for _, l := range s.launches {
		if l.Status() == state.LaunchStatusActive {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

// ListTransactionRecords returns up to limit records for launch, oldest first.
// A non-positive limit returns all of them.
func (s *MemoryStore) ListTransactionRecords(_ context.Context, launch string, limit int) ([]*state.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[launch]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]*state.TransactionRecord, len(recs))
	for i, r := range recs {
		c := *r
		out[i] = &c
	}
	return out, nil
}

// RecentIdempotencyKeys returns up to limit keys, most recent first.
func (s *MemoryStore) RecentIdempotencyKeys(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.keyOrder)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]string, 0, n)
	for i := len(s.keyOrder) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.keyOrder[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// memTx stages writes for one WithinLaunch call.
type memTx struct {
	store     *MemoryStore
	launches  map[string]*state.Launch
	positions map[state.PositionKey]*state.Position
	processed map[string]struct{}
	keyOrder  []string
	records   []*state.TransactionRecord
}

func (tx *memTx) GetLaunch(ctx context.Context, address string) (*state.Launch, error) {
	if l, ok := tx.launches[address]; ok {
		return l.Clone(), nil
	}
	return tx.store.GetLaunch(ctx, address)
}

func (tx *memTx) UpsertLaunch(_ context.Context, launch *state.Launch) error {
	tx.launches[launch.Address] = launch.Clone()
	return nil
}

func (tx *memTx) GetPosition(ctx context.Context, launch, user string) (*state.Position, error) {
	if p, ok := tx.positions[state.PositionKey{Launch: launch, User: user}]; ok {
		return p.Clone(), nil
	}
	return tx.store.GetPosition(ctx, launch, user)
}

func (tx *memTx) UpsertPosition(_ context.Context, position *state.Position) error {
	tx.positions[position.Key()] = position.Clone()
	return nil
}

func (tx *memTx) ListActivePositions(ctx context.Context, launch string) ([]*state.Position, error) {
	base, err := tx.store.ListActivePositions(ctx, launch)
	if err != nil {
		return nil, err
	}

	out := make([]*state.Position, 0, len(base))
	for _, p := range base {
		if _, staged := tx.positions[p.Key()]; !staged {
			out = append(out, p)
		}
	}
	for key, p := range tx.positions {
		if key.Launch == launch && p.IsActive() {
			out = append(out, p.Clone())
		}
	}
	sortPositions(out)
	return out, nil
}

func (tx *memTx) HasProcessedSignature(ctx context.Context, key string) (bool, error) {
	if _, ok := tx.processed[key]; ok {
		return true, nil
	}
	return tx.store.HasProcessedSignature(ctx, key)
}

func (tx *memTx) MarkProcessed(_ context.Context, key, _ string, _ uint64) error {
	if _, ok := tx.processed[key]; ok {
		return ErrConflict
	}
	tx.processed[key] = struct{}{}
	tx.keyOrder = append(tx.keyOrder, key)
	return nil
}

func (tx *memTx) AppendTransactionRecord(_ context.Context, rec *state.TransactionRecord) error {
	c := *rec
	tx.records = append(tx.records, &c)
	return nil
}

func sortPositions(ps []*state.Position) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].User < ps[j].User
	})
}
