package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/repository"
)

var errBackend = errors.New("backend down")

type memLinks struct {
	mu    sync.Mutex
	links map[string]*model.ShortLink
	err   error
}

func newMemLinks(pairs ...string) *memLinks {
	m := &memLinks{links: map[string]*model.ShortLink{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.links[pairs[i]] = &model.ShortLink{Code: pairs[i], TargetURL: pairs[i+1], CreatedAt: time.Now().UTC()}
	}
	return m
}

func (m *memLinks) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.links[code]
	return ok, nil
}

func (m *memLinks) TargetURL(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	l, ok := m.links[code]
	if !ok {
		return "", repository.ErrNotFound
	}
	return l.TargetURL, nil
}

func (m *memLinks) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLinks) Create(ctx context.Context, l *model.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[l.Code]; ok {
		return repository.ErrDuplicateCode
	}
	cp := *l
	m.links[l.Code] = &cp
	return nil
}

func (m *memLinks) RecordScan(ctx context.Context, code string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return repository.ErrNotFound
	}
	l.ScanCount++
	l.LastScannedAt = &at
	return nil
}

type memScans struct {
	mu     sync.Mutex
	events []model.ScanEvent
}

func (m *memScans) Append(ctx context.Context, ev *model.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uint64(len(m.events) + 1)
	m.events = append(m.events, *ev)
	return nil
}

func (m *memScans) ListByCode(ctx context.Context, f repository.ScanFilter) ([]model.ScanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ScanEvent{}
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Code == f.Code {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *memScans) last() model.ScanEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[len(m.events)-1]
}

// memBooking serializes Commit on one mutex, standing in for the slot row lock.
type memBooking struct {
	mu           sync.Mutex
	slots        map[uint64]*model.Slot
	reservations []model.Reservation
	nextID       uint64
	err          error
}

func newMemBooking() *memBooking {
	return &memBooking{slots: map[uint64]*model.Slot{}, nextID: 1}
}

func (m *memBooking) add(eventID uint64, capacity uint32) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.slots[id] = &model.Slot{ID: id, EventID: eventID, Label: "Saturday 10:00", Capacity: capacity, StartTime: time.Date(2026, 11, 7, 10, 0, 0, 0, time.UTC)}
	return id
}

func (m *memBooking) taken(slotID uint64) uint32 {
	var n uint32
	for _, r := range m.reservations {
		if r.SlotID == slotID && r.CancelledAt == nil {
			n += r.PartySize
		}
	}
	return n
}

func (m *memBooking) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	cp.SeatsTaken = m.taken(id)
	return &cp, nil
}

func (m *memBooking) ListByEvent(ctx context.Context, eventID uint64) ([]model.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Slot{}
	for id := uint64(1); id < m.nextID; id++ {
		if s, ok := m.slots[id]; ok && s.EventID == eventID {
			cp := *s
			cp.SeatsTaken = m.taken(id)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *memBooking) Create(ctx context.Context, s *model.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID
	m.nextID++
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *memBooking) Commit(ctx context.Context, res *model.Reservation) (repository.CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return repository.CommitResult{}, m.err
	}
	s, ok := m.slots[res.SlotID]
	if !ok || s.EventID != res.EventID {
		return repository.CommitResult{}, repository.ErrNotFound
	}
	if res.IdempotencyKey != nil {
		for _, r := range m.reservations {
			if r.SlotID == res.SlotID && r.IdempotencyKey != nil && *r.IdempotencyKey == *res.IdempotencyKey {
				cp := r
				return repository.CommitResult{Outcome: repository.CommitReplayed, Reservation: &cp, Capacity: s.Capacity}, nil
			}
		}
	}
	for _, r := range m.reservations {
		if r.TokenHash == res.TokenHash {
			return repository.CommitResult{}, repository.ErrDuplicateToken
		}
	}
	taken := uint64(m.taken(res.SlotID))
	if taken+uint64(res.PartySize) > uint64(s.Capacity) {
		return repository.CommitResult{Outcome: repository.CommitSoldOut, Capacity: s.Capacity, SeatsTaken: taken}, nil
	}
	m.reservations = append(m.reservations, *res)
	cp := *res
	return repository.CommitResult{
		Outcome: repository.CommitCommitted, Reservation: &cp, SlotLabel: s.Label,
		Capacity: s.Capacity, SeatsTaken: taken + uint64(res.PartySize),
	}, nil
}

func (m *memBooking) FindByIdempotencyKey(ctx context.Context, slotID uint64, key string) (*model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.SlotID == slotID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memBooking) ListBySlot(ctx context.Context, slotID uint64, includeCancelled bool) ([]model.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range m.reservations {
		if r.SlotID == slotID && (includeCancelled || r.CancelledAt == nil) {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubVerifier struct {
	reject bool
	err    error
}

func (s stubVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return !s.reject, nil
}
