package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/queue"
	"github.com/iliyamo/campaign-links/internal/repository"
)

type fakeLinks struct {
	mu        sync.Mutex
	links     map[string]*model.ShortLink
	existsErr error
	alwaysHit bool
	recordErr error
	createErr func(code string) error

	existsCalls int
	recordCalls int
}

func newFakeLinks(codes ...string) *fakeLinks {
	f := &fakeLinks{links: map[string]*model.ShortLink{}}
	for _, c := range codes {
		f.links[c] = &model.ShortLink{Code: c, TargetURL: "https://example.com/" + c, CreatedAt: time.Now().UTC()}
	}
	return f
}

func (f *fakeLinks) CodeExists(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if f.alwaysHit {
		return true, nil
	}
	_, ok := f.links[code]
	return ok, nil
}

func (f *fakeLinks) TargetURL(ctx context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[code]
	if !ok {
		return "", repository.ErrNotFound
	}
	return l.TargetURL, nil
}

func (f *fakeLinks) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLinks) Create(ctx context.Context, l *model.ShortLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		if err := f.createErr(l.Code); err != nil {
			return err
		}
	}
	if _, ok := f.links[l.Code]; ok {
		return repository.ErrDuplicateCode
	}
	cp := *l
	f.links[l.Code] = &cp
	return nil
}

func (f *fakeLinks) RecordScan(ctx context.Context, code string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCalls++
	if f.recordErr != nil {
		return f.recordErr
	}
	l, ok := f.links[code]
	if !ok {
		return repository.ErrNotFound
	}
	l.ScanCount++
	l.LastScannedAt = &at
	return nil
}

type fakeScans struct {
	mu        sync.Mutex
	events    []model.ScanEvent
	appendErr error
	lastQuery repository.ScanFilter
}

func (f *fakeScans) Append(ctx context.Context, ev *model.ScanEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	ev.ID = uint64(len(f.events) + 1)
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeScans) ListByCode(ctx context.Context, q repository.ScanFilter) ([]model.ScanEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	out := []model.ScanEvent{}
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Code == q.Code {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

// fakeBooking implements SlotStore and ReservationStore.  Commit holds the
// mutex for the whole check-and-insert, like the row lock does in MySQL.
type fakeBooking struct {
	mu           sync.Mutex
	slots        map[uint64]*model.Slot
	reservations []model.Reservation
	commitErr    error
	commitDelay  time.Duration
	nextSlotID   uint64
}

func newFakeBooking() *fakeBooking {
	return &fakeBooking{slots: map[uint64]*model.Slot{}, nextSlotID: 1}
}

func (f *fakeBooking) addSlot(eventID uint64, capacity uint32, taken uint32) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSlotID
	f.nextSlotID++
	f.slots[id] = &model.Slot{ID: id, EventID: eventID, Label: "slot", Capacity: capacity, StartTime: time.Now().UTC()}
	if taken > 0 {
		f.reservations = append(f.reservations, model.Reservation{
			ID: "seed", EventID: eventID, SlotID: id, PartySize: taken, TokenHash: fmt.Sprintf("seed-%d", id),
		})
	}
	return id
}

func (f *fakeBooking) takenLocked(slotID uint64) uint32 {
	var n uint32
	for _, r := range f.reservations {
		if r.SlotID == slotID && r.CancelledAt == nil {
			n += r.PartySize
		}
	}
	return n
}

func (f *fakeBooking) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.slots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	cp.SeatsTaken = f.takenLocked(id)
	return &cp, nil
}

func (f *fakeBooking) ListByEvent(ctx context.Context, eventID uint64) ([]model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Slot{}
	for id := uint64(1); id < f.nextSlotID; id++ {
		if s, ok := f.slots[id]; ok && s.EventID == eventID {
			cp := *s
			cp.SeatsTaken = f.takenLocked(id)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (f *fakeBooking) Create(ctx context.Context, s *model.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = f.nextSlotID
	f.nextSlotID++
	s.CreatedAt = time.Now().UTC()
	cp := *s
	f.slots[s.ID] = &cp
	return nil
}

func (f *fakeBooking) Commit(ctx context.Context, res *model.Reservation) (repository.CommitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitDelay > 0 {
		time.Sleep(f.commitDelay)
	}
	if f.commitErr != nil {
		return repository.CommitResult{}, f.commitErr
	}
	s, ok := f.slots[res.SlotID]
	if !ok || s.EventID != res.EventID {
		return repository.CommitResult{}, repository.ErrNotFound
	}
	for i := range f.reservations {
		r := f.reservations[i]
		if res.IdempotencyKey != nil && r.SlotID == res.SlotID && r.IdempotencyKey != nil && *r.IdempotencyKey == *res.IdempotencyKey {
			cp := r
			return repository.CommitResult{Outcome: repository.CommitReplayed, Reservation: &cp, Capacity: s.Capacity}, nil
		}
	}
	for _, r := range f.reservations {
		if r.TokenHash == res.TokenHash {
			return repository.CommitResult{}, repository.ErrDuplicateToken
		}
	}
	taken := uint64(f.takenLocked(res.SlotID))
	if taken+uint64(res.PartySize) > uint64(s.Capacity) {
		return repository.CommitResult{Outcome: repository.CommitSoldOut, Capacity: s.Capacity, SeatsTaken: taken}, nil
	}
	f.reservations = append(f.reservations, *res)
	cp := *res
	return repository.CommitResult{
		Outcome: repository.CommitCommitted, Reservation: &cp, SlotLabel: s.Label,
		Capacity: s.Capacity, SeatsTaken: taken + uint64(res.PartySize),
	}, nil
}

func (f *fakeBooking) FindByIdempotencyKey(ctx context.Context, slotID uint64, key string) (*model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.SlotID == slotID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBooking) ListBySlot(ctx context.Context, slotID uint64, includeCancelled bool) ([]model.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range f.reservations {
		if r.SlotID == slotID && (includeCancelled || r.CancelledAt == nil) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBooking) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reservations)
}

type fakeVerifier struct {
	reject bool
	err    error
	calls  int32
}

func (f *fakeVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return false, f.err
	}
	return !f.reject, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.ReservationConfirmedEvent
	err    error
}

func (f *fakePublisher) PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}
