package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/metrics"
	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/queue"
	"github.com/iliyamo/campaign-links/internal/repository"
	"github.com/iliyamo/campaign-links/internal/utils"
)

const maxSeats = 1_000_000

// SlotStore reads and creates slots.
type SlotStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Slot, error)
	ListByEvent(ctx context.Context, eventID uint64) ([]model.Slot, error)
	Create(ctx context.Context, s *model.Slot) error
}

// ReservationStore commits reservations.  Commit must check capacity and
// insert as one atomic unit.
type ReservationStore interface {
	Commit(ctx context.Context, res *model.Reservation) (repository.CommitResult, error)
	FindByIdempotencyKey(ctx context.Context, slotID uint64, key string) (*model.Reservation, error)
	ListBySlot(ctx context.Context, slotID uint64, includeCancelled bool) ([]model.Reservation, error)
}

// Verifier checks a bot-filtering challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Publisher announces committed reservations.
type Publisher interface {
	PublishReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) error
}

// ReserveInput is one RSVP request.
type ReserveInput struct {
	EventID           uint64
	SlotID            uint64
	PartySize         int
	Contact           model.Contact
	VerificationToken string
	IdempotencyKey    string
	RemoteIP          string
}

// ReserveResult is returned on success and, with only Remaining set,
// alongside ErrSoldOut.
type ReserveResult struct {
	Reservation *model.Reservation
	Replayed    bool
	Remaining   uint32
}

// CreateSlotInput describes a new slot.
type CreateSlotInput struct {
	EventID   uint64
	Label     string
	Capacity  int
	StartTime time.Time
}

// Engine accepts reservations without ever exceeding slot capacity.
type Engine struct {
	slots        SlotStore
	reservations ReservationStore
	verifier     Verifier
	publisher    Publisher
	metrics      *metrics.Metrics
	log          *zap.Logger
	timeout      time.Duration
	now          func() time.Time
	newID        func() string
}

// NewEngine wires an Engine.  publisher and m may be nil.
func NewEngine(slots SlotStore, reservations ReservationStore, verifier Verifier, publisher Publisher,
	m *metrics.Metrics, log *zap.Logger, timeout time.Duration) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		slots:        slots,
		reservations: reservations,
		verifier:     verifier,
		publisher:    publisher,
		metrics:      m,
		log:          log,
		timeout:      timeout,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        func() string { return ulid.Make().String() },
	}
}

func validateReserve(in *ReserveInput) error {
	in.Contact.Name = strings.TrimSpace(in.Contact.Name)
	in.Contact.Email = strings.TrimSpace(in.Contact.Email)
	in.Contact.Phone = strings.TrimSpace(in.Contact.Phone)
	in.Contact.Address = strings.TrimSpace(in.Contact.Address)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	switch {
	case in.EventID == 0:
		return invalid("eventId", "is required")
	case in.SlotID == 0:
		return invalid("slotId", "is required")
	case in.PartySize < 1:
		return invalid("partySize", "must be at least 1")
	case in.PartySize > maxSeats:
		return invalid("partySize", "is too large")
	case in.Contact.Name == "":
		return invalid("name", "is required")
	case len(in.Contact.Name) > 255:
		return invalid("name", "is too long")
	case in.Contact.Email == "" || !strings.Contains(in.Contact.Email, "@"):
		return invalid("email", "must be an email address")
	case len(in.Contact.Email) > 320:
		return invalid("email", "is too long")
	case len(in.Contact.Phone) > 64:
		return invalid("phone", "is too long")
	case len(in.Contact.Address) > 512:
		return invalid("address", "is too long")
	case len(in.IdempotencyKey) > 64:
		return invalid("idempotencyKey", "is too long")
	case strings.TrimSpace(in.VerificationToken) == "":
		return invalid("verificationToken", "is required")
	}
	return nil
}

// Reserve validates, verifies and commits a reservation.
//
// Errors: *ValidationError (ErrValidation) for bad input or an unknown
// slot, ErrVerificationFailed for a rejected or reused token, ErrSoldOut
// when the party does not fit, ErrTransient for backend trouble.  A
// repeated IdempotencyKey returns the original reservation with Replayed
// set.
func (e *Engine) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	if err := validateReserve(&in); err != nil {
		e.metrics.Reservation("invalid")
		return ReserveResult{}, err
	}

	if in.IdempotencyKey != "" {
		if prior, err := e.findReplay(ctx, in.SlotID, in.IdempotencyKey); err != nil {
			e.metrics.Reservation("error")
			return ReserveResult{}, err
		} else if prior != nil {
			e.metrics.Reservation("replayed")
			return ReserveResult{Reservation: prior, Replayed: true}, nil
		}
	}

	vctx, cancel := context.WithTimeout(ctx, e.timeout)
	ok, err := e.verifier.Verify(vctx, in.VerificationToken, in.RemoteIP)
	cancel()
	if err != nil {
		e.metrics.Reservation("error")
		return ReserveResult{}, transient("verify token", err)
	}
	if !ok {
		e.metrics.Reservation("verification_failed")
		return ReserveResult{}, ErrVerificationFailed
	}

	res := &model.Reservation{
		ID:          e.newID(),
		EventID:     in.EventID,
		SlotID:      in.SlotID,
		PartySize:   uint32(in.PartySize),
		Name:        in.Contact.Name,
		Email:       in.Contact.Email,
		Phone:       in.Contact.Phone,
		Address:     in.Contact.Address,
		TokenHash:   utils.HashToken(in.VerificationToken),
		SubmittedAt: e.now(),
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		res.IdempotencyKey = &key
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	out, err := e.reservations.Commit(cctx, res)
	cancel()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		e.metrics.Reservation("invalid")
		return ReserveResult{}, invalid("slotId", "no such slot for this event")
	case errors.Is(err, repository.ErrDuplicateToken):
		e.metrics.Reservation("verification_failed")
		return ReserveResult{}, ErrVerificationFailed
	case err != nil:
		e.metrics.Reservation("error")
		return ReserveResult{}, transient("commit reservation", err)
	}

	switch out.Outcome {
	case repository.CommitSoldOut:
		e.metrics.Reservation("sold_out")
		return ReserveResult{Remaining: remaining(out.Capacity, out.SeatsTaken)}, ErrSoldOut
	case repository.CommitReplayed:
		e.metrics.Reservation("replayed")
		return ReserveResult{Reservation: out.Reservation, Replayed: true}, nil
	case repository.CommitCommitted:
	default:
		e.metrics.Reservation("error")
		return ReserveResult{}, transient("commit reservation", errors.New("unknown commit outcome "+out.Outcome.String()))
	}

	e.metrics.Reservation("committed")
	e.publish(ctx, out)
	return ReserveResult{Reservation: out.Reservation, Remaining: remaining(out.Capacity, out.SeatsTaken)}, nil
}

func (e *Engine) findReplay(ctx context.Context, slotID uint64, key string) (*model.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	prior, err := e.reservations.FindByIdempotencyKey(ctx, slotID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("idempotency lookup", err)
	}
	return prior, nil
}

func (e *Engine) publish(ctx context.Context, out repository.CommitResult) {
	if e.publisher == nil {
		return
	}
	res := out.Reservation
	ev := queue.ReservationConfirmedEvent{
		ReservationID: res.ID,
		EventID:       res.EventID,
		SlotID:        res.SlotID,
		SlotLabel:     out.SlotLabel,
		PartySize:     res.PartySize,
		SeatsTaken:    out.SeatsTaken,
		Capacity:      out.Capacity,
		ConfirmedAt:   res.SubmittedAt.Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.publisher.PublishReservationConfirmed(ctx, ev); err != nil {
		e.metrics.SideEffectFailed("reservation_event")
		e.log.Warn("publish reservation.confirmed failed", zap.String("reservation_id", res.ID), zap.Error(err))
	}
}

func remaining(capacity uint32, taken uint64) uint32 {
	if taken >= uint64(capacity) {
		return 0
	}
	return capacity - uint32(taken)
}

// Slot returns the slot with its current seat count.  Advisory only.
func (e *Engine) Slot(ctx context.Context, slotID uint64) (*model.Slot, error) {
	if slotID == 0 {
		return nil, invalid("slotId", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	s, err := e.slots.GetByID(ctx, slotID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transient("load slot", err)
	}
	return s, nil
}

// QuoteRemaining returns max(0, capacity - seatsTaken).  The figure can be
// stale as soon as it is read and must never gate a commit.
func (e *Engine) QuoteRemaining(ctx context.Context, slotID uint64) (uint32, error) {
	s, err := e.Slot(ctx, slotID)
	if err != nil {
		return 0, err
	}
	return s.Remaining(), nil
}

// ListSlots returns the slots of an event ordered by start time.
func (e *Engine) ListSlots(ctx context.Context, eventID uint64) ([]model.Slot, error) {
	if eventID == 0 {
		return nil, invalid("eventId", "is required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	slots, err := e.slots.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, transient("list slots", err)
	}
	return slots, nil
}

// CreateSlot adds a bookable slot to an event.
func (e *Engine) CreateSlot(ctx context.Context, in CreateSlotInput) (*model.Slot, error) {
	in.Label = strings.TrimSpace(in.Label)
	switch {
	case in.EventID == 0:
		return nil, invalid("eventId", "is required")
	case in.Label == "":
		return nil, invalid("label", "is required")
	case len(in.Label) > 255:
		return nil, invalid("label", "is too long")
	case in.Capacity < 1:
		return nil, invalid("capacity", "must be at least 1")
	case in.Capacity > maxSeats:
		return nil, invalid("capacity", "is too large")
	case in.StartTime.IsZero():
		return nil, invalid("startTime", "is required")
	}
	s := &model.Slot{EventID: in.EventID, Label: in.Label, Capacity: uint32(in.Capacity), StartTime: in.StartTime.UTC()}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.slots.Create(ctx, s); err != nil {
		return nil, transient("create slot", err)
	}
	return s, nil
}

// ListReservations returns the reservations of an existing slot.
func (e *Engine) ListReservations(ctx context.Context, slotID uint64, includeCancelled bool) ([]model.Reservation, error) {
	if _, err := e.Slot(ctx, slotID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	list, err := e.reservations.ListBySlot(ctx, slotID, includeCancelled)
	if err != nil {
		return nil, transient("list reservations", err)
	}
	return list, nil
}
