package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/campaign-links/internal/model"
)

// CommitOutcome tags the result of a reservation commit attempt.
type CommitOutcome int

const (
	// CommitCommitted means the reservation row was inserted.
	CommitCommitted CommitOutcome = iota + 1
	// CommitSoldOut means the party did not fit; nothing was written.
	CommitSoldOut
	// CommitReplayed means an earlier reservation with the same
	// idempotency key was found and returned instead.
	CommitReplayed
)

func (o CommitOutcome) String() string {
	switch o {
	case CommitCommitted:
		return "committed"
	case CommitSoldOut:
		return "sold_out"
	case CommitReplayed:
		return "replayed"
	default:
		return "unknown"
	}
}

// CommitResult describes a finished commit.  Reservation is the inserted
// row for CommitCommitted and the original row for CommitReplayed.
// Capacity and SeatsTaken reflect the slot as seen under the lock.
type CommitResult struct {
	Outcome     CommitOutcome
	Reservation *model.Reservation
	SlotLabel   string
	Capacity    uint32
	SeatsTaken  uint64
}

// ReservationRepo provides access to the reservations table.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to db.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// reservationColumns lists the columns in the order scanReservation reads
// them.  The INSERT in Commit uses the same order.
const reservationColumns = `id, event_id, slot_id, party_size, contact_name, contact_email,
	contact_phone, contact_address, idempotency_key, token_hash, submitted_at, cancelled_at`

// scanReservation reads one reservation row, mapping NULL columns to nil
// pointers.
func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var (
		res       model.Reservation
		key       sql.NullString
		cancelled sql.NullTime
	)
	if err := row.Scan(&res.ID, &res.EventID, &res.SlotID, &res.PartySize, &res.Name, &res.Email,
		&res.Phone, &res.Address, &key, &res.TokenHash, &res.SubmittedAt, &cancelled); err != nil {
		return nil, err
	}
	if key.Valid {
		k := key.String
		res.IdempotencyKey = &k
	}
	if cancelled.Valid {
		t := cancelled.Time
		res.CancelledAt = &t
	}
	return &res, nil
}

// Commit performs the capacity check and the insert as one unit.  The
// slot row is locked with SELECT ... FOR UPDATE so concurrent commits for
// the same slot serialise; the seat sum is then read under that lock.
//
// ErrNotFound is returned when the slot does not exist for the event and
// ErrDuplicateToken when the token hash was consumed before.  Every other
// error is a backend failure and leaves the database unchanged.
func (r *ReservationRepo) Commit(ctx context.Context, res *model.Reservation) (CommitResult, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return CommitResult{}, err
	}
	// Roll back on every early return.  committed is set once the
	// transaction is finished by other means.
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the slot row.  Every commit for this slot waits here until
	// the current holder commits or rolls back.
	var (
		capacity uint32
		label    string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT capacity, label FROM slots WHERE id = ? AND event_id = ? FOR UPDATE`,
		res.SlotID, res.EventID,
	).Scan(&capacity, &label)
	if errors.Is(err, sql.ErrNoRows) {
		return CommitResult{}, ErrNotFound
	}
	if err != nil {
		return CommitResult{}, err
	}

	// A retry with a known idempotency key returns the first result.
	if res.IdempotencyKey != nil {
		prior, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE slot_id = ? AND idempotency_key = ?`,
			res.SlotID, *res.IdempotencyKey,
		))
		switch {
		case err == nil:
			return CommitResult{Outcome: CommitReplayed, Reservation: prior, Capacity: capacity}, nil
		case !errors.Is(err, sql.ErrNoRows):
			return CommitResult{}, err
		}
	}

	// Sum the active seats while the slot lock is held.
	var taken uint64
	err = tx.QueryRowContext(ctx,
		`SELECT CAST(COALESCE(SUM(party_size), 0) AS UNSIGNED) FROM reservations WHERE slot_id = ? AND cancelled_at IS NULL`,
		res.SlotID,
	).Scan(&taken)
	if err != nil {
		return CommitResult{}, err
	}
	// Reject when the party does not fit.  Nothing has been written yet.
	if taken+uint64(res.PartySize) > uint64(capacity) {
		return CommitResult{Outcome: CommitSoldOut, Capacity: capacity, SeatsTaken: taken}, nil
	}

	if res.SubmittedAt.IsZero() {
		res.SubmittedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		res.ID, res.EventID, res.SlotID, res.PartySize, res.Name, res.Email,
		res.Phone, res.Address, res.IdempotencyKey, res.TokenHash, res.SubmittedAt,
	)
	// A duplicate on the idempotency key means a concurrent commit with
	// the same key won the race.  End this transaction and return the
	// winner's row.  Any other duplicate is a reused token.
	if key, dup := duplicateKey(err); dup {
		if strings.Contains(key, "idempotency") && res.IdempotencyKey != nil {
			_ = tx.Rollback()
			committed = true
			prior, ferr := r.FindByIdempotencyKey(ctx, res.SlotID, *res.IdempotencyKey)
			if ferr != nil {
				return CommitResult{}, ferr
			}
			return CommitResult{Outcome: CommitReplayed, Reservation: prior, Capacity: capacity}, nil
		}
		return CommitResult{}, ErrDuplicateToken
	}
	if err != nil {
		return CommitResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return CommitResult{}, err
	}
	committed = true
	return CommitResult{
		Outcome:     CommitCommitted,
		Reservation: res,
		SlotLabel:   label,
		Capacity:    capacity,
		SeatsTaken:  taken + uint64(res.PartySize),
	}, nil
}

// FindByIdempotencyKey returns the reservation previously committed for
// slotID under key.
func (r *ReservationRepo) FindByIdempotencyKey(ctx context.Context, slotID uint64, key string) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE slot_id = ? AND idempotency_key = ?`,
		slotID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// ListBySlot returns the reservations of a slot in submission order.
func (r *ReservationRepo) ListBySlot(ctx context.Context, slotID uint64, includeCancelled bool) ([]model.Reservation, error) {
	b := sq.Select(reservationColumns).
		From("reservations").
		Where(sq.Eq{"slot_id": slotID}).
		OrderBy("submitted_at", "id").
		PlaceholderFormat(sq.Question)
	// Active reservations only, unless asked otherwise.
	if !includeCancelled {
		b = b.Where(sq.Eq{"cancelled_at": nil})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
