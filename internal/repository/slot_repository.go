package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/campaign-links/internal/model"
)

// SlotRepo provides access to the slots table.  Reads always include the
// derived seats_taken figure so callers never need a second query.
type SlotRepo struct {
	db *sql.DB
}

// NewSlotRepo returns a SlotRepo bound to db.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// seatsTakenColumn sums active party sizes for the outer slot row.
// Cancelled reservations do not hold seats.
const seatsTakenColumn = `CAST(COALESCE((SELECT SUM(r.party_size) FROM reservations r
	WHERE r.slot_id = s.id AND r.cancelled_at IS NULL), 0) AS UNSIGNED) AS seats_taken`

// slotSelect is the shared base query for slot reads.
func slotSelect() sq.SelectBuilder {
	return sq.Select("s.id", "s.event_id", "s.label", "s.capacity", "s.start_time", "s.created_at").
		Column(seatsTakenColumn).
		From("slots s").
		PlaceholderFormat(sq.Question)
}

// scanSlot reads one slotSelect row from either *sql.Row or *sql.Rows.
func scanSlot(row interface{ Scan(...any) error }) (model.Slot, error) {
	var s model.Slot
	err := row.Scan(&s.ID, &s.EventID, &s.Label, &s.Capacity, &s.StartTime, &s.CreatedAt, &s.SeatsTaken)
	return s, err
}

// Create inserts a slot and fills in its ID and creation time.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	s.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO slots (event_id, label, capacity, start_time, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.EventID, s.Label, s.Capacity, s.StartTime.UTC(), s.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	// A new slot has no reservations yet.
	s.ID = uint64(id)
	s.SeatsTaken = 0
	return nil
}

// GetByID loads a slot with its current seat count.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
	query, args, err := slotSelect().Where(sq.Eq{"s.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	s, err := scanSlot(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByEvent returns every slot of an event ordered by start time.
func (r *SlotRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Slot, error) {
	query, args, err := slotSelect().
		Where(sq.Eq{"s.event_id": eventID}).
		OrderBy("s.start_time", "s.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Return an empty slice, not nil, for events with no slots.
	slots := []model.Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}
