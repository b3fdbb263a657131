package model

import "time"

// SlotState is the coarse availability of a slot.
type SlotState string

const (
	SlotOpen      SlotState = "open"      // no seats taken yet
	SlotAccepting SlotState = "accepting" // some seats taken, some remain
	SlotFull      SlotState = "full"      // seats_taken == capacity
)

// Slot is a bookable time unit of an event with a bounded capacity.
// SeatsTaken is derived from the non-cancelled reservations of the
// slot and is filled in by the repository when the slot is read.
//
// Fields:
//  ID         – primary key identifier.
//  EventID    – event the slot belongs to.
//  Label      – human readable label ("Saturday 10:00").
//  Capacity   – maximum number of seats (> 0).
//  StartTime  – when the slot begins (UTC).
//  SeatsTaken – sum of party_size over active reservations.
//  CreatedAt  – creation timestamp.
type Slot struct {
	ID         uint64    // slots.id
	EventID    uint64    // slots.event_id
	Label      string    // slots.label
	Capacity   uint32    // slots.capacity
	StartTime  time.Time // slots.start_time
	SeatsTaken uint32    // derived
	CreatedAt  time.Time // slots.created_at
}

// Remaining returns the number of seats still available, never negative.
func (s Slot) Remaining() uint32 {
	if s.SeatsTaken >= s.Capacity {
		return 0
	}
	return s.Capacity - s.SeatsTaken
}

// State maps the seat counts onto the slot lifecycle.
func (s Slot) State() SlotState {
	switch {
	case s.SeatsTaken == 0:
		return SlotOpen
	case s.SeatsTaken < s.Capacity:
		return SlotAccepting
	default:
		return SlotFull
	}
}
