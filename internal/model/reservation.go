package model

import "time"

// Reservation records an RSVP against a single slot.  A reservation
// consumes PartySize seats from its slot's capacity and is immutable
// once committed.
//
// Fields:
//  ID             – ULID assigned by the service before commit.
//  EventID        – event the slot belongs to.
//  SlotID         – slot being reserved.
//  PartySize      – number of seats consumed (>= 1).
//  Name, Email,
//  Phone, Address – contact fields; opaque to the reservation engine.
//  IdempotencyKey – optional client key; replays return the original row.
//  TokenHash      – BLAKE2b digest of the single-use verification token.
//  SubmittedAt    – commit timestamp (UTC).
//  CancelledAt    – set by external tooling only (nil while active).
type Reservation struct {
	ID             string     // reservations.id
	EventID        uint64     // reservations.event_id
	SlotID         uint64     // reservations.slot_id
	PartySize      uint32     // reservations.party_size
	Name           string     // reservations.contact_name
	Email          string     // reservations.contact_email
	Phone          string     // reservations.contact_phone
	Address        string     // reservations.contact_address
	IdempotencyKey *string    // reservations.idempotency_key (nullable)
	TokenHash      string     // reservations.token_hash
	SubmittedAt    time.Time  // reservations.submitted_at
	CancelledAt    *time.Time // reservations.cancelled_at (nullable)
}

// Contact groups the free-form contact fields supplied with an RSVP.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Address string
}
