// Package queue defines the messages exchanged over RabbitMQ together with
// the publisher and the log-writing consumer.
package queue

// ReservationConfirmedQueue is the durable queue reservation events go to.
const ReservationConfirmedQueue = "reservation.confirmed"

// ReservationConfirmedEvent is published after a reservation commits.  It
// carries enough for downstream consumers to log or notify without
// reading the database.  Contact details are left out on purpose.
type ReservationConfirmedEvent struct {
	ReservationID string `json:"reservation_id"`
	EventID       uint64 `json:"event_id"`
	SlotID        uint64 `json:"slot_id"`
	SlotLabel     string `json:"slot_label,omitempty"`
	PartySize     uint32 `json:"party_size"`
	SeatsTaken    uint64 `json:"seats_taken"`
	Capacity      uint32 `json:"capacity"`
	ConfirmedAt   string `json:"confirmed_at"`
}
