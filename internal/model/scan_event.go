package model

import "time"

// ScanEvent is one row of the append-only visit log written each time a
// short code resolves.  ClientIP holds either the raw address or its
// keyed hash depending on configuration.  Geo fields are empty when the
// edge did not provide them.
type ScanEvent struct {
	ID         uint64    // scan_events.id
	Code       string    // scan_events.code
	ScannedAt  time.Time // scan_events.scanned_at
	ClientIP   string    // scan_events.client_ip
	UserAgent  string    // scan_events.user_agent
	City       string    // scan_events.city
	Region     string    // scan_events.region
	Country    string    // scan_events.country
	PostalCode string    // scan_events.postal_code
}
