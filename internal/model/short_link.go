package model

import "time"

// ShortLink maps a short code onto an absolute target URL.  Codes are
// lowercase, drawn from [a-z0-9-] and unique among live links.  The
// scan counter and last scan timestamp are only ever touched by the
// resolver.
type ShortLink struct {
	Code          string     // short_links.code
	TargetURL     string     // short_links.target_url
	CreatedAt     time.Time  // short_links.created_at
	ScanCount     uint64     // short_links.scan_count
	LastScannedAt *time.Time // short_links.last_scanned_at (nullable)
}
