package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/campaign-links/internal/model"
)

// ScanRepo appends to and reads from the scan_events log.
type ScanRepo struct {
	db *sql.DB
}

// NewScanRepo returns a ScanRepo bound to db.
func NewScanRepo(db *sql.DB) *ScanRepo { return &ScanRepo{db: db} }

// ScanFilter narrows ListByCode.  Zero times are ignored; Until is
// exclusive.
type ScanFilter struct {
	Code  string
	Since time.Time
	Until time.Time
	Limit uint64
}

// Append writes one scan event and fills in its generated ID.
func (r *ScanRepo) Append(ctx context.Context, ev *model.ScanEvent) error {
	// Default the scan time when the caller did not set one.
	if ev.ScannedAt.IsZero() {
		ev.ScannedAt = time.Now().UTC()
	}
	const q = `INSERT INTO scan_events
	           (code, scanned_at, client_ip, user_agent, city, region, country, postal_code)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		ev.Code, ev.ScannedAt, ev.ClientIP, ev.UserAgent,
		ev.City, ev.Region, ev.Country, ev.PostalCode,
	)
	if err != nil {
		return err
	}
	// scan_events.id is AUTO_INCREMENT; read it back for the caller.
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	return nil
}

// ListByCode returns scan events for a code, newest first.
func (r *ScanRepo) ListByCode(ctx context.Context, f ScanFilter) ([]model.ScanEvent, error) {
	// Build the query with squirrel so the optional bounds can be added
	// without string concatenation.
	b := sq.Select("id", "code", "scanned_at", "client_ip", "user_agent", "city", "region", "country", "postal_code").
		From("scan_events").
		Where(sq.Eq{"code": f.Code}).
		OrderBy("scanned_at DESC", "id DESC").
		PlaceholderFormat(sq.Question)
	if !f.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"scanned_at": f.Since.UTC()})
	}
	if !f.Until.IsZero() {
		b = b.Where(sq.Lt{"scanned_at": f.Until.UTC()})
	}
	// Zero means no limit.
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
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

	// Start from an empty slice so an empty log encodes as [] not null.
	events := []model.ScanEvent{}
	for rows.Next() {
		var ev model.ScanEvent
		if err := rows.Scan(&ev.ID, &ev.Code, &ev.ScannedAt, &ev.ClientIP, &ev.UserAgent,
			&ev.City, &ev.Region, &ev.Country, &ev.PostalCode); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
