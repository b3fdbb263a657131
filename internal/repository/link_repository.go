package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/campaign-links/internal/model"
)

// LinkRepo provides access to the short_links table.
type LinkRepo struct {
	db *sql.DB
}

// NewLinkRepo returns a LinkRepo bound to db.
func NewLinkRepo(db *sql.DB) *LinkRepo { return &LinkRepo{db: db} }

// CodeExists reports whether a live link already uses code.
func (r *LinkRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	// Select a constant so the lookup never touches the row data.
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM short_links WHERE code = ? LIMIT 1`, code).Scan(&one)
	// No row means the code is free.
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByCode loads a link by its exact code.  ErrNotFound is returned when
// no row matches.
func (r *LinkRepo) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	const q = `SELECT code, target_url, created_at, scan_count, last_scanned_at
	           FROM short_links WHERE code = ?`
	var (
		l    model.ShortLink
		last sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, code).Scan(&l.Code, &l.TargetURL, &l.CreatedAt, &l.ScanCount, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	// last_scanned_at stays NULL until the first scan.
	if last.Valid {
		t := last.Time
		l.LastScannedAt = &t
	}
	return &l, nil
}

// TargetURL returns only the redirect target for code.
func (r *LinkRepo) TargetURL(ctx context.Context, code string) (string, error) {
	var target string
	err := r.db.QueryRowContext(ctx, `SELECT target_url FROM short_links WHERE code = ?`, code).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return target, err
}

// Create inserts a new link.  A collision on the primary key surfaces as
// ErrDuplicateCode so callers can retry with another code.
func (r *LinkRepo) Create(ctx context.Context, l *model.ShortLink) error {
	// Default the creation time when the caller did not set one.
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO short_links (code, target_url, created_at) VALUES (?, ?, ?)`,
		l.Code, l.TargetURL, l.CreatedAt,
	)
	// code is the primary key, so any duplicate is a code collision.
	if _, dup := duplicateKey(err); dup {
		return ErrDuplicateCode
	}
	return err
}

// RecordScan atomically bumps the scan counter and stamps the last scan
// time.  ErrNotFound is returned when the link vanished in between.
func (r *LinkRepo) RecordScan(ctx context.Context, code string, at time.Time) error {
	// Increment in SQL so concurrent scans never lose an update.
	res, err := r.db.ExecContext(ctx,
		`UPDATE short_links SET scan_count = scan_count + 1, last_scanned_at = ? WHERE code = ?`,
		at.UTC(), code,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	// Zero affected rows means the code no longer exists.
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
