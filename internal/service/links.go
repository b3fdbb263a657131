package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/campaign-links/internal/cache"
	"github.com/iliyamo/campaign-links/internal/metrics"
	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/repository"
	"github.com/iliyamo/campaign-links/internal/retry"
	"github.com/iliyamo/campaign-links/internal/shortcode"
	"github.com/iliyamo/campaign-links/internal/utils"
)

// MaxCodeAttempts bounds the collision checks made by ResolveUniqueCode:
// the sanitized base followed by suffixed variants.
const MaxCodeAttempts = 3

// Scan report limits.
const (
	DefaultScanLimit = 100
	MaxScanLimit     = 1000
)

// LinkStore is the persistence the resolver needs.
type LinkStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	TargetURL(ctx context.Context, code string) (string, error)
	GetByCode(ctx context.Context, code string) (*model.ShortLink, error)
	Create(ctx context.Context, l *model.ShortLink) error
	RecordScan(ctx context.Context, code string, at time.Time) error
}

// ScanLog is the append-only visit log.
type ScanLog interface {
	Append(ctx context.Context, ev *model.ScanEvent) error
	ListByCode(ctx context.Context, f repository.ScanFilter) ([]model.ScanEvent, error)
}

// TargetCache fronts LinkStore.TargetURL.
type TargetCache interface {
	Target(ctx context.Context, code string, load cache.Loader) (string, error)
	Prime(ctx context.Context, code, target string)
}

// LinkOptions tunes LinkService.
type LinkOptions struct {
	PublicBaseURL  string
	IPHashKey      string
	BackendTimeout time.Duration
	ScanTimeout    time.Duration
}

// LinkService generates, stores and resolves short codes.
type LinkService struct {
	links   LinkStore
	scans   ScanLog
	cache   TargetCache
	metrics *metrics.Metrics
	log     *zap.Logger
	opts    LinkOptions
	now     func() time.Time
}

// NewLinkService wires a LinkService.  targets and m may be nil.
func NewLinkService(links LinkStore, scans ScanLog, targets TargetCache, m *metrics.Metrics, log *zap.Logger, opts LinkOptions) *LinkService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BackendTimeout <= 0 {
		opts.BackendTimeout = 5 * time.Second
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 2 * time.Second
	}
	return &LinkService{
		links:   links,
		scans:   scans,
		cache:   targets,
		metrics: m,
		log:     log,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Visit is the request metadata stored with a scan.
type Visit struct {
	IP         string
	UserAgent  string
	City       string
	Region     string
	Country    string
	PostalCode string
}

// UTM holds campaign tags merged into a target URL.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// CreateLinkInput describes a new short link.  Code wins over Campaign as
// the code candidate; both may be empty.
type CreateLinkInput struct {
	TargetURL string
	Code      string
	Campaign  string
	UTM       UTM
}

func randomCode() (string, error) {
	return shortcode.RandomLower(shortcode.DefaultLength)
}

// ResolveUniqueCode turns candidate into a code that was free when checked.
// The sanitized base is tried first, then base-xyz variants.  When every
// attempt collides, or a check fails outright, a random code is returned
// without a further check.
func (s *LinkService) ResolveUniqueCode(ctx context.Context, candidate string) (string, error) {
	base := shortcode.Sanitize(candidate)
	if base == "" {
		return randomCode()
	}

	try := func(ctx context.Context, attempt int) (string, retry.Outcome, error) {
		code := base
		if attempt > 0 {
			tail, err := shortcode.Suffix()
			if err != nil {
				return "", retry.Abort, err
			}
			code = shortcode.WithSuffix(base, tail)
		}
		cctx, cancel := context.WithTimeout(ctx, s.opts.BackendTimeout)
		taken, err := s.links.CodeExists(cctx, code)
		cancel()
		if err != nil {
			return "", retry.Abort, err
		}
		if taken {
			return "", retry.Again, nil
		}
		return code, retry.Done, nil
	}
	fallback := func(ctx context.Context, cause error) (string, error) {
		if !errors.Is(cause, retry.ErrExhausted) {
			s.log.Warn("code collision check failed, using random code", zap.String("base", base), zap.Error(cause))
		}
		return randomCode()
	}
	return retry.Bounded(ctx, MaxCodeAttempts, try, fallback)
}

func validateTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("targetUrl", "is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, invalid("targetUrl", "must be an absolute http(s) URL")
	}
	return u, nil
}

// WithUTM returns target with non-empty UTM tags set as utm_* parameters.
func WithUTM(target *url.URL, utm UTM) string {
	q := target.Query()
	for k, v := range map[string]string{
		"utm_source":   utm.Source,
		"utm_medium":   utm.Medium,
		"utm_campaign": utm.Campaign,
		"utm_term":     utm.Term,
		"utm_content":  utm.Content,
	} {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	out := *target
	out.RawQuery = q.Encode()
	return out.String()
}

// ShortURL is the public URL for code.
func (s *LinkService) ShortURL(code string) string {
	return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + code
}

// CreateLink stores a new short link.  When the insert loses a race on the
// code, one random code is tried before giving up with ErrCodeTaken.
func (s *LinkService) CreateLink(ctx context.Context, in CreateLinkInput) (*model.ShortLink, error) {
	target, err := validateTarget(in.TargetURL)
	if err != nil {
		return nil, err
	}
	candidate := in.Code
	if strings.TrimSpace(candidate) == "" {
		candidate = in.Campaign
	}
	if len(candidate) > 256 {
		return nil, invalid("code", "is too long")
	}

	code, err := s.ResolveUniqueCode(ctx, candidate)
	if err != nil {
		return nil, transient("generate code", err)
	}
	l := &model.ShortLink{Code: code, TargetURL: WithUTM(target, in.UTM), CreatedAt: s.now()}

	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, s.opts.BackendTimeout)
		err = s.links.Create(cctx, l)
		cancel()
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return nil, transient("create link", err)
		}
		if attempt > 0 {
			return nil, ErrCodeTaken
		}
		s.log.Info("short code taken at insert, retrying with random code", zap.String("code", l.Code))
		if l.Code, err = randomCode(); err != nil {
			return nil, transient("generate code", err)
		}
	}

	if s.cache != nil {
		s.cache.Prime(ctx, l.Code, l.TargetURL)
	}
	s.metrics.LinkCreated()
	return l, nil
}

func normalizeCode(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "", invalid("code", "must not be empty")
	}
	return code, nil
}

func (s *LinkService) lookup(ctx context.Context, code string) (string, error) {
	if s.cache == nil {
		return s.links.TargetURL(ctx, code)
	}
	return s.cache.Target(ctx, code, s.links.TargetURL)
}

// Resolve returns the target for code and records the visit.  A miss is
// ErrNotFound and writes nothing.  Recording is best effort: failures are
// logged and counted, and never change the result of a hit.
func (s *LinkService) Resolve(ctx context.Context, code string, v Visit) (string, error) {
	code, err := normalizeCode(code)
	if err != nil {
		s.metrics.Resolve("invalid")
		return "", err
	}

	lctx, cancel := context.WithTimeout(ctx, s.opts.BackendTimeout)
	target, err := s.lookup(lctx, code)
	cancel()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.Resolve("miss")
		return "", ErrNotFound
	case err != nil:
		s.metrics.Resolve("error")
		return "", transient("resolve", err)
	}

	s.recordScan(ctx, code, v)
	s.metrics.Resolve("hit")
	return target, nil
}

// recordScan runs both side effects on a context detached from the
// request, so a client disconnect does not cut them short.
func (s *LinkService) recordScan(ctx context.Context, code string, v Visit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ScanTimeout)
	defer cancel()
	at := s.now()

	if err := s.links.RecordScan(ctx, code, at); err != nil {
		s.metrics.SideEffectFailed("scan_count")
		s.log.Warn("scan counter update failed", zap.String("code", code), zap.Error(err))
	}

	ev := &model.ScanEvent{
		Code:       code,
		ScannedAt:  at,
		ClientIP:   utils.HashClientIP(s.opts.IPHashKey, v.IP),
		UserAgent:  truncate(v.UserAgent, 512),
		City:       truncate(v.City, 128),
		Region:     truncate(v.Region, 128),
		Country:    truncate(v.Country, 8),
		PostalCode: truncate(v.PostalCode, 32),
	}
	if err := s.scans.Append(ctx, ev); err != nil {
		s.metrics.SideEffectFailed("scan_log")
		s.log.Warn("scan log append failed", zap.String("code", code), zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	// Drop a partial trailing rune.
	for i := 0; i < utf8.UTFMax-1 && len(s) > 0; i++ {
		if r, size := utf8.DecodeLastRuneInString(s); r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// Stats returns the link row including its scan counters.
func (s *LinkService) Stats(ctx context.Context, code string) (*model.ShortLink, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.BackendTimeout)
	defer cancel()
	l, err := s.links.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transient("link stats", err)
	}
	return l, nil
}

// ScanQuery filters a scan report.  Zero times are unbounded; Limit 0
// means DefaultScanLimit and values above MaxScanLimit are clamped.
type ScanQuery struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Scans lists the visits of an existing code, newest first.
func (s *LinkService) Scans(ctx context.Context, code string, q ScanQuery) ([]model.ScanEvent, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	switch {
	case q.Limit < 0:
		return nil, invalid("limit", "must not be negative")
	case q.Limit == 0:
		q.Limit = DefaultScanLimit
	case q.Limit > MaxScanLimit:
		q.Limit = MaxScanLimit
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		return nil, invalid("since", "must be before until")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.BackendTimeout)
	defer cancel()
	exists, err := s.links.CodeExists(ctx, code)
	if err != nil {
		return nil, transient("scan report", err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	events, err := s.scans.ListByCode(ctx, repository.ScanFilter{
		Code: code, Since: q.Since, Until: q.Until, Limit: uint64(q.Limit),
	})
	if err != nil {
		return nil, transient("scan report", err)
	}
	return events, nil
}
