package router

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/campaign-links/internal/model"
	"github.com/iliyamo/campaign-links/internal/repository"
)

// memLinks is a LinkStore and ScanLog over maps.
type memLinks struct {
	mu    sync.Mutex
	links map[string]*model.ShortLink
	scans []model.ScanEvent
}

func newMemLinks(code, target string) *memLinks {
	return &memLinks{links: map[string]*model.ShortLink{
		code: {Code: code, TargetURL: target, CreatedAt: time.Now().UTC()},
	}}
}

func (m *memLinks) CodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[code]
	return ok, nil
}

func (m *memLinks) TargetURL(ctx context.Context, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return "", repository.ErrNotFound
	}
	return l.TargetURL, nil
}

func (m *memLinks) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLinks) Create(ctx context.Context, l *model.ShortLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[l.Code]; ok {
		return repository.ErrDuplicateCode
	}
	cp := *l
	m.links[l.Code] = &cp
	return nil
}

func (m *memLinks) RecordScan(ctx context.Context, code string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[code]
	if !ok {
		return repository.ErrNotFound
	}
	l.ScanCount++
	l.LastScannedAt = &at
	return nil
}

func (m *memLinks) Append(ctx context.Context, ev *model.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = uint64(len(m.scans) + 1)
	m.scans = append(m.scans, *ev)
	return nil
}

func (m *memLinks) ListByCode(ctx context.Context, f repository.ScanFilter) ([]model.ScanEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ScanEvent{}
	for i := len(m.scans) - 1; i >= 0; i-- {
		if m.scans[i].Code == f.Code {
			out = append(out, m.scans[i])
		}
	}
	return out, nil
}
