package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// memoryJournal es el OrderJournal por defecto cuando no hay SQLite.
type memoryJournal struct {
	mu   sync.Mutex
	rows map[string]domain.OrderRecord
}

func newMemoryJournal() *memoryJournal {
	return &memoryJournal{rows: make(map[string]domain.OrderRecord)}
}

func (j *memoryJournal) Applied(_ context.Context, orderID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.rows[orderID]
	return ok && rec.Status == domain.OrderFilled, nil
}

func (j *memoryJournal) RecordOrder(_ context.Context, rec domain.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if prev, ok := j.rows[rec.Order.ID]; ok && prev.Status == domain.OrderFilled {
		return nil
	}
	j.rows[rec.Order.ID] = rec
	return nil
}

func (j *memoryJournal) RecentOrders(_ context.Context, n int) ([]domain.OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.OrderRecord, 0, len(j.rows))
	for _, r := range j.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ResolvedAt.After(out[b].ResolvedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (j *memoryJournal) RealizedSince(_ context.Context, t time.Time) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var total float64
	for _, r := range j.rows {
		if r.Status == domain.OrderFilled && !r.ResolvedAt.Before(t) {
			total += r.Realized
		}
	}
	return total, nil
}
