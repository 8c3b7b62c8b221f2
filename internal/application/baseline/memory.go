// Package baseline keeps the last fully processed snapshot per trader.
package baseline

import (
	"context"
	"sync"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// MemoryStore is an in-process BaselineStore. Each trader is its own entry,
// so commits for different traders never contend.
// Se pierde al reiniciar: el primer ciclo de cada trader vuelve a sembrar.
type MemoryStore struct {
	m sync.Map // domain.TraderAddress → domain.PositionSnapshot
}

// NewMemoryStore crea un store vacío.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context, trader domain.TraderAddress) (domain.PositionSnapshot, bool, error) {
	v, ok := s.m.Load(trader)
	if !ok {
		return domain.PositionSnapshot{}, false, nil
	}
	return v.(domain.PositionSnapshot), true, nil
}

func (s *MemoryStore) Commit(_ context.Context, trader domain.TraderAddress, snap domain.PositionSnapshot) error {
	s.m.Store(trader, snap)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, trader domain.TraderAddress) error {
	s.m.Delete(trader)
	return nil
}

// Traders lista los traders con baseline.
func (s *MemoryStore) Traders() []domain.TraderAddress {
	var out []domain.TraderAddress
	s.m.Range(func(k, _ any) bool {
		out = append(out, k.(domain.TraderAddress))
		return true
	})
	return out
}
