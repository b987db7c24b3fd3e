package repository

import (
	"context"
	"sort"
	"sync"

	"liftwise-config/internal/domain"
)

// MemoryMovementsRepo supports unit tests and DB-less operation.
type MemoryMovementsRepo struct {
	mu        sync.RWMutex
	movements map[string]*domain.Movement
}

func NewMemoryMovementsRepo() *MemoryMovementsRepo {
	return &MemoryMovementsRepo{movements: map[string]*domain.Movement{}}
}

var _ MovementsRepository = (*MemoryMovementsRepo)(nil)

// AddMovement seeds a movement (test helper, not part of the interface).
func (r *MemoryMovementsRepo) AddMovement(m *domain.Movement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *m
	if m.ParentID != nil {
		p := *m.ParentID
		c.ParentID = &p
	}
	r.movements[m.MovementID] = &c
}

func (r *MemoryMovementsRepo) GetMovement(_ context.Context, movementID string) (*domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.movements[movementID]
	if !ok {
		return nil, ErrMovementNotFound
	}
	c := *m
	if m.ParentID != nil {
		p := *m.ParentID
		c.ParentID = &p
	}
	return &c, nil
}

func (r *MemoryMovementsRepo) ListMovements(_ context.Context, activeOnly bool) ([]*domain.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*domain.Movement
	for _, m := range r.movements {
		if activeOnly && !m.IsActive {
			continue
		}
		c := *m
		if m.ParentID != nil {
			p := *m.ParentID
			c.ParentID = &p
		}
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].MovementID < all[j].MovementID })
	return all, nil
}

// MemoryModifiersRepo supports unit tests and DB-less operation.
type MemoryModifiersRepo struct {
	mu   sync.RWMutex
	rows []*domain.ModifierRow
}

func NewMemoryModifiersRepo() *MemoryModifiersRepo {
	return &MemoryModifiersRepo{}
}

var _ ModifiersRepository = (*MemoryModifiersRepo)(nil)

// AddRow seeds a modifier row (test helper, not part of the interface).
func (r *MemoryModifiersRepo) AddRow(row *domain.ModifierRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

func cloneModifierRow(row *domain.ModifierRow) *domain.ModifierRow {
	c := *row
	c.MuscleDeltas = make(map[string]map[string]float64, len(row.MuscleDeltas))
	for movement, deltas := range row.MuscleDeltas {
		inner := make(map[string]float64, len(deltas))
		for muscle, delta := range deltas {
			inner[muscle] = delta
		}
		c.MuscleDeltas[movement] = inner
	}
	return &c
}

func (r *MemoryModifiersRepo) ListRows(_ context.Context, tableKey domain.TableKey) ([]*domain.ModifierRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.ModifierRow
	for _, row := range r.rows {
		if row.TableKey == tableKey {
			result = append(result, cloneModifierRow(row))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RowID < result[j].RowID })
	return result, nil
}

func (r *MemoryModifiersRepo) RowsForMovement(_ context.Context, movementID string) ([]*domain.ModifierRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.ModifierRow
	for _, row := range r.rows {
		if row.HasDeltaFor(movementID) {
			result = append(result, cloneModifierRow(row))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TableKey != result[j].TableKey {
			return result[i].TableKey < result[j].TableKey
		}
		return result[i].RowID < result[j].RowID
	})
	return result, nil
}

func (r *MemoryModifiersRepo) DeltaMovementIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for _, row := range r.rows {
		for movementID := range row.MuscleDeltas {
			seen[movementID] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
