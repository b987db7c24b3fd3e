package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"liftwise-config/internal/domain"

	"github.com/google/uuid"
)

// MemoryConfigsRepo supports DB-less operation and unit tests.
// WithTx serializes on a single mutex, which gives the same observable
// guarantee as the per-scope advisory lock: no two read-modify-write
// sequences for the same scope interleave.
type MemoryConfigsRepo struct {
	mu      sync.Mutex
	configs map[string]*domain.ConfigRecord // configID -> record
}

func NewMemoryConfigsRepo() *MemoryConfigsRepo {
	return &MemoryConfigsRepo{configs: map[string]*domain.ConfigRecord{}}
}

var _ ConfigsRepository = (*MemoryConfigsRepo)(nil)

func cloneConfig(rec *domain.ConfigRecord) *domain.ConfigRecord {
	c := *rec
	if rec.ConfigDoc != nil {
		c.ConfigDoc = append(json.RawMessage{}, rec.ConfigDoc...)
	}
	if rec.ValidationSummary != nil {
		c.ValidationSummary = append(json.RawMessage{}, rec.ValidationSummary...)
	}
	if rec.PublishedAt != nil {
		t := *rec.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

func (r *MemoryConfigsRepo) GetConfig(_ context.Context, configID string) (*domain.ConfigRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.configs[configID]
	if !ok {
		return nil, ErrConfigNotFound
	}
	return cloneConfig(rec), nil
}

func (r *MemoryConfigsRepo) ListConfigs(_ context.Context, filters ConfigFilters, page, size int) ([]*domain.ConfigRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*domain.ConfigRecord
	for _, rec := range r.configs {
		if filters.ScopeType != "" && rec.ScopeType != filters.ScopeType {
			continue
		}
		if filters.ScopeID != "" && rec.ScopeID != filters.ScopeID {
			continue
		}
		if filters.Status != "" && rec.Status != filters.Status {
			continue
		}
		if !filters.IncludeDeleted && rec.IsDeleted {
			continue
		}
		all = append(all, cloneConfig(rec))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ScopeType != all[j].ScopeType {
			return all[i].ScopeType < all[j].ScopeType
		}
		if all[i].ScopeID != all[j].ScopeID {
			return all[i].ScopeID < all[j].ScopeID
		}
		return all[i].ConfigVersion > all[j].ConfigVersion
	})

	total := len(all)
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryConfigsRepo) SetValidationSummary(_ context.Context, configID, status string, summary json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.configs[configID]
	if !ok {
		return ErrConfigNotFound
	}
	rec.ValidationStatus = status
	rec.ValidationSummary = append(json.RawMessage{}, summary...)
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryConfigsRepo) WithTx(_ context.Context, fn func(tx ConfigsTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// No rollback: memory tx mutates a staging copy and applies on success.
	staging := &memoryConfigsTx{repo: r, pending: map[string]*domain.ConfigRecord{}}
	if err := fn(staging); err != nil {
		return err
	}
	for id, rec := range staging.pending {
		r.configs[id] = rec
	}
	return nil
}

// memoryConfigsTx buffers writes so a failing fn leaves the repo untouched.
type memoryConfigsTx struct {
	repo    *MemoryConfigsRepo
	pending map[string]*domain.ConfigRecord
}

var _ ConfigsTx = (*memoryConfigsTx)(nil)

func (t *memoryConfigsTx) view(configID string) (*domain.ConfigRecord, bool) {
	if rec, ok := t.pending[configID]; ok {
		return rec, true
	}
	rec, ok := t.repo.configs[configID]
	return rec, ok
}

func (t *memoryConfigsTx) each(fn func(rec *domain.ConfigRecord)) {
	seen := map[string]bool{}
	for id, rec := range t.pending {
		seen[id] = true
		fn(rec)
	}
	for id, rec := range t.repo.configs {
		if !seen[id] {
			fn(rec)
		}
	}
}

func (t *memoryConfigsTx) LockScope(_ context.Context, _, _ string) error {
	// The enclosing WithTx mutex already serializes all transactions.
	return nil
}

func (t *memoryConfigsTx) GetConfig(_ context.Context, configID string) (*domain.ConfigRecord, error) {
	rec, ok := t.view(configID)
	if !ok {
		return nil, ErrConfigNotFound
	}
	return cloneConfig(rec), nil
}

func (t *memoryConfigsTx) ListScopeConfigs(_ context.Context, scopeType, scopeID string, includeDeleted bool) ([]*domain.ConfigRecord, error) {
	var records []*domain.ConfigRecord
	t.each(func(rec *domain.ConfigRecord) {
		if rec.ScopeType != scopeType || rec.ScopeID != scopeID {
			return
		}
		if !includeDeleted && rec.IsDeleted {
			return
		}
		records = append(records, cloneConfig(rec))
	})
	sort.Slice(records, func(i, j int) bool { return records[i].ConfigVersion < records[j].ConfigVersion })
	return records, nil
}

func (t *memoryConfigsTx) ListAllScopes(_ context.Context) ([]ScopeRef, error) {
	seen := map[ScopeRef]bool{}
	t.each(func(rec *domain.ConfigRecord) {
		seen[ScopeRef{ScopeType: rec.ScopeType, ScopeID: rec.ScopeID}] = true
	})
	scopes := make([]ScopeRef, 0, len(seen))
	for s := range seen {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool {
		if scopes[i].ScopeType != scopes[j].ScopeType {
			return scopes[i].ScopeType < scopes[j].ScopeType
		}
		return scopes[i].ScopeID < scopes[j].ScopeID
	})
	return scopes, nil
}

func (t *memoryConfigsTx) MaxConfigVersion(_ context.Context, scopeType, scopeID string) (int, error) {
	max := 0
	t.each(func(rec *domain.ConfigRecord) {
		if rec.ScopeType == scopeType && rec.ScopeID == scopeID && rec.ConfigVersion > max {
			max = rec.ConfigVersion
		}
	})
	return max, nil
}

func (t *memoryConfigsTx) InsertConfig(_ context.Context, rec *domain.ConfigRecord) (string, error) {
	now := time.Now()
	c := cloneConfig(rec)
	if c.ConfigID == "" {
		c.ConfigID = uuid.NewString()
	}
	if c.ValidationStatus == "" {
		c.ValidationStatus = domain.ValidationStatusUnknown
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	t.pending[c.ConfigID] = c
	rec.ConfigID = c.ConfigID
	return c.ConfigID, nil
}

func (t *memoryConfigsTx) UpdateConfig(_ context.Context, rec *domain.ConfigRecord) error {
	if _, ok := t.view(rec.ConfigID); !ok {
		return ErrConfigNotFound
	}
	c := cloneConfig(rec)
	c.UpdatedAt = time.Now()
	t.pending[c.ConfigID] = c
	return nil
}
