package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/store"
	"liftwise-config/internal/validation"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeKV is an in-memory store.KV for cache behavior tests.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	sets int
	gets int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// resolverFixture wires memory repos into both services so tests can
// create configs through the real lifecycle paths.
type resolverFixture struct {
	configs   *ConfigService
	resolver  *ResolverService
	movements *repository.MemoryMovementsRepo
	modifiers *repository.MemoryModifiersRepo
	kv        *fakeKV
}

func newResolverFixture(t *testing.T, withCache bool) *resolverFixture {
	t.Helper()
	logger := zap.NewNop()
	configsRepo := repository.NewMemoryConfigsRepo()
	movementsRepo := repository.NewMemoryMovementsRepo()
	modifiersRepo := repository.NewMemoryModifiersRepo()

	// bench_press has no parent, so it is its own group; the incline
	// variant belongs to that group.
	movementsRepo.AddMovement(&domain.Movement{MovementID: "bench_press", MovementName: "Bench Press", IsActive: true})
	parent := "bench_press"
	movementsRepo.AddMovement(&domain.Movement{MovementID: "incline_bench_press", ParentID: &parent, MovementName: "Incline Bench Press", IsActive: true})

	for _, rowID := range []string{"0", "15", "30", "45", "unspecified"} {
		modifiersRepo.AddRow(&domain.ModifierRow{TableKey: domain.TableTorsoAngle, RowID: rowID, RowName: rowID, IsActive: true})
	}
	for _, rowID := range []string{"pronated", "supinated", "neutral"} {
		modifiersRepo.AddRow(&domain.ModifierRow{TableKey: domain.TableGrip, RowID: rowID, RowName: rowID, IsActive: true})
	}

	var kv store.KV
	var fake *fakeKV
	if withCache {
		fake = newFakeKV()
		kv = fake
	}
	validator := validation.NewValidator(logger)
	return &resolverFixture{
		configs:   NewConfigService(configsRepo, movementsRepo, modifiersRepo, validator, kv, logger),
		resolver:  NewResolverService(configsRepo, movementsRepo, kv, logger),
		movements: movementsRepo,
		modifiers: modifiersRepo,
		kv:        fake,
	}
}

// createActive creates a config for the scope and activates it.
func (f *resolverFixture) createActive(t *testing.T, scopeType, scopeID, doc string) *domain.ConfigRecord {
	t.Helper()
	rec, err := f.configs.CreateConfig(context.Background(), CreateConfigRequest{
		ScopeType: scopeType,
		ScopeID:   scopeID,
		Document:  json.RawMessage(doc),
	})
	require.NoError(t, err)
	resp, err := f.configs.ActivateConfig(context.Background(), rec.ConfigID)
	require.NoError(t, err)
	require.False(t, resp.Rejected, "activation rejected: %+v", resp.Validation)
	return resp.Config
}

func diagCodes(resolved *domain.ResolvedConfig) []string {
	out := make([]string, 0, len(resolved.Diagnostics))
	for _, d := range resolved.Diagnostics {
		out = append(out, d.Code)
	}
	return out
}

func TestResolve_UnknownMode(t *testing.T) {
	f := newResolverFixture(t, false)
	_, err := f.resolver.Resolve(context.Background(), "bench_press", "nonsense")
	require.Error(t, err)
}

func TestResolve_NoConfigAnywhere(t *testing.T) {
	f := newResolverFixture(t, false)
	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", "")
	require.NoError(t, err)
	require.Equal(t, "bench_press", resolved.GroupID)
	require.Empty(t, resolved.EffectiveTables)
	require.Contains(t, diagCodes(resolved), "no_config")
}

func TestResolve_GroupOnly(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["0","15","30","45","unspecified"], "default_row_id": "0"}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, resolved.GroupConfigID)
	require.Nil(t, resolved.MotionConfigID)

	table := resolved.EffectiveTables[domain.TableTorsoAngle]
	require.NotNil(t, table)
	require.Equal(t, domain.SourceGroup, table.Source)
	require.Equal(t, []string{"0", "15", "30", "45", "unspecified"}, table.AllowedRowIDs)
	require.NotNil(t, table.DefaultRowID)
	require.Equal(t, "0", *table.DefaultRowID)
}

func TestResolve_MovementOverridesGroup(t *testing.T) {
	f := newResolverFixture(t, false)
	// Group: full incline range with flat default.
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["0","15","30","45","unspecified"], "default_row_id": "0"}
		}
	}`)
	// Movement: incline variant narrows the range and moves the default.
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["30","45","unspecified"], "default_row_id": "45"}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.NotNil(t, resolved.GroupConfigID)
	require.NotNil(t, resolved.MotionConfigID)

	table := resolved.EffectiveTables[domain.TableTorsoAngle]
	require.Equal(t, domain.SourceMerged, table.Source)
	require.Equal(t, []string{"30", "45", "unspecified"}, table.AllowedRowIDs)
	require.Equal(t, "45", *table.DefaultRowID)
}

func TestResolve_MovementInheritsWhenSilent(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["0","15","unspecified"], "default_row_id": "0"}
		}
	}`)
	// Movement config mentions the table but leaves rows and default unset.
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	table := resolved.EffectiveTables[domain.TableTorsoAngle]
	require.Equal(t, domain.SourceMerged, table.Source)
	require.Equal(t, []string{"0", "15", "unspecified"}, table.AllowedRowIDs)
	require.Equal(t, "0", *table.DefaultRowID)
}

func TestResolve_ExplicitNullDefaultWins(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"grip": {"applicability": true, "allowed_row_ids": ["pronated","neutral"], "default_row_id": "pronated"}
		}
	}`)
	// Explicit null is an override, not an omission.
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"grip": {"applicability": true, "default_row_id": null}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	table := resolved.EffectiveTables[domain.TableGrip]
	require.Nil(t, table.DefaultRowID)
	require.Equal(t, []string{"pronated", "neutral"}, table.AllowedRowIDs)
}

func TestResolve_MergedDefaultNotAllowedWarning(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["0","15","unspecified"], "default_row_id": "0"}
		}
	}`)
	// Movement narrows the rows but does not touch the default; the
	// inherited default falls outside the replaced row set.
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"torso_angle": {"applicability": true, "allowed_row_ids": ["30","45","unspecified"]}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Contains(t, diagCodes(resolved), "merged_default_not_allowed")
}

func TestResolve_TombstoneCancelsGroupRule(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {
			"grip": {
				"applicability": true,
				"allowed_row_ids": ["pronated","supinated"],
				"local_rules": [
					{"rule_id": "aaaaaaaaaaaaaaaa", "action": "disable_rows",
					 "condition": {"table": "torso_angle", "operator": "equals", "value": "45"},
					 "target_row_ids": ["supinated"]}
				]
			}
		}
	}`)
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"grip": {
				"applicability": true,
				"local_rules": [
					{"rule_id": "aaaaaaaaaaaaaaaa", "_tombstoned": true}
				]
			}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	table := resolved.EffectiveTables[domain.TableGrip]
	require.Empty(t, table.LocalRules)
	require.NotContains(t, diagCodes(resolved), "dead_tombstone")
}

func TestResolve_DeadTombstoneWarns(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {
			"grip": {
				"applicability": true,
				"allowed_row_ids": ["pronated"],
				"local_rules": [
					{"rule_id": "ffffffffffffffff", "_tombstoned": true}
				]
			}
		}
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Contains(t, diagCodes(resolved), "dead_tombstone")
}

func TestResolve_GlobalRuleMerge(t *testing.T) {
	f := newResolverFixture(t, false)
	f.createActive(t, domain.ScopeTypeMovementGroup, "bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"]}},
		"rules": [
			{"rule_id": "1111111111111111", "type": "exclusivity", "tables": ["grip","torso_angle"]},
			{"rule_id": "2222222222222222", "type": "partition", "tables": ["grip"]}
		]
	}`)
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {"grip": {"applicability": true}},
		"rules": [
			{"rule_id": "2222222222222222", "_tombstoned": true},
			{"rule_id": "3333333333333333", "type": "invalid_combination", "tables": ["grip"]}
		]
	}`)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Len(t, resolved.GlobalRules, 2)
	require.Equal(t, "1111111111111111", resolved.GlobalRules[0].RuleID)
	require.Equal(t, "3333333333333333", resolved.GlobalRules[1].RuleID)
}

func TestResolve_DraftPreviewSeesDrafts(t *testing.T) {
	f := newResolverFixture(t, false)
	rec, err := f.configs.CreateConfig(context.Background(), CreateConfigRequest{
		ScopeType: domain.ScopeTypeMovement,
		ScopeID:   "incline_bench_press",
		Document:  json.RawMessage(`{"tables":{"grip":{"applicability":true,"allowed_row_ids":["pronated"]}}}`),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, rec.Status)

	// active_only does not see the draft
	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Contains(t, diagCodes(resolved), "no_config")

	// draft_preview does
	resolved, err = f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeDraftPreview)
	require.NoError(t, err)
	require.NotNil(t, resolved.MotionConfigID)
	require.Equal(t, rec.ConfigID, *resolved.MotionConfigID)
}

func TestResolve_SelfParentCycle(t *testing.T) {
	f := newResolverFixture(t, false)
	self := "ouroboros"
	f.movements.AddMovement(&domain.Movement{MovementID: "ouroboros", ParentID: &self, MovementName: "Ouroboros", IsActive: true})

	resolved, err := f.resolver.Resolve(context.Background(), "ouroboros", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Equal(t, "ouroboros", resolved.GroupID)
	require.Contains(t, diagCodes(resolved), "parent_cycle")
}

func TestResolve_UnknownMovement(t *testing.T) {
	f := newResolverFixture(t, false)
	_, err := f.resolver.Resolve(context.Background(), "no_such_movement", domain.ResolveModeActiveOnly)
	require.Error(t, err)
	require.ErrorIs(t, err, repository.ErrMovementNotFound)
}

func TestResolve_CacheRoundTrip(t *testing.T) {
	f := newResolverFixture(t, true)
	f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"], "default_row_id": "pronated"}}
	}`)
	f.kv.mu.Lock()
	f.kv.data = map[string]string{} // activation invalidated; start clean
	f.kv.mu.Unlock()

	first, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Equal(t, 1, f.kv.sets)

	second, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Equal(t, 1, f.kv.sets, "second resolve should be served from cache")
	require.Equal(t, first.EffectiveTables[domain.TableGrip].AllowedRowIDs, second.EffectiveTables[domain.TableGrip].AllowedRowIDs)

	// draft_preview bypasses the cache entirely
	setsBefore := f.kv.sets
	_, err = f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeDraftPreview)
	require.NoError(t, err)
	require.Equal(t, setsBefore, f.kv.sets)
}

func TestResolve_LifecycleInvalidatesCache(t *testing.T) {
	f := newResolverFixture(t, true)
	rec := f.createActive(t, domain.ScopeTypeMovement, "incline_bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"], "default_row_id": "pronated"}}
	}`)

	_, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.NotEmpty(t, f.kv.data)

	// force-updating the active row must clear cached resolutions
	_, err = f.configs.UpdateConfig(context.Background(), UpdateConfigRequest{
		ConfigID: rec.ConfigID,
		Document: json.RawMessage(`{"tables":{"grip":{"applicability":true,"allowed_row_ids":["pronated","neutral"],"default_row_id":"pronated"}}}`),
		Force:    true,
	})
	require.NoError(t, err)
	require.Empty(t, f.kv.data)

	resolved, err := f.resolver.Resolve(context.Background(), "incline_bench_press", domain.ResolveModeActiveOnly)
	require.NoError(t, err)
	require.Equal(t, []string{"pronated", "neutral"}, resolved.EffectiveTables[domain.TableGrip].AllowedRowIDs)
}
