package service

import (
	"context"
	"testing"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"

	"github.com/stretchr/testify/require"
)

func addDeltaRow(f *resolverFixture, tableKey domain.TableKey, rowID string, movementIDs ...string) {
	deltas := map[string]map[string]float64{}
	for _, id := range movementIDs {
		deltas[id] = map[string]float64{"pectoralis_major": 0.1}
	}
	f.modifiers.AddRow(&domain.ModifierRow{
		TableKey:     tableKey,
		RowID:        rowID,
		RowName:      rowID,
		IsActive:     true,
		MuscleDeltas: deltas,
	})
}

func TestSyncDeltas_SkippedWithoutDeltaRows(t *testing.T) {
	f := newConfigFixture(t)
	resp, err := f.configs.SyncDeltasForMovement(context.Background(), "bench_press")
	require.NoError(t, err)
	require.Equal(t, SyncStatusSkipped, resp.Status)
}

func TestSyncDeltas_UnknownMovement(t *testing.T) {
	f := newConfigFixture(t)
	_, err := f.configs.SyncDeltasForMovement(context.Background(), "no_such_movement")
	require.ErrorIs(t, err, repository.ErrMovementNotFound)
}

func TestSyncDeltas_AutoCreatesActiveConfig(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()
	addDeltaRow(f, domain.TableGripWidth, "wide", "bench_press")
	addDeltaRow(f, domain.TableGripWidth, "close", "bench_press")

	resp, err := f.configs.SyncDeltasForMovement(ctx, "bench_press")
	require.NoError(t, err)
	require.Equal(t, SyncStatusCreated, resp.Status)

	list, err := f.configs.ListConfigs(ctx, ListConfigsRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press", Status: domain.StatusActive,
	})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	rec := list.Items[0]
	require.NotNil(t, rec.PublishedAt)

	doc, err := rec.Document()
	require.NoError(t, err)
	table := doc.Tables[domain.TableGripWidth]
	require.NotNil(t, table)
	require.True(t, table.Applicability)
	require.Equal(t, []string{"close", "wide"}, table.AllowedRowIDs)
	require.True(t, table.NullNoopAllowed)
}

func TestSyncDeltas_MergesIntoExistingActive(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()
	f.createActive(t, domain.ScopeTypeMovement, "bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"], "default_row_id": "pronated"}}
	}`)

	// 已知行 + 新行 + 新表
	addDeltaRow(f, domain.TableGrip, "pronated", "bench_press")
	addDeltaRow(f, domain.TableGrip, "neutral", "bench_press")
	addDeltaRow(f, domain.TableGripWidth, "wide", "bench_press")

	resp, err := f.configs.SyncDeltasForMovement(ctx, "bench_press")
	require.NoError(t, err)
	require.Equal(t, SyncStatusUpdated, resp.Status)

	list, err := f.configs.ListConfigs(ctx, ListConfigsRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press", Status: domain.StatusActive,
	})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	doc, err := list.Items[0].Document()
	require.NoError(t, err)

	grip := doc.Tables[domain.TableGrip]
	require.Equal(t, []string{"pronated", "neutral"}, grip.AllowedRowIDs)
	// 既有默认不受同步影响
	require.NotNil(t, grip.DefaultRowID.Value())
	require.Equal(t, "pronated", *grip.DefaultRowID.Value())

	width := doc.Tables[domain.TableGripWidth]
	require.NotNil(t, width)
	require.Equal(t, []string{"wide"}, width.AllowedRowIDs)
}

func TestSyncDeltas_NoChangeIsSkipped(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()
	f.createActive(t, domain.ScopeTypeMovement, "bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"], "default_row_id": "pronated"}}
	}`)
	addDeltaRow(f, domain.TableGrip, "pronated", "bench_press")

	resp, err := f.configs.SyncDeltasForMovement(ctx, "bench_press")
	require.NoError(t, err)
	require.Equal(t, SyncStatusSkipped, resp.Status)
}

func TestSyncAllDeltaMovements_Partition(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()

	// bench_press 已有包含该行的激活配置 → skipped
	f.createActive(t, domain.ScopeTypeMovement, "bench_press", `{
		"tables": {"grip": {"applicability": true, "allowed_row_ids": ["pronated"], "default_row_id": "pronated"}}
	}`)
	addDeltaRow(f, domain.TableGrip, "pronated", "bench_press")
	// incline 无配置 → created
	addDeltaRow(f, domain.TableTorsoAngle, "30", "incline_bench_press")
	// 已从动作库删除的动作仍出现在增量数据中 → failed
	addDeltaRow(f, domain.TableGrip, "supinated", "retired_movement")

	resp, err := f.configs.SyncAllDeltaMovements(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"incline_bench_press"}, resp.Created)
	require.Empty(t, resp.Updated)
	require.Equal(t, []string{"bench_press"}, resp.Skipped)
	require.Len(t, resp.Failed, 1)
	require.Equal(t, "retired_movement", resp.Failed[0].MovementID)
}
