package service

import (
	"context"
	"encoding/json"
	"testing"

	"liftwise-config/internal/domain"

	"github.com/stretchr/testify/require"
)

func TestExportConfig_DeterministicBytes(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()
	rec, err := f.configs.CreateConfig(ctx, CreateConfigRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press",
		Document: json.RawMessage(cleanGripDoc),
		Notes:    "export test",
	})
	require.NoError(t, err)

	first, err := f.configs.ExportConfig(ctx, rec.ConfigID)
	require.NoError(t, err)
	second, err := f.configs.ExportConfig(ctx, rec.ConfigID)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(first, &payload))
	require.Equal(t, rec.ConfigID, payload["config_id"])
	require.Equal(t, domain.ScopeTypeMovement, payload["scope_type"])
	require.Equal(t, "export test", payload["notes"])
	require.NotNil(t, payload["config_doc"])
	_, hasPublished := payload["published_at"]
	require.False(t, hasPublished, "draft has no published_at")
}

func TestImportConfig_StructuralGate(t *testing.T) {
	f := newConfigFixture(t)
	ctx := context.Background()

	// 形状非法的文档直接拒绝，不产生任何行
	_, err := f.configs.ImportConfig(ctx, ImportConfigRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press",
		Document: json.RawMessage(`{"tables":{"bar_path":{"applicability":true}}}`),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "import rejected")

	list, err := f.configs.ListConfigs(ctx, ListConfigsRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press",
	})
	require.NoError(t, err)
	require.Equal(t, 0, list.Total)

	// 引用/语义问题不拦导入（导入只做结构门控，草稿允许待修）
	rec, err := f.configs.ImportConfig(ctx, ImportConfigRequest{
		ScopeType: domain.ScopeTypeMovement, ScopeID: "bench_press",
		Document: json.RawMessage(`{"tables":{"grip":{"applicability":true,"allowed_row_ids":["ghost_row"]}}}`),
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusDraft, rec.Status)
}
