package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableConfig_DefaultRowTriState(t *testing.T) {
	// 键缺失：未设置
	var table TableConfig
	require.NoError(t, json.Unmarshal([]byte(`{"applicability":true}`), &table))
	require.False(t, table.DefaultRowID.Set)
	require.Nil(t, table.DefaultRowID.Value())

	// 显式 null：设置且为空（覆盖语义）
	require.NoError(t, json.Unmarshal([]byte(`{"applicability":true,"default_row_id":null}`), &table))
	require.True(t, table.DefaultRowID.Set)
	require.True(t, table.DefaultRowID.Null)
	require.Nil(t, table.DefaultRowID.Value())

	// 具体行
	require.NoError(t, json.Unmarshal([]byte(`{"applicability":true,"default_row_id":"pronated"}`), &table))
	require.True(t, table.DefaultRowID.Set)
	require.False(t, table.DefaultRowID.Null)
	require.Equal(t, "pronated", *table.DefaultRowID.Value())

	require.Error(t, json.Unmarshal([]byte(`{"default_row_id":42}`), &table))
}

func TestTableConfig_MarshalPreservesTriState(t *testing.T) {
	roundTrip := func(in string) string {
		var table TableConfig
		require.NoError(t, json.Unmarshal([]byte(in), &table))
		out, err := json.Marshal(table)
		require.NoError(t, err)
		return string(out)
	}

	require.NotContains(t, roundTrip(`{"applicability":true}`), "default_row_id")
	require.Contains(t, roundTrip(`{"applicability":true,"default_row_id":null}`), `"default_row_id":null`)
	require.Contains(t, roundTrip(`{"applicability":true,"default_row_id":"sumo"}`), `"default_row_id":"sumo"`)
}

func TestParseConfigDocument(t *testing.T) {
	doc, err := ParseConfigDocument(nil)
	require.NoError(t, err)
	require.NotNil(t, doc.Tables)

	doc, err = ParseConfigDocument(json.RawMessage(`{
		"meta": {"comment": "incline press family"},
		"tables": {
			"torso_angle": {
				"applicability": true,
				"allowed_row_ids": ["30","45"],
				"angle_range": {"min": -30, "max": 45, "step": 15}
			}
		},
		"rules": [
			{"rule_id": "aaaaaaaaaaaaaaaa", "type": "partition", "tables": ["torso_angle"]}
		]
	}`))
	require.NoError(t, err)
	table := doc.Tables[TableTorsoAngle]
	require.NotNil(t, table)
	require.NotNil(t, table.AngleRange)
	require.Equal(t, float64(-30), table.AngleRange.Min)
	require.Len(t, doc.Rules, 1)

	_, err = ParseConfigDocument(json.RawMessage(`not json`))
	require.Error(t, err)
}

func TestMovementGroupID(t *testing.T) {
	m := Movement{MovementID: "bench_press"}
	require.Equal(t, "bench_press", m.GroupID())

	parent := "bench_press"
	child := Movement{MovementID: "incline_bench_press", ParentID: &parent}
	require.Equal(t, "bench_press", child.GroupID())

	self := "ouroboros"
	loop := Movement{MovementID: "ouroboros", ParentID: &self}
	require.Equal(t, "ouroboros", loop.GroupID())
}
