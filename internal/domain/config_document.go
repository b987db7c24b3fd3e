package domain

import (
	"encoding/json"
	"fmt"
)

// 条件运算符封闭集合
const (
	OperatorEquals = "equals"
	OperatorIn     = "in"
	OperatorNotIn  = "not_in"
)

// ConditionOperators 全部条件运算符
var ConditionOperators = []string{OperatorEquals, OperatorIn, OperatorNotIn}

// 局部规则动作封闭集合
const (
	ActionHideTable      = "hide_table"       // 隐藏整表
	ActionDisableTable   = "disable_table"    // 禁用整表
	ActionResetToDefault = "reset_to_default" // 重置为默认选项
	ActionResetToNull    = "reset_to_null"    // 重置为未选择
	ActionDisableRows    = "disable_rows"     // 禁用指定行
	ActionFilterRows     = "filter_rows"      // 过滤为指定行
)

// LocalRuleActions 全部局部规则动作
var LocalRuleActions = []string{
	ActionHideTable,
	ActionDisableTable,
	ActionResetToDefault,
	ActionResetToNull,
	ActionDisableRows,
	ActionFilterRows,
}

// 全局规则类型封闭集合
const (
	RuleTypePartition            = "partition"              // 分区约束
	RuleTypeExclusivity          = "exclusivity"            // 互斥约束
	RuleTypeInvalidCombination   = "invalid_combination"    // 非法组合
	RuleTypeCrossTableDependency = "cross_table_dependency" // 跨表依赖
)

// GlobalRuleTypes 全部全局规则类型
var GlobalRuleTypes = []string{
	RuleTypePartition,
	RuleTypeExclusivity,
	RuleTypeInvalidCombination,
	RuleTypeCrossTableDependency,
}

// Condition 规则触发条件：某修饰表的当前选择满足 operator/value
type Condition struct {
	Table    string `json:"table"`
	Operator string `json:"operator"` // equals | in | not_in
	Value    any    `json:"value"`    // equals: 标量；in/not_in: 数组
}

// LocalRule 表级规则（只作用于所属修饰表）
// _tombstoned 为 true 时整条规则是一条"删除指令"：
// 合并时用于取消从组配置继承的同 ID 规则，自身不会出现在合并结果中。
type LocalRule struct {
	RuleID       string    `json:"rule_id"`
	Action       string    `json:"action"`
	Condition    Condition `json:"condition"`
	TargetRowIDs []string  `json:"target_row_ids,omitempty"`
	Description  string    `json:"description,omitempty"`
	Tombstoned   bool      `json:"_tombstoned,omitempty"`
}

// IsTombstone 该规则是否为删除指令
func (r *LocalRule) IsTombstone() bool { return r.Tombstoned }

// GlobalRule 跨表规则（文档级，作用于多个修饰表）
type GlobalRule struct {
	RuleID      string      `json:"rule_id"`
	Type        string      `json:"type"`
	Tables      []string    `json:"tables"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Description string      `json:"description,omitempty"`
	Tombstoned  bool        `json:"_tombstoned,omitempty"`
}

// IsTombstone 该规则是否为删除指令
func (r *GlobalRule) IsTombstone() bool { return r.Tombstoned }

// DefaultRow 三态默认选项：未设置 / 显式 null / 指定行
// 合并时需要区分"动作配置没写 default_row_id"（继承组配置）
// 与"动作配置显式写了 null"（覆盖组配置为无默认）。
type DefaultRow struct {
	Set  bool   `json:"-"` // JSON 中是否出现 default_row_id 键
	Null bool   `json:"-"` // 显式 null
	ID   string `json:"-"`
}

// Value 返回默认行ID；未设置或显式 null 时返回 nil
func (d DefaultRow) Value() *string {
	if !d.Set || d.Null {
		return nil
	}
	id := d.ID
	return &id
}

// AngleRange 角度类修饰表的结构扩展（如 torso_angle）
type AngleRange struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step,omitempty"`
}

// TableConfig 单个修饰表的配置
type TableConfig struct {
	Applicability     bool        `json:"applicability"`
	AllowedRowIDs     []string    `json:"allowed_row_ids,omitempty"`
	DefaultRowID      DefaultRow  `json:"-"` // 序列化见 MarshalJSON/UnmarshalJSON
	NullNoopAllowed   bool        `json:"null_noop_allowed"`
	SelectionRequired *bool       `json:"selection_required,omitempty"`
	SelectionMode     string      `json:"selection_mode,omitempty"`
	LocalRules        []LocalRule `json:"local_rules,omitempty"`

	// 按表使用的结构扩展（均可选）
	AngleRange         *AngleRange                `json:"angle_range,omitempty"`
	AssignmentMap      map[string]string          `json:"assignment_map,omitempty"`      // row_id -> movement_id（一组一行类表）
	SecondaryOverrides map[string]json.RawMessage `json:"secondary_overrides,omitempty"` // row_id -> 次级位置覆盖
}

// tableConfigJSON 与 TableConfig 同构，default_row_id 保留原始 JSON 以区分三态
type tableConfigJSON struct {
	Applicability      bool                       `json:"applicability"`
	AllowedRowIDs      []string                   `json:"allowed_row_ids,omitempty"`
	DefaultRowID       json.RawMessage            `json:"default_row_id,omitempty"`
	NullNoopAllowed    bool                       `json:"null_noop_allowed"`
	SelectionRequired  *bool                      `json:"selection_required,omitempty"`
	SelectionMode      string                     `json:"selection_mode,omitempty"`
	LocalRules         []LocalRule                `json:"local_rules,omitempty"`
	AngleRange         *AngleRange                `json:"angle_range,omitempty"`
	AssignmentMap      map[string]string          `json:"assignment_map,omitempty"`
	SecondaryOverrides map[string]json.RawMessage `json:"secondary_overrides,omitempty"`
}

// UnmarshalJSON 解析表配置，记录 default_row_id 的三态
func (t *TableConfig) UnmarshalJSON(data []byte) error {
	var aux tableConfigJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Applicability = aux.Applicability
	t.AllowedRowIDs = aux.AllowedRowIDs
	t.NullNoopAllowed = aux.NullNoopAllowed
	t.SelectionRequired = aux.SelectionRequired
	t.SelectionMode = aux.SelectionMode
	t.LocalRules = aux.LocalRules
	t.AngleRange = aux.AngleRange
	t.AssignmentMap = aux.AssignmentMap
	t.SecondaryOverrides = aux.SecondaryOverrides

	t.DefaultRowID = DefaultRow{}
	if len(aux.DefaultRowID) > 0 {
		t.DefaultRowID.Set = true
		if string(aux.DefaultRowID) == "null" {
			t.DefaultRowID.Null = true
		} else {
			var id string
			if err := json.Unmarshal(aux.DefaultRowID, &id); err != nil {
				return fmt.Errorf("invalid default_row_id: %w", err)
			}
			t.DefaultRowID.ID = id
		}
	}
	return nil
}

// MarshalJSON 序列化表配置；default_row_id 未设置时不输出该键
func (t TableConfig) MarshalJSON() ([]byte, error) {
	aux := tableConfigJSON{
		Applicability:      t.Applicability,
		AllowedRowIDs:      t.AllowedRowIDs,
		NullNoopAllowed:    t.NullNoopAllowed,
		SelectionRequired:  t.SelectionRequired,
		SelectionMode:      t.SelectionMode,
		LocalRules:         t.LocalRules,
		AngleRange:         t.AngleRange,
		AssignmentMap:      t.AssignmentMap,
		SecondaryOverrides: t.SecondaryOverrides,
	}
	if t.DefaultRowID.Set {
		if t.DefaultRowID.Null {
			aux.DefaultRowID = json.RawMessage("null")
		} else {
			b, err := json.Marshal(t.DefaultRowID.ID)
			if err != nil {
				return nil, err
			}
			aux.DefaultRowID = b
		}
	}
	return json.Marshal(aux)
}

// ConfigDocument 配置文档（编辑器提交的载荷，整体存入 JSONB）
type ConfigDocument struct {
	Meta       map[string]any             `json:"meta,omitempty"`
	Tables     map[TableKey]*TableConfig  `json:"tables"`
	Rules      []GlobalRule               `json:"rules,omitempty"`
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// ParseConfigDocument 从 JSONB 解析配置文档
// 只做反序列化；未知键等结构检查由 validation 层在不可信边界上执行。
func ParseConfigDocument(raw json.RawMessage) (*ConfigDocument, error) {
	if len(raw) == 0 {
		return &ConfigDocument{Tables: map[TableKey]*TableConfig{}}, nil
	}
	var doc ConfigDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config document: %w", err)
	}
	if doc.Tables == nil {
		doc.Tables = map[TableKey]*TableConfig{}
	}
	return &doc, nil
}

// EmptyConfigDocument 构造空配置文档（ensure-draft 占位用）
func EmptyConfigDocument() *ConfigDocument {
	return &ConfigDocument{Tables: map[TableKey]*TableConfig{}}
}
