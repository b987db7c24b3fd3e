package validation

import (
	"encoding/json"
	"fmt"

	"liftwise-config/internal/domain"
)

// 文档顶层允许的键
var allowedTopLevelKeys = map[string]bool{
	"meta":       true,
	"tables":     true,
	"rules":      true,
	"extensions": true,
}

// ValidateStructural 结构校验（纯函数，不依赖外部数据）
// 确认文档与约定的形状完全一致：必需键存在、无未识别的顶层/表键、
// 每条规则的 rule_id 非空、枚举字段取值在封闭集合内。
// 只产生 error 级消息：形状不对的文档没有"部分有效"可言。
func (v *Validator) ValidateStructural(raw json.RawMessage) []Message {
	var messages []Message
	errf := func(code, table, format string, args ...any) {
		messages = append(messages, Message{
			Severity: SeverityError, Layer: LayerStructural, Code: code, Table: table,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if len(raw) == 0 {
		errf("empty_document", "", "config document is empty")
		return messages
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		errf("not_an_object", "", "config document is not a JSON object: %v", err)
		return messages
	}

	for key := range top {
		if !allowedTopLevelKeys[key] {
			errf("unknown_top_level_key", "", "unknown top-level key %q", key)
		}
	}

	tablesRaw, ok := top["tables"]
	if !ok || string(tablesRaw) == "null" {
		errf("missing_tables", "", "required key \"tables\" is missing")
		return messages
	}
	var tables map[string]json.RawMessage
	if err := json.Unmarshal(tablesRaw, &tables); err != nil {
		errf("invalid_tables", "", "\"tables\" is not an object: %v", err)
		return messages
	}
	for key := range tables {
		if !domain.IsModifierTableKey(key) {
			errf("unknown_table_key", key, "unknown modifier table key %q", key)
		}
	}

	doc, err := domain.ParseConfigDocument(raw)
	if err != nil {
		errf("parse_failed", "", "%v", err)
		return messages
	}

	for key, table := range doc.Tables {
		if table == nil {
			errf("invalid_table_config", string(key), "table config is null")
			continue
		}
		for _, rule := range table.LocalRules {
			if rule.RuleID == "" {
				errf("missing_rule_id", string(key), "local rule without rule_id")
			}
			if rule.IsTombstone() {
				// 墓碑只需要ID，动作/条件不做结构要求
				continue
			}
			if !contains(domain.LocalRuleActions, rule.Action) {
				errf("unknown_rule_action", string(key), "unknown local rule action %q", rule.Action)
			}
			if !contains(domain.ConditionOperators, rule.Condition.Operator) {
				errf("unknown_condition_operator", string(key), "unknown condition operator %q", rule.Condition.Operator)
			}
		}
	}

	for _, rule := range doc.Rules {
		if rule.RuleID == "" {
			errf("missing_rule_id", "", "global rule without rule_id")
		}
		if rule.IsTombstone() {
			continue
		}
		if !contains(domain.GlobalRuleTypes, rule.Type) {
			errf("unknown_rule_type", "", "unknown global rule type %q", rule.Type)
		}
		for _, cond := range rule.Conditions {
			if !contains(domain.ConditionOperators, cond.Operator) {
				errf("unknown_condition_operator", "", "unknown condition operator %q", cond.Operator)
			}
		}
	}

	return messages
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
