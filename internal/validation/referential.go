package validation

import (
	"fmt"

	"liftwise-config/internal/domain"
)

// ValidateReferential 引用校验（依赖外部上下文）
// 确认作用域ID、所有被引用的行ID、规则引用的表都真实存在。
// 组作用域ID缺失只给 warning：组ID由动作父子关系推导，不独立维护。
func (v *Validator) ValidateReferential(scopeType, scopeID string, doc *domain.ConfigDocument, ctx *Context) []Message {
	var messages []Message
	add := func(severity, code, table, format string, args ...any) {
		messages = append(messages, Message{
			Severity: severity, Layer: LayerReferential, Code: code, Table: table,
			Message: fmt.Sprintf(format, args...),
		})
	}
	if ctx == nil {
		return messages
	}

	switch scopeType {
	case domain.ScopeTypeMovement:
		if scopeID != "" && !ctx.MovementIDs[scopeID] {
			add(SeverityError, "unknown_scope_id", "", "movement %q does not exist", scopeID)
		}
	case domain.ScopeTypeMovementGroup:
		if scopeID != "" && !ctx.GroupIDs[scopeID] {
			add(SeverityWarning, "unknown_group_id", "", "movement group %q is not derivable from any movement", scopeID)
		}
	}

	for key, table := range doc.Tables {
		if table == nil {
			continue
		}
		universe := ctx.TableRows[key]
		for _, rowID := range table.AllowedRowIDs {
			if !universe[rowID] {
				add(SeverityError, "unknown_row_id", string(key), "allowed row %q does not exist in table %q", rowID, key)
			}
		}
		if def := table.DefaultRowID.Value(); def != nil && !universe[*def] {
			add(SeverityError, "unknown_default_row", string(key), "default row %q does not exist in table %q", *def, key)
		}
		for _, rule := range table.LocalRules {
			if rule.IsTombstone() {
				continue
			}
			if rule.Condition.Table != "" && !domain.IsModifierTableKey(rule.Condition.Table) {
				add(SeverityError, "unknown_condition_table", string(key), "rule %q references unknown table %q", rule.RuleID, rule.Condition.Table)
			}
			for _, rowID := range rule.TargetRowIDs {
				if !universe[rowID] {
					add(SeverityError, "unknown_target_row", string(key), "rule %q targets unknown row %q", rule.RuleID, rowID)
				}
			}
		}
	}

	for _, rule := range doc.Rules {
		if rule.IsTombstone() {
			continue
		}
		for _, tableName := range rule.Tables {
			if !domain.IsModifierTableKey(tableName) {
				add(SeverityError, "unknown_rule_table", "", "global rule %q references unknown table %q", rule.RuleID, tableName)
			}
		}
		for _, cond := range rule.Conditions {
			if cond.Table != "" && !domain.IsModifierTableKey(cond.Table) {
				add(SeverityError, "unknown_condition_table", "", "global rule %q references unknown table %q", rule.RuleID, cond.Table)
			}
		}
	}

	return messages
}
