package validation

import (
	"fmt"

	"liftwise-config/internal/domain"
)

// ValidateSemantic 语义一致性校验（自包含，不依赖外部数据）
// 捕获结构上合法但内部不自洽的状态。
func (v *Validator) ValidateSemantic(doc *domain.ConfigDocument) []Message {
	var messages []Message
	add := func(severity, code, table, format string, args ...any) {
		messages = append(messages, Message{
			Severity: severity, Layer: LayerSemantic, Code: code, Table: table,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for key, table := range doc.Tables {
		if table == nil {
			continue
		}

		allowed := map[string]bool{}
		for _, rowID := range table.AllowedRowIDs {
			if allowed[rowID] {
				add(SeverityError, "duplicate_allowed_row", string(key), "row %q appears more than once in allowed_row_ids", rowID)
			}
			allowed[rowID] = true
		}

		// 默认选项必须在允许行之内
		if def := table.DefaultRowID.Value(); def != nil && len(table.AllowedRowIDs) > 0 && !allowed[*def] {
			add(SeverityError, "default_not_allowed", string(key), "default row %q is not in allowed_row_ids", *def)
		}

		if !table.Applicability {
			// 不适用的表不该携带内容（不致命：编辑器可能保留了历史内容）
			if len(table.AllowedRowIDs) > 0 || table.DefaultRowID.Value() != nil || len(table.LocalRules) > 0 {
				add(SeverityWarning, "inapplicable_with_content", string(key), "table is not applicable but carries rows, default or rules")
			}
		} else if len(table.AllowedRowIDs) == 0 {
			add(SeverityWarning, "applicable_without_rows", string(key), "table is applicable but allows no rows")
		}

		ruleIDs := map[string]bool{}
		for _, rule := range table.LocalRules {
			if rule.RuleID == "" {
				continue
			}
			if ruleIDs[rule.RuleID] {
				add(SeverityError, "duplicate_rule_id", string(key), "local rule id %q appears more than once", rule.RuleID)
			}
			ruleIDs[rule.RuleID] = true
		}
	}

	globalIDs := map[string]bool{}
	for _, rule := range doc.Rules {
		if rule.RuleID != "" {
			if globalIDs[rule.RuleID] {
				add(SeverityError, "duplicate_rule_id", "", "global rule id %q appears more than once", rule.RuleID)
			}
			globalIDs[rule.RuleID] = true
		}
		if rule.IsTombstone() {
			continue
		}
		for _, tableName := range rule.Tables {
			if table, ok := doc.Tables[domain.TableKey(tableName)]; ok && table != nil && !table.Applicability {
				add(SeverityWarning, "rule_on_inapplicable_table", tableName, "global rule %q names table %q which is marked not applicable", rule.RuleID, tableName)
			}
		}
	}

	return messages
}

// ValidateNoopCoverage 补充语义检查："未指定"行可达性
// 表适用且其行全集中存在约定的 no-op 行时，allowed_row_ids 必须包含它——
// 编辑器必须始终能选择"未指定"。需要行全集，因此吃 Context；按语义层上报。
func (v *Validator) ValidateNoopCoverage(doc *domain.ConfigDocument, ctx *Context) []Message {
	var messages []Message
	if ctx == nil {
		return messages
	}
	for key, table := range doc.Tables {
		if table == nil || !table.Applicability || len(table.AllowedRowIDs) == 0 {
			continue
		}
		if !ctx.TableRows[key][domain.NoopRowID] {
			continue
		}
		found := false
		for _, rowID := range table.AllowedRowIDs {
			if rowID == domain.NoopRowID {
				found = true
				break
			}
		}
		if !found {
			messages = append(messages, Message{
				Severity: SeverityWarning, Layer: LayerSemantic, Code: "noop_row_not_allowed", Table: string(key),
				Message: fmt.Sprintf("table %q has a %q row but allowed_row_ids does not include it", key, domain.NoopRowID),
			})
		}
	}
	return messages
}
