// Package confighash 规则内容哈希与稳定序列化
//
// 规则ID由规则内容派生：剥离瞬态字段（以 _ 开头）与 rule_id 自身后，
// 深度排序对象键、排序纯标量数组，再对规范串做 SHA-256 截断。
// 两条只有字段顺序 / rule_id / 瞬态字段不同的规则得到相同ID；
// 任何语义字段不同则ID不同（哈希碰撞按密码学上可忽略处理，不做防御）。
package confighash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TransientFieldPrefix 瞬态字段前缀：该前缀开头的键不参与内容哈希
const TransientFieldPrefix = "_"

// RuleIDField 规则自身的ID键，同样不参与哈希（身份不能影响自己的哈希）
const RuleIDField = "rule_id"

// RuleIDLength 生成ID的十六进制长度
const RuleIDLength = 16

// Canonicalize 生成规则的规范序列化串
// 任何可 JSON 化的规则结构均可传入（LocalRule / GlobalRule / map）。
func Canonicalize(rule any) (string, error) {
	b, err := json.Marshal(rule)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", fmt.Errorf("failed to reparse rule: %w", err)
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, stripTransient(generic)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// GenerateRuleID 生成内容派生的规则ID（SHA-256 前 16 个十六进制字符）
func GenerateRuleID(rule any) (string, error) {
	canonical, err := Canonicalize(rule)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:RuleIDLength], nil
}

// stripTransient 深度剥离瞬态键与 rule_id
func stripTransient(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if strings.HasPrefix(k, TransientFieldPrefix) || k == RuleIDField {
				continue
			}
			out[k] = stripTransient(child)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, child := range val {
			out = append(out, stripTransient(child))
		}
		return out
	default:
		return v
	}
}

// writeCanonical 确定性序列化：对象键字典序，纯标量数组排序后输出
// 含结构元素的数组保持作者顺序（该顺序可能有语义）。
func writeCanonical(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := writeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	case []any:
		items := make([]string, 0, len(val))
		allPrimitive := true
		for _, child := range val {
			switch child.(type) {
			case map[string]any, []any:
				allPrimitive = false
			}
		}
		for _, child := range val {
			var inner strings.Builder
			if err := writeCanonical(&inner, child); err != nil {
				return err
			}
			items = append(items, inner.String())
		}
		if allPrimitive {
			sort.Strings(items)
		}
		sb.WriteByte('[')
		sb.WriteString(strings.Join(items, ","))
		sb.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(b)
		return nil
	}
}

// MarshalSorted 递归按键排序的 JSON 序列化（导出/比对用，不剥离任何字段）
func MarshalSorted(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("failed to reparse value: %w", err)
	}
	var sb strings.Builder
	if err := writeSorted(&sb, generic); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// writeSorted 与 writeCanonical 类似，但数组一律保持原顺序
func writeSorted(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := writeSorted(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	case []any:
		sb.WriteByte('[')
		for i, child := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeSorted(sb, child); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		sb.Write(b)
		return nil
	}
}
