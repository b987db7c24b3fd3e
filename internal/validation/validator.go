// Package validation 配置文档三层校验
//
// 三层相互独立，可单独运行；完整流水线在结构层报错后短路
// （文档形状不成立时，引用层与语义层的前提不存在）。
// 校验从不抛错：总是返回结构化结果，由调用方呈现给编辑器。
package validation

import (
	"encoding/json"

	"liftwise-config/internal/domain"

	"go.uber.org/zap"
)

// 校验层
const (
	LayerStructural  = "structural"
	LayerReferential = "referential"
	LayerSemantic    = "semantic"
)

// 严重级别
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Message 单条校验消息
type Message struct {
	Severity string `json:"severity"`
	Layer    string `json:"layer"`
	Code     string `json:"code"`
	Table    string `json:"table,omitempty"`
	Message  string `json:"message"`
}

// Result 校验结果聚合
// CanActivate: 无 error 即可激活；Valid 还要求无 warning。
type Result struct {
	Errors      []Message `json:"errors"`
	Warnings    []Message `json:"warnings"`
	Info        []Message `json:"info"`
	Valid       bool      `json:"valid"`
	CanActivate bool      `json:"can_activate"`
}

// Status 校验结果对应的缓存状态（写入 validation_status 列）
func (r *Result) Status() string {
	switch {
	case len(r.Errors) > 0:
		return domain.ValidationStatusErrors
	case len(r.Warnings) > 0:
		return domain.ValidationStatusWarnings
	default:
		return domain.ValidationStatusValid
	}
}

// Summary 序列化为 JSONB 缓存
func (r *Result) Summary() json.RawMessage {
	b, err := json.Marshal(r)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func newResult(messages []Message) *Result {
	res := &Result{Errors: []Message{}, Warnings: []Message{}, Info: []Message{}}
	for _, m := range messages {
		switch m.Severity {
		case SeverityError:
			res.Errors = append(res.Errors, m)
		case SeverityWarning:
			res.Warnings = append(res.Warnings, m)
		default:
			res.Info = append(res.Info, m)
		}
	}
	res.CanActivate = len(res.Errors) == 0
	res.Valid = res.CanActivate && len(res.Warnings) == 0
	return res
}

// Context 引用校验所需的外部上下文
// 由调用方（服务层）从 movements / modifier_rows 存储构建。
type Context struct {
	MovementIDs map[string]bool                     // 有效动作ID
	GroupIDs    map[string]bool                     // 有效组ID（由动作父子关系推导）
	TableRows   map[domain.TableKey]map[string]bool // 每个修饰表的有效行ID全集
}

// Validator 配置文档校验器
type Validator struct {
	logger *zap.Logger
}

// NewValidator 创建校验器
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate 运行完整校验流水线
// 结构层有 error 时短路，跳过引用层与语义层。
func (v *Validator) Validate(scopeType, scopeID string, raw json.RawMessage, ctx *Context) *Result {
	messages := v.ValidateStructural(raw)
	for _, m := range messages {
		if m.Severity == SeverityError {
			return newResult(messages)
		}
	}

	doc, err := domain.ParseConfigDocument(raw)
	if err != nil {
		// 结构层已放行却解析失败：按结构错误上报，而不是抛出
		messages = append(messages, Message{
			Severity: SeverityError, Layer: LayerStructural, Code: "parse_failed",
			Message: err.Error(),
		})
		return newResult(messages)
	}

	messages = append(messages, v.ValidateReferential(scopeType, scopeID, doc, ctx)...)
	messages = append(messages, v.ValidateSemantic(doc)...)
	messages = append(messages, v.ValidateNoopCoverage(doc, ctx)...)
	return newResult(messages)
}
