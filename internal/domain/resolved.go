package domain

// 解析模式
const (
	ResolveModeActiveOnly   = "active_only"   // 只读取激活配置
	ResolveModeDraftPreview = "draft_preview" // 允许草稿（有激活优先激活，否则取最近更新的草稿）
)

// 合并来源（provenance）
const (
	SourceGroup  = "group"  // 仅来自组配置
	SourceMotion = "motion" // 仅来自动作覆盖
	SourceMerged = "merged" // 两级合并
)

// 诊断级别
const (
	DiagnosticError   = "error"
	DiagnosticWarning = "warning"
	DiagnosticInfo    = "info"
)

// Diagnostic 解析过程诊断信息（自由列表，随结果返回，不阻断解析）
type Diagnostic struct {
	Severity string `json:"severity"` // error | warning | info
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// EffectiveTable 单个修饰表的有效配置（组+动作合并结果）
type EffectiveTable struct {
	TableKey        TableKey    `json:"table_key"`
	Source          string      `json:"source"` // group | motion | merged
	Applicability   bool        `json:"applicability"`
	AllowedRowIDs   []string    `json:"allowed_row_ids"`
	DefaultRowID    *string     `json:"default_row_id"` // nil 表示无默认
	NullNoopAllowed bool        `json:"null_noop_allowed"`
	LocalRules      []LocalRule `json:"local_rules,omitempty"` // 墓碑已剔除
}

// ResolvedConfig 单个动作的有效配置（只读、不落库）
// 评分引擎通过 EffectiveTables 得知哪些修饰行可选、默认选项是什么；
// 数值增量由评分引擎自行读取修饰行的 muscle_deltas，本结构不含分数。
type ResolvedConfig struct {
	MovementID      string                       `json:"movement_id"`
	GroupID         string                       `json:"group_id"`
	Mode            string                       `json:"mode"`
	GroupConfigID   *string                      `json:"group_config_id,omitempty"`
	MotionConfigID  *string                      `json:"motion_config_id,omitempty"`
	EffectiveTables map[TableKey]*EffectiveTable `json:"effective_tables"`
	GlobalRules     []GlobalRule                 `json:"global_rules,omitempty"` // 墓碑已剔除
	Diagnostics     []Diagnostic                 `json:"diagnostics,omitempty"`
}

// AddDiagnostic 追加一条诊断
func (r *ResolvedConfig) AddDiagnostic(severity, code, message string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: severity, Code: code, Message: message})
}
