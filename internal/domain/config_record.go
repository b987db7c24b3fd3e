package domain

import (
	"encoding/json"
	"time"
)

// 作用域类型
const (
	ScopeTypeMovement      = "movement"       // 单个动作
	ScopeTypeMovementGroup = "movement_group" // 动作组
)

// 生命周期状态
const (
	StatusDraft  = "draft"
	StatusActive = "active"
)

// 校验结果缓存状态（validation_status 列）
const (
	ValidationStatusUnknown  = "unknown"
	ValidationStatusValid    = "valid"
	ValidationStatusWarnings = "warnings"
	ValidationStatusErrors   = "errors"
)

// 当前文档结构版本
const CurrentSchemaVersion = 1

// ConfigRecord 配置行领域模型（对应 movement_configs 表）
// 包一层生命周期元数据的配置文档快照：
//   - 每个作用域 (scope_type, scope_id) 任意时刻最多一行 status='active'
//   - config_version 在作用域内单调递增且唯一
//   - 删除只做软删（is_deleted），行不物理移除
type ConfigRecord struct {
	// 主键
	ConfigID string `json:"config_id" db:"config_id"` // UUID, PRIMARY KEY

	// 作用域
	ScopeType string `json:"scope_type" db:"scope_type"` // VARCHAR(20), NOT NULL, 'movement' | 'movement_group'
	ScopeID   string `json:"scope_id" db:"scope_id"`     // VARCHAR(64), NOT NULL

	// 生命周期
	Status        string `json:"status" db:"status"`                 // VARCHAR(10), NOT NULL, 'draft' | 'active'
	SchemaVersion int    `json:"schema_version" db:"schema_version"` // INTEGER, NOT NULL
	ConfigVersion int    `json:"config_version" db:"config_version"` // INTEGER, NOT NULL - 作用域内单调、唯一

	// 配置文档快照（JSONB）
	ConfigDoc json.RawMessage `json:"config_doc" db:"config_doc"` // JSONB, NOT NULL

	// 编辑说明
	Notes string `json:"notes" db:"notes"` // TEXT

	// 最近一次校验结果缓存（不参与任何门控，仅供编辑界面展示）
	ValidationStatus  string          `json:"validation_status" db:"validation_status"`             // VARCHAR(10), 'unknown'|'valid'|'warnings'|'errors'
	ValidationSummary json.RawMessage `json:"validation_summary,omitempty" db:"validation_summary"` // JSONB, nullable

	// 软删标记
	IsDeleted bool `json:"is_deleted" db:"is_deleted"` // BOOLEAN, NOT NULL, DEFAULT false

	// 时间戳
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`               // TIMESTAMPTZ, NOT NULL
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`               // TIMESTAMPTZ, NOT NULL
	PublishedAt *time.Time `json:"published_at,omitempty" db:"published_at"` // TIMESTAMPTZ, nullable - 最近一次激活时间

	// 作者
	CreatedBy string `json:"created_by" db:"created_by"` // VARCHAR(64)
	UpdatedBy string `json:"updated_by" db:"updated_by"` // VARCHAR(64)
}

// Document 解析配置行携带的文档
func (c *ConfigRecord) Document() (*ConfigDocument, error) {
	return ParseConfigDocument(c.ConfigDoc)
}

// IsActive 该行当前是否为激活状态
func (c *ConfigRecord) IsActive() bool { return c.Status == StatusActive }
