package repository

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"

	"liftwise-config/internal/domain"
)

// ErrConfigNotFound 配置行不存在
var ErrConfigNotFound = errors.New("config not found")

// ConfigFilters 配置行查询过滤器
type ConfigFilters struct {
	ScopeType      string // 作用域类型（可空）
	ScopeID        string // 作用域ID（可空）
	Status         string // 生命周期状态（可空）
	IncludeDeleted bool   // 是否包含软删行
}

// ScopeRef 一个作用域 (scope_type, scope_id)
type ScopeRef struct {
	ScopeType string
	ScopeID   string
}

// ScopeLockKey 作用域的咨询锁键
// 同一作用域永远得到同一个键（确定性是唯一契约）；
// 用标准 FNV-1a 64 位哈希，避免自制移位循环的跨平台溢出差异。
func ScopeLockKey(scopeType, scopeID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(scopeType))
	h.Write([]byte{'|'})
	h.Write([]byte(scopeID))
	return int64(h.Sum64())
}

// ConfigsTx 单个事务内可用的配置行操作
// LockScope 之后的读-改-写在该作用域上是原子的；事务内任何失败整体回滚。
type ConfigsTx interface {
	// LockScope 对作用域加咨询锁（事务结束自动释放）
	LockScope(ctx context.Context, scopeType, scopeID string) error

	// GetConfig 按ID读取配置行
	GetConfig(ctx context.Context, configID string) (*domain.ConfigRecord, error)

	// ListScopeConfigs 列出作用域内全部配置行
	ListScopeConfigs(ctx context.Context, scopeType, scopeID string, includeDeleted bool) ([]*domain.ConfigRecord, error)

	// ListAllScopes 列出存在配置行的全部作用域（维护操作用）
	ListAllScopes(ctx context.Context) ([]ScopeRef, error)

	// MaxConfigVersion 作用域内现有最大版本号（无行时为 0）
	MaxConfigVersion(ctx context.Context, scopeType, scopeID string) (int, error)

	// InsertConfig 插入新配置行，返回ID
	InsertConfig(ctx context.Context, rec *domain.ConfigRecord) (string, error)

	// UpdateConfig 整行更新（按 config_id）
	UpdateConfig(ctx context.Context, rec *domain.ConfigRecord) error
}

// ConfigsRepository 配置行Repository接口
type ConfigsRepository interface {
	// GetConfig 按ID读取配置行（无事务）
	GetConfig(ctx context.Context, configID string) (*domain.ConfigRecord, error)

	// ListConfigs 过滤查询（支持分页）
	ListConfigs(ctx context.Context, filters ConfigFilters, page, size int) ([]*domain.ConfigRecord, int, error)

	// SetValidationSummary 写入校验结果缓存（不门控任何操作）
	SetValidationSummary(ctx context.Context, configID, status string, summary json.RawMessage) error

	// WithTx 在单个事务中执行 fn；fn 返回错误则整体回滚
	WithTx(ctx context.Context, fn func(tx ConfigsTx) error) error
}
