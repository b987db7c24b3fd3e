package repository

import (
	"context"
	"errors"

	"liftwise-config/internal/domain"
)

// ErrMovementNotFound 动作不存在
var ErrMovementNotFound = errors.New("movement not found")

// MovementsRepository 动作Repository接口（只读：动作目录由别的服务维护）
type MovementsRepository interface {
	// GetMovement 按ID读取动作
	GetMovement(ctx context.Context, movementID string) (*domain.Movement, error)

	// ListMovements 列出动作（activeOnly 为 true 时只含启用的）
	ListMovements(ctx context.Context, activeOnly bool) ([]*domain.Movement, error)
}

// ModifiersRepository 修饰行Repository接口（只读）
type ModifiersRepository interface {
	// ListRows 列出某修饰表的全部行
	ListRows(ctx context.Context, tableKey domain.TableKey) ([]*domain.ModifierRow, error)

	// RowsForMovement 扫描全部修饰表，返回增量映射中含有该动作的行
	RowsForMovement(ctx context.Context, movementID string) ([]*domain.ModifierRow, error)

	// DeltaMovementIDs 全部修饰行增量映射中出现过的动作ID集合
	DeltaMovementIDs(ctx context.Context) ([]string, error)
}
