package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"liftwise-config/internal/domain"
)

// PostgresMovementsRepository 动作Repository实现
type PostgresMovementsRepository struct {
	db *sql.DB
}

// NewPostgresMovementsRepository 创建动作Repository
func NewPostgresMovementsRepository(db *sql.DB) *PostgresMovementsRepository {
	return &PostgresMovementsRepository{db: db}
}

// 确保实现了接口
var _ MovementsRepository = (*PostgresMovementsRepository)(nil)

// GetMovement 按ID读取动作
func (r *PostgresMovementsRepository) GetMovement(ctx context.Context, movementID string) (*domain.Movement, error) {
	if movementID == "" {
		return nil, ErrMovementNotFound
	}
	query := `
		SELECT movement_id, parent_id, movement_name, is_active
		FROM movements
		WHERE movement_id = $1
	`
	var m domain.Movement
	var parentID sql.NullString
	err := r.db.QueryRowContext(ctx, query, movementID).Scan(&m.MovementID, &parentID, &m.MovementName, &m.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMovementNotFound
		}
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}
	if parentID.Valid {
		m.ParentID = &parentID.String
	}
	return &m, nil
}

// ListMovements 列出动作
func (r *PostgresMovementsRepository) ListMovements(ctx context.Context, activeOnly bool) ([]*domain.Movement, error) {
	query := `SELECT movement_id, parent_id, movement_name, is_active FROM movements`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY movement_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	var movements []*domain.Movement
	for rows.Next() {
		var m domain.Movement
		var parentID sql.NullString
		if err := rows.Scan(&m.MovementID, &parentID, &m.MovementName, &m.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if parentID.Valid {
			m.ParentID = &parentID.String
		}
		movements = append(movements, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movements: %w", err)
	}
	return movements, nil
}

// PostgresModifiersRepository 修饰行Repository实现
type PostgresModifiersRepository struct {
	db *sql.DB
}

// NewPostgresModifiersRepository 创建修饰行Repository
func NewPostgresModifiersRepository(db *sql.DB) *PostgresModifiersRepository {
	return &PostgresModifiersRepository{db: db}
}

// 确保实现了接口
var _ ModifiersRepository = (*PostgresModifiersRepository)(nil)

func scanModifierRow(row rowScanner) (*domain.ModifierRow, error) {
	var m domain.ModifierRow
	var deltas sql.NullString
	if err := row.Scan(&m.TableKey, &m.RowID, &m.RowName, &m.IsActive, &deltas); err != nil {
		return nil, err
	}
	m.MuscleDeltas = map[string]map[string]float64{}
	if deltas.Valid && deltas.String != "" {
		if err := json.Unmarshal([]byte(deltas.String), &m.MuscleDeltas); err != nil {
			return nil, fmt.Errorf("failed to parse muscle_deltas: %w", err)
		}
	}
	return &m, nil
}

// ListRows 列出某修饰表的全部行
func (r *PostgresModifiersRepository) ListRows(ctx context.Context, tableKey domain.TableKey) ([]*domain.ModifierRow, error) {
	query := `
		SELECT table_key, row_id, row_name, is_active, muscle_deltas
		FROM modifier_rows
		WHERE table_key = $1
		ORDER BY row_id
	`
	rows, err := r.db.QueryContext(ctx, query, string(tableKey))
	if err != nil {
		return nil, fmt.Errorf("failed to list modifier rows: %w", err)
	}
	defer rows.Close()

	var result []*domain.ModifierRow
	for rows.Next() {
		m, err := scanModifierRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modifier row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modifier rows: %w", err)
	}
	return result, nil
}

// RowsForMovement 返回增量映射中含有该动作的行（JSONB 键包含查询）
func (r *PostgresModifiersRepository) RowsForMovement(ctx context.Context, movementID string) ([]*domain.ModifierRow, error) {
	if movementID == "" {
		return nil, nil
	}
	query := `
		SELECT table_key, row_id, row_name, is_active, muscle_deltas
		FROM modifier_rows
		WHERE muscle_deltas ? $1
		ORDER BY table_key, row_id
	`
	rows, err := r.db.QueryContext(ctx, query, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan modifier rows for movement: %w", err)
	}
	defer rows.Close()

	var result []*domain.ModifierRow
	for rows.Next() {
		m, err := scanModifierRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modifier row: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate modifier rows: %w", err)
	}
	return result, nil
}

// DeltaMovementIDs 全部修饰行增量映射中出现过的动作ID集合
func (r *PostgresModifiersRepository) DeltaMovementIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT jsonb_object_keys(muscle_deltas) FROM modifier_rows ORDER BY 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list delta movement ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan movement id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movement ids: %w", err)
	}
	return ids, nil
}
