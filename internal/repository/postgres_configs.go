package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"liftwise-config/internal/domain"
)

// PostgresConfigsRepository 配置行Repository实现
type PostgresConfigsRepository struct {
	db *sql.DB
}

// NewPostgresConfigsRepository 创建配置行Repository
func NewPostgresConfigsRepository(db *sql.DB) *PostgresConfigsRepository {
	return &PostgresConfigsRepository{db: db}
}

// 确保实现了接口
var _ ConfigsRepository = (*PostgresConfigsRepository)(nil)

const configColumns = `
	config_id::text,
	scope_type,
	scope_id,
	status,
	schema_version,
	config_version,
	config_doc,
	notes,
	validation_status,
	validation_summary,
	is_deleted,
	created_at,
	updated_at,
	published_at,
	created_by,
	updated_by
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*domain.ConfigRecord, error) {
	var rec domain.ConfigRecord
	var configDoc sql.NullString
	var notes sql.NullString
	var validationStatus sql.NullString
	var validationSummary sql.NullString
	var publishedAt sql.NullTime
	var createdBy sql.NullString
	var updatedBy sql.NullString

	err := row.Scan(
		&rec.ConfigID,
		&rec.ScopeType,
		&rec.ScopeID,
		&rec.Status,
		&rec.SchemaVersion,
		&rec.ConfigVersion,
		&configDoc,
		&notes,
		&validationStatus,
		&validationSummary,
		&rec.IsDeleted,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&publishedAt,
		&createdBy,
		&updatedBy,
	)
	if err != nil {
		return nil, err
	}

	if configDoc.Valid {
		rec.ConfigDoc = json.RawMessage(configDoc.String)
	}
	if notes.Valid {
		rec.Notes = notes.String
	}
	if validationStatus.Valid {
		rec.ValidationStatus = validationStatus.String
	} else {
		rec.ValidationStatus = domain.ValidationStatusUnknown
	}
	if validationSummary.Valid {
		rec.ValidationSummary = json.RawMessage(validationSummary.String)
	}
	if publishedAt.Valid {
		rec.PublishedAt = &publishedAt.Time
	}
	if createdBy.Valid {
		rec.CreatedBy = createdBy.String
	}
	if updatedBy.Valid {
		rec.UpdatedBy = updatedBy.String
	}
	return &rec, nil
}

// GetConfig 按ID读取配置行
func (r *PostgresConfigsRepository) GetConfig(ctx context.Context, configID string) (*domain.ConfigRecord, error) {
	if configID == "" {
		return nil, ErrConfigNotFound
	}
	query := `SELECT ` + configColumns + ` FROM movement_configs WHERE config_id = $1`
	rec, err := scanConfig(r.db.QueryRowContext(ctx, query, configID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return rec, nil
}

// ListConfigs 过滤查询（支持分页）
func (r *PostgresConfigsRepository) ListConfigs(ctx context.Context, filters ConfigFilters, page, size int) ([]*domain.ConfigRecord, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1

	if filters.ScopeType != "" {
		where = append(where, fmt.Sprintf("scope_type = $%d", argN))
		args = append(args, filters.ScopeType)
		argN++
	}
	if filters.ScopeID != "" {
		where = append(where, fmt.Sprintf("scope_id = $%d", argN))
		args = append(args, filters.ScopeID)
		argN++
	}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filters.Status)
		argN++
	}
	if !filters.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}

	queryCount := `SELECT COUNT(*) FROM movement_configs WHERE ` + strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count configs: %w", err)
	}

	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	argsList := append(args, size, offset)
	query := `SELECT ` + configColumns + `
		FROM movement_configs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY scope_type, scope_id, config_version DESC
		LIMIT $` + fmt.Sprintf("%d", argN) + ` OFFSET $` + fmt.Sprintf("%d", argN+1)

	rows, err := r.db.QueryContext(ctx, query, argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConfigRecord
	for rows.Next() {
		rec, err := scanConfig(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan config: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate configs: %w", err)
	}
	return records, total, nil
}

// SetValidationSummary 写入校验结果缓存
func (r *PostgresConfigsRepository) SetValidationSummary(ctx context.Context, configID, status string, summary json.RawMessage) error {
	query := `
		UPDATE movement_configs
		SET validation_status = $2,
			validation_summary = $3::jsonb,
			updated_at = NOW()
		WHERE config_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, configID, status, string(summary))
	if err != nil {
		return fmt.Errorf("failed to set validation summary: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConfigNotFound
	}
	return nil
}

// WithTx 在单个事务中执行 fn；fn 返回错误则整体回滚
func (r *PostgresConfigsRepository) WithTx(ctx context.Context, fn func(tx ConfigsTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresConfigsTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresConfigsTx 事务内操作
type postgresConfigsTx struct {
	tx *sql.Tx
}

var _ ConfigsTx = (*postgresConfigsTx)(nil)

// LockScope 对作用域加事务级咨询锁（pg_advisory_xact_lock，事务结束自动释放）
func (t *postgresConfigsTx) LockScope(ctx context.Context, scopeType, scopeID string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ScopeLockKey(scopeType, scopeID)); err != nil {
		return fmt.Errorf("failed to lock scope %s/%s: %w", scopeType, scopeID, err)
	}
	return nil
}

// GetConfig 按ID读取配置行
func (t *postgresConfigsTx) GetConfig(ctx context.Context, configID string) (*domain.ConfigRecord, error) {
	query := `SELECT ` + configColumns + ` FROM movement_configs WHERE config_id = $1`
	rec, err := scanConfig(t.tx.QueryRowContext(ctx, query, configID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	return rec, nil
}

// ListScopeConfigs 列出作用域内全部配置行
func (t *postgresConfigsTx) ListScopeConfigs(ctx context.Context, scopeType, scopeID string, includeDeleted bool) ([]*domain.ConfigRecord, error) {
	query := `SELECT ` + configColumns + `
		FROM movement_configs
		WHERE scope_type = $1 AND scope_id = $2`
	if !includeDeleted {
		query += ` AND is_deleted = false`
	}
	query += ` ORDER BY config_version`

	rows, err := t.tx.QueryContext(ctx, query, scopeType, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scope configs: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConfigRecord
	for rows.Next() {
		rec, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scope configs: %w", err)
	}
	return records, nil
}

// ListAllScopes 列出存在配置行的全部作用域
func (t *postgresConfigsTx) ListAllScopes(ctx context.Context) ([]ScopeRef, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT DISTINCT scope_type, scope_id FROM movement_configs ORDER BY scope_type, scope_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []ScopeRef
	for rows.Next() {
		var s ScopeRef
		if err := rows.Scan(&s.ScopeType, &s.ScopeID); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scopes: %w", err)
	}
	return scopes, nil
}

// MaxConfigVersion 作用域内现有最大版本号
func (t *postgresConfigsTx) MaxConfigVersion(ctx context.Context, scopeType, scopeID string) (int, error) {
	var max int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(config_version), 0) FROM movement_configs WHERE scope_type = $1 AND scope_id = $2`,
		scopeType, scopeID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max config version: %w", err)
	}
	return max, nil
}

// InsertConfig 插入新配置行
func (t *postgresConfigsTx) InsertConfig(ctx context.Context, rec *domain.ConfigRecord) (string, error) {
	if rec.ScopeType == "" || rec.ScopeID == "" {
		return "", fmt.Errorf("scope_type and scope_id are required")
	}
	doc := "{}"
	if len(rec.ConfigDoc) > 0 {
		doc = string(rec.ConfigDoc)
	}
	var summary any
	if len(rec.ValidationSummary) > 0 {
		summary = string(rec.ValidationSummary)
	}
	status := rec.ValidationStatus
	if status == "" {
		status = domain.ValidationStatusUnknown
	}

	query := `
		INSERT INTO movement_configs (
			scope_type, scope_id, status, schema_version, config_version,
			config_doc, notes, validation_status, validation_summary,
			is_deleted, published_at, created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9::jsonb, $10, $11, $12, $13)
		RETURNING config_id::text
	`
	var publishedAt any
	if rec.PublishedAt != nil {
		publishedAt = *rec.PublishedAt
	}

	var configID string
	err := t.tx.QueryRowContext(ctx, query,
		rec.ScopeType, rec.ScopeID, rec.Status, rec.SchemaVersion, rec.ConfigVersion,
		doc, rec.Notes, status, summary,
		rec.IsDeleted, publishedAt, rec.CreatedBy, rec.UpdatedBy,
	).Scan(&configID)
	if err != nil {
		return "", fmt.Errorf("failed to insert config: %w", err)
	}
	rec.ConfigID = configID
	return configID, nil
}

// UpdateConfig 整行更新
func (t *postgresConfigsTx) UpdateConfig(ctx context.Context, rec *domain.ConfigRecord) error {
	if rec.ConfigID == "" {
		return ErrConfigNotFound
	}
	doc := "{}"
	if len(rec.ConfigDoc) > 0 {
		doc = string(rec.ConfigDoc)
	}
	var summary any
	if len(rec.ValidationSummary) > 0 {
		summary = string(rec.ValidationSummary)
	}
	var publishedAt any
	if rec.PublishedAt != nil {
		publishedAt = *rec.PublishedAt
	}

	query := `
		UPDATE movement_configs
		SET status = $2,
			schema_version = $3,
			config_version = $4,
			config_doc = $5::jsonb,
			notes = $6,
			validation_status = $7,
			validation_summary = $8::jsonb,
			is_deleted = $9,
			published_at = $10,
			updated_by = $11,
			updated_at = NOW()
		WHERE config_id = $1
	`
	result, err := t.tx.ExecContext(ctx, query,
		rec.ConfigID, rec.Status, rec.SchemaVersion, rec.ConfigVersion,
		doc, rec.Notes, rec.ValidationStatus, summary,
		rec.IsDeleted, publishedAt, rec.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrConfigNotFound
	}
	return nil
}
