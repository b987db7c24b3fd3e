package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/store"
	"liftwise-config/internal/validation"

	"go.uber.org/zap"
)

// ErrActiveNotEditable 激活行不允许直接编辑（先克隆为草稿）
var ErrActiveNotEditable = errors.New("active config cannot be edited directly; clone it to a draft first")

// ConfigService 配置生命周期服务
// 所有涉及版本号或激活状态的写操作都在单个事务内、
// 按作用域咨询锁串行执行；锁不跨请求持有。
type ConfigService struct {
	configs   repository.ConfigsRepository
	movements repository.MovementsRepository
	modifiers repository.ModifiersRepository
	validator *validation.Validator
	kv        store.KV // 可为 nil（无缓存）
	logger    *zap.Logger
}

// NewConfigService 创建配置生命周期服务
func NewConfigService(
	configs repository.ConfigsRepository,
	movements repository.MovementsRepository,
	modifiers repository.ModifiersRepository,
	validator *validation.Validator,
	kv store.KV,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{
		configs:   configs,
		movements: movements,
		modifiers: modifiers,
		validator: validator,
		kv:        kv,
		logger:    logger,
	}
}

// ListConfigsRequest 配置行列表查询请求
type ListConfigsRequest struct {
	ScopeType      string
	ScopeID        string
	Status         string
	IncludeDeleted bool
	Page           int
	Size           int
}

// ListConfigsResponse 配置行列表查询响应
type ListConfigsResponse struct {
	Items []*domain.ConfigRecord `json:"items"`
	Total int                    `json:"total"`
}

// ListConfigs 查询配置行列表
func (s *ConfigService) ListConfigs(ctx context.Context, req ListConfigsRequest) (*ListConfigsResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 20
	}
	items, total, err := s.configs.ListConfigs(ctx, repository.ConfigFilters{
		ScopeType:      req.ScopeType,
		ScopeID:        req.ScopeID,
		Status:         req.Status,
		IncludeDeleted: req.IncludeDeleted,
	}, req.Page, req.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	if items == nil {
		items = []*domain.ConfigRecord{}
	}
	return &ListConfigsResponse{Items: items, Total: total}, nil
}

// GetConfig 按ID读取配置行
func (s *ConfigService) GetConfig(ctx context.Context, configID string) (*domain.ConfigRecord, error) {
	return s.configs.GetConfig(ctx, configID)
}

// CreateConfigRequest 创建配置请求
type CreateConfigRequest struct {
	ScopeType string
	ScopeID   string
	Document  json.RawMessage
	Notes     string
	Author    string
}

// CreateConfig 创建草稿配置
// 锁内计算 next_version = max(作用域现有版本) + 1 后插入。
// 草稿保存永远成功，不做校验门控（草稿允许故意不完整）。
func (s *ConfigService) CreateConfig(ctx context.Context, req CreateConfigRequest) (*domain.ConfigRecord, error) {
	if req.ScopeType != domain.ScopeTypeMovement && req.ScopeType != domain.ScopeTypeMovementGroup {
		return nil, fmt.Errorf("unknown scope_type %q", req.ScopeType)
	}
	if req.ScopeID == "" {
		return nil, fmt.Errorf("scope_id is required")
	}
	doc := req.Document
	if len(doc) == 0 {
		b, _ := json.Marshal(domain.EmptyConfigDocument())
		doc = b
	}

	rec := &domain.ConfigRecord{
		ScopeType:        req.ScopeType,
		ScopeID:          req.ScopeID,
		Status:           domain.StatusDraft,
		SchemaVersion:    domain.CurrentSchemaVersion,
		ConfigDoc:        doc,
		Notes:            req.Notes,
		ValidationStatus: domain.ValidationStatusUnknown,
		CreatedBy:        req.Author,
		UpdatedBy:        req.Author,
	}
	err := s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		if err := tx.LockScope(ctx, req.ScopeType, req.ScopeID); err != nil {
			return err
		}
		max, err := tx.MaxConfigVersion(ctx, req.ScopeType, req.ScopeID)
		if err != nil {
			return err
		}
		rec.ConfigVersion = max + 1
		_, err = tx.InsertConfig(ctx, rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	s.logger.Info("config created",
		zap.String("config_id", rec.ConfigID),
		zap.String("scope_type", req.ScopeType),
		zap.String("scope_id", req.ScopeID),
		zap.Int("config_version", rec.ConfigVersion))
	return s.configs.GetConfig(ctx, rec.ConfigID)
}

// UpdateConfigRequest 更新配置请求
// Force 仅供 delta 同步维护路径使用；交互编辑必须走克隆。
type UpdateConfigRequest struct {
	ConfigID string
	Document json.RawMessage // nil 表示不改文档
	Notes    *string         // nil 表示不改说明
	Force    bool
	Author   string
}

// UpdateConfig 更新配置行
// 激活行未带 force 时拒绝（结构化错误，调用方可选择克隆后编辑）。
func (s *ConfigService) UpdateConfig(ctx context.Context, req UpdateConfigRequest) (*domain.ConfigRecord, error) {
	var updated *domain.ConfigRecord
	err := s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		rec, err := tx.GetConfig(ctx, req.ConfigID)
		if err != nil {
			return err
		}
		if rec.IsDeleted {
			return repository.ErrConfigNotFound
		}
		if rec.IsActive() && !req.Force {
			return ErrActiveNotEditable
		}
		if req.Document != nil {
			rec.ConfigDoc = req.Document
			// 文档变了，旧的校验缓存不再可信
			rec.ValidationStatus = domain.ValidationStatusUnknown
			rec.ValidationSummary = nil
		}
		if req.Notes != nil {
			rec.Notes = *req.Notes
		}
		if req.Author != "" {
			rec.UpdatedBy = req.Author
		}
		if err := tx.UpdateConfig(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated.IsActive() {
		s.invalidateResolved(ctx)
	}
	return s.configs.GetConfig(ctx, req.ConfigID)
}

// ValidateConfig 运行完整校验并缓存结果摘要
// 校验从不失败成 error：无效文档也返回结构化结果。
func (s *ConfigService) ValidateConfig(ctx context.Context, configID string) (*validation.Result, error) {
	rec, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	vctx, err := s.buildValidationContext(ctx)
	if err != nil {
		return nil, err
	}
	result := s.validator.Validate(rec.ScopeType, rec.ScopeID, rec.ConfigDoc, vctx)
	if err := s.configs.SetValidationSummary(ctx, configID, result.Status(), result.Summary()); err != nil {
		// 缓存失败不影响校验结果本身
		s.logger.Warn("failed to cache validation summary", zap.String("config_id", configID), zap.Error(err))
	}
	return result, nil
}

// ActivateConfigResponse 激活响应
// 校验不通过时 Rejected=true，状态无任何变化。
// 所有同作用域的其它激活行都会降级为草稿，但只回报一个
// superseded_id（最近更新的那个）；需要完整清单的调用方自行重查。
type ActivateConfigResponse struct {
	Config       *domain.ConfigRecord `json:"config,omitempty"`
	SupersededID *string              `json:"superseded_id,omitempty"`
	Rejected     bool                 `json:"rejected"`
	Validation   *validation.Result   `json:"validation,omitempty"`
}

// ActivateConfig 激活配置：重新校验，锁内降级旧激活行并晋升目标行
func (s *ConfigService) ActivateConfig(ctx context.Context, configID string) (*ActivateConfigResponse, error) {
	rec, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted {
		return nil, repository.ErrConfigNotFound
	}

	vctx, err := s.buildValidationContext(ctx)
	if err != nil {
		return nil, err
	}
	result := s.validator.Validate(rec.ScopeType, rec.ScopeID, rec.ConfigDoc, vctx)
	if !result.CanActivate {
		if err := s.configs.SetValidationSummary(ctx, configID, result.Status(), result.Summary()); err != nil {
			s.logger.Warn("failed to cache validation summary", zap.String("config_id", configID), zap.Error(err))
		}
		return &ActivateConfigResponse{Rejected: true, Validation: result}, nil
	}

	var supersededID *string
	err = s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		if err := tx.LockScope(ctx, rec.ScopeType, rec.ScopeID); err != nil {
			return err
		}
		target, err := tx.GetConfig(ctx, configID)
		if err != nil {
			return err
		}
		if target.IsDeleted {
			return repository.ErrConfigNotFound
		}

		siblings, err := tx.ListScopeConfigs(ctx, target.ScopeType, target.ScopeID, false)
		if err != nil {
			return err
		}
		var superseded *domain.ConfigRecord
		for _, sibling := range siblings {
			if sibling.ConfigID == target.ConfigID || !sibling.IsActive() {
				continue
			}
			sibling.Status = domain.StatusDraft
			if err := tx.UpdateConfig(ctx, sibling); err != nil {
				return err
			}
			if superseded == nil || sibling.UpdatedAt.After(superseded.UpdatedAt) {
				superseded = sibling
			}
		}
		if superseded != nil {
			id := superseded.ConfigID
			supersededID = &id
		}

		max, err := tx.MaxConfigVersion(ctx, target.ScopeType, target.ScopeID)
		if err != nil {
			return err
		}
		now := time.Now()
		target.Status = domain.StatusActive
		target.ConfigVersion = max + 1
		target.PublishedAt = &now
		target.ValidationStatus = domain.ValidationStatusValid
		target.ValidationSummary = result.Summary()
		return tx.UpdateConfig(ctx, target)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to activate config: %w", err)
	}

	s.invalidateResolved(ctx)
	activated, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("config activated",
		zap.String("config_id", configID),
		zap.String("scope_type", activated.ScopeType),
		zap.String("scope_id", activated.ScopeID),
		zap.Int("config_version", activated.ConfigVersion))
	return &ActivateConfigResponse{Config: activated, SupersededID: supersededID}, nil
}

// CloneConfig 克隆配置为新草稿（锁内取下一个版本号）
// 新行的说明前缀记录来源ID。
func (s *ConfigService) CloneConfig(ctx context.Context, configID, author string) (*domain.ConfigRecord, error) {
	src, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if src.IsDeleted {
		return nil, repository.ErrConfigNotFound
	}

	notes := fmt.Sprintf("cloned from %s", src.ConfigID)
	if strings.TrimSpace(src.Notes) != "" {
		notes = notes + "\n" + src.Notes
	}
	clone := &domain.ConfigRecord{
		ScopeType:        src.ScopeType,
		ScopeID:          src.ScopeID,
		Status:           domain.StatusDraft,
		SchemaVersion:    src.SchemaVersion,
		ConfigDoc:        src.ConfigDoc,
		Notes:            notes,
		ValidationStatus: domain.ValidationStatusUnknown,
		CreatedBy:        author,
		UpdatedBy:        author,
	}
	err = s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		if err := tx.LockScope(ctx, src.ScopeType, src.ScopeID); err != nil {
			return err
		}
		max, err := tx.MaxConfigVersion(ctx, src.ScopeType, src.ScopeID)
		if err != nil {
			return err
		}
		clone.ConfigVersion = max + 1
		_, err = tx.InsertConfig(ctx, clone)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clone config: %w", err)
	}
	return s.configs.GetConfig(ctx, clone.ConfigID)
}

// DeleteConfigResponse 软删响应
// 激活行未带 force 时 OK=false 且无任何变化；
// WasActive 告知调用方该作用域已没有激活配置，解析将回退为"无配置"。
type DeleteConfigResponse struct {
	OK        bool `json:"ok"`
	WasActive bool `json:"was_active"`
}

// DeleteConfig 软删配置行（只翻 is_deleted，行不物理移除）
func (s *ConfigService) DeleteConfig(ctx context.Context, configID string, force bool) (*DeleteConfigResponse, error) {
	resp := &DeleteConfigResponse{}
	err := s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		// 锁前读取只用来定位作用域；落锁后重读，写回的必须是锁内快照
		rec, err := tx.GetConfig(ctx, configID)
		if err != nil {
			return err
		}
		if err := tx.LockScope(ctx, rec.ScopeType, rec.ScopeID); err != nil {
			return err
		}
		if rec, err = tx.GetConfig(ctx, configID); err != nil {
			return err
		}
		if rec.IsDeleted {
			return repository.ErrConfigNotFound
		}
		resp.WasActive = rec.IsActive()
		if resp.WasActive && !force {
			// 删掉唯一激活行会让作用域失去激活配置，必须显式 force
			return nil
		}
		rec.IsDeleted = true
		if err := tx.UpdateConfig(ctx, rec); err != nil {
			return err
		}
		resp.OK = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if resp.OK && resp.WasActive {
		s.invalidateResolved(ctx)
	}
	return resp, nil
}

// DeduplicateConfigsResponse 去重维护结果
type DeduplicateConfigsResponse struct {
	ScopesExamined int      `json:"scopes_examined"`
	Demoted        []string `json:"demoted"`    // 被降级为草稿的配置ID
	Renumbered     []string `json:"renumbered"` // 被重新编号的配置ID
}

// DeduplicateConfigs 维护操作：清理多激活与重复版本号
// 单个事务覆盖所有作用域；每个作用域先锁再改。
//   - 同作用域多个激活行：保留最近更新的，其余降级为草稿
//   - 同作用域重复版本号：保留一个（激活行优先），其余重编到下一个可用版本
func (s *ConfigService) DeduplicateConfigs(ctx context.Context) (*DeduplicateConfigsResponse, error) {
	resp := &DeduplicateConfigsResponse{Demoted: []string{}, Renumbered: []string{}}
	err := s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		scopes, err := tx.ListAllScopes(ctx)
		if err != nil {
			return err
		}
		resp.ScopesExamined = len(scopes)

		for _, scope := range scopes {
			if err := tx.LockScope(ctx, scope.ScopeType, scope.ScopeID); err != nil {
				return err
			}
			records, err := tx.ListScopeConfigs(ctx, scope.ScopeType, scope.ScopeID, false)
			if err != nil {
				return err
			}

			// 多激活行：保留最近更新的
			var keeper *domain.ConfigRecord
			for _, rec := range records {
				if rec.IsActive() && (keeper == nil || rec.UpdatedAt.After(keeper.UpdatedAt)) {
					keeper = rec
				}
			}
			for _, rec := range records {
				if rec.IsActive() && keeper != nil && rec.ConfigID != keeper.ConfigID {
					rec.Status = domain.StatusDraft
					if err := tx.UpdateConfig(ctx, rec); err != nil {
						return err
					}
					resp.Demoted = append(resp.Demoted, rec.ConfigID)
				}
			}

			// 重复版本号：激活行优先留下，其余重编
			// 版本唯一约束覆盖软删行，重编基数必须取含软删在内的最大值
			maxVersion, err := tx.MaxConfigVersion(ctx, scope.ScopeType, scope.ScopeID)
			if err != nil {
				return err
			}
			byVersion := map[int][]*domain.ConfigRecord{}
			for _, rec := range records {
				byVersion[rec.ConfigVersion] = append(byVersion[rec.ConfigVersion], rec)
			}
			for _, group := range byVersion {
				if len(group) <= 1 {
					continue
				}
				keepIdx := 0
				for i, rec := range group {
					if rec.IsActive() {
						keepIdx = i
						break
					}
				}
				for i, rec := range group {
					if i == keepIdx {
						continue
					}
					maxVersion++
					rec.ConfigVersion = maxVersion
					if err := tx.UpdateConfig(ctx, rec); err != nil {
						return err
					}
					resp.Renumbered = append(resp.Renumbered, rec.ConfigID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deduplicate configs: %w", err)
	}
	if len(resp.Demoted) > 0 {
		s.invalidateResolved(ctx)
	}
	return resp, nil
}

// EnsureDraftForMovement 保证动作至少有一行配置
// 没有任何行时创建空白占位草稿，让编辑界面对每个动作都有东西可显示。
// 返回 (记录, 是否新建)。
func (s *ConfigService) EnsureDraftForMovement(ctx context.Context, movementID string) (*domain.ConfigRecord, bool, error) {
	if _, err := s.movements.GetMovement(ctx, movementID); err != nil {
		return nil, false, err
	}

	created := false
	rec := &domain.ConfigRecord{
		ScopeType:        domain.ScopeTypeMovement,
		ScopeID:          movementID,
		Status:           domain.StatusDraft,
		SchemaVersion:    domain.CurrentSchemaVersion,
		Notes:            "auto-created placeholder draft",
		ValidationStatus: domain.ValidationStatusUnknown,
	}
	b, _ := json.Marshal(domain.EmptyConfigDocument())
	rec.ConfigDoc = b

	err := s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		if err := tx.LockScope(ctx, domain.ScopeTypeMovement, movementID); err != nil {
			return err
		}
		existing, err := tx.ListScopeConfigs(ctx, domain.ScopeTypeMovement, movementID, false)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			rec = existing[len(existing)-1]
			return nil
		}
		max, err := tx.MaxConfigVersion(ctx, domain.ScopeTypeMovement, movementID)
		if err != nil {
			return err
		}
		rec.ConfigVersion = max + 1
		if _, err := tx.InsertConfig(ctx, rec); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure draft: %w", err)
	}
	return rec, created, nil
}

// EnsureDraftsResponse 批量占位草稿结果
type EnsureDraftsResponse struct {
	MovementsExamined int      `json:"movements_examined"`
	Created           []string `json:"created"` // 新建草稿的动作ID
}

// EnsureDraftsForAllMovements 为所有启用动作补齐占位草稿
func (s *ConfigService) EnsureDraftsForAllMovements(ctx context.Context) (*EnsureDraftsResponse, error) {
	movements, err := s.movements.ListMovements(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	resp := &EnsureDraftsResponse{MovementsExamined: len(movements), Created: []string{}}
	for _, m := range movements {
		_, created, err := s.EnsureDraftForMovement(ctx, m.MovementID)
		if err != nil {
			// 单个动作失败不中断批量
			s.logger.Warn("ensure draft failed", zap.String("movement_id", m.MovementID), zap.Error(err))
			continue
		}
		if created {
			resp.Created = append(resp.Created, m.MovementID)
		}
	}
	return resp, nil
}

// buildValidationContext 从动作与修饰行存储构建引用校验上下文
func (s *ConfigService) buildValidationContext(ctx context.Context) (*validation.Context, error) {
	movements, err := s.movements.ListMovements(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation context: %w", err)
	}
	vctx := &validation.Context{
		MovementIDs: map[string]bool{},
		GroupIDs:    map[string]bool{},
		TableRows:   map[domain.TableKey]map[string]bool{},
	}
	for _, m := range movements {
		vctx.MovementIDs[m.MovementID] = true
		vctx.GroupIDs[m.GroupID()] = true
	}
	for _, key := range domain.ModifierTableKeys {
		rows, err := s.modifiers.ListRows(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to build validation context for table %q: %w", key, err)
		}
		set := map[string]bool{}
		for _, row := range rows {
			set[row.RowID] = true
		}
		vctx.TableRows[key] = set
	}
	return vctx, nil
}

// invalidateResolved 清掉解析结果缓存
// 组配置影响哪些动作无法便宜地反查，整个前缀一起清。
func (s *ConfigService) invalidateResolved(ctx context.Context) {
	if s.kv == nil {
		return
	}
	keys, err := s.kv.ScanKeys(ctx, resolvedCacheKeyPrefix+"*")
	if err != nil {
		s.logger.Warn("failed to scan resolver cache keys", zap.Error(err))
		return
	}
	if err := s.kv.Del(ctx, keys...); err != nil {
		s.logger.Warn("failed to invalidate resolver cache", zap.Error(err))
	}
}
