package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"

	"go.uber.org/zap"
)

// delta 同步结果状态
const (
	SyncStatusCreated = "created" // 无配置，自动建并直接激活
	SyncStatusUpdated = "updated" // 已有激活配置，合并了新行
	SyncStatusSkipped = "skipped" // 无增量数据或无需变更
)

// SyncDeltasResponse 单动作 delta 同步结果
type SyncDeltasResponse struct {
	MovementID string `json:"movement_id"`
	Status     string `json:"status"` // created | updated | skipped
}

// SyncDeltasForMovement 按外部评分数据同步单个动作的配置
// 扫描所有修饰表中增量映射含有该动作的行：
//   - 无行：no-op（skipped）
//   - 作用域已有激活配置：把发现的行并入 allowed_row_ids（必要时新建表项），
//     顺带清掉多余的激活行；没有实际变化则不落库
//   - 作用域无激活配置：自动创建并直接激活（绕过草稿——这条路径是为了
//     让配置跟上外部作者的评分内容，不是为了进编辑流程）
func (s *ConfigService) SyncDeltasForMovement(ctx context.Context, movementID string) (*SyncDeltasResponse, error) {
	if _, err := s.movements.GetMovement(ctx, movementID); err != nil {
		return nil, err
	}

	rows, err := s.modifiers.RowsForMovement(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan modifier rows: %w", err)
	}
	if len(rows) == 0 {
		return &SyncDeltasResponse{MovementID: movementID, Status: SyncStatusSkipped}, nil
	}

	discovered := map[domain.TableKey][]string{}
	for _, row := range rows {
		discovered[row.TableKey] = append(discovered[row.TableKey], row.RowID)
	}
	for key := range discovered {
		sort.Strings(discovered[key])
	}

	resp := &SyncDeltasResponse{MovementID: movementID}
	err = s.configs.WithTx(ctx, func(tx repository.ConfigsTx) error {
		if err := tx.LockScope(ctx, domain.ScopeTypeMovement, movementID); err != nil {
			return err
		}
		records, err := tx.ListScopeConfigs(ctx, domain.ScopeTypeMovement, movementID, false)
		if err != nil {
			return err
		}

		var target *domain.ConfigRecord
		for _, rec := range records {
			if rec.IsActive() && (target == nil || rec.UpdatedAt.After(target.UpdatedAt)) {
				target = rec
			}
		}

		if target == nil {
			// 自动建配置并直接激活
			doc := domain.EmptyConfigDocument()
			for key, rowIDs := range discovered {
				doc.Tables[key] = &domain.TableConfig{
					Applicability:   true,
					AllowedRowIDs:   rowIDs,
					NullNoopAllowed: true,
				}
			}
			b, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("failed to marshal config document: %w", err)
			}
			max, err := tx.MaxConfigVersion(ctx, domain.ScopeTypeMovement, movementID)
			if err != nil {
				return err
			}
			now := time.Now()
			rec := &domain.ConfigRecord{
				ScopeType:        domain.ScopeTypeMovement,
				ScopeID:          movementID,
				Status:           domain.StatusActive,
				SchemaVersion:    domain.CurrentSchemaVersion,
				ConfigVersion:    max + 1,
				ConfigDoc:        b,
				Notes:            "auto-provisioned from modifier delta data",
				ValidationStatus: domain.ValidationStatusUnknown,
				PublishedAt:      &now,
			}
			if _, err := tx.InsertConfig(ctx, rec); err != nil {
				return err
			}
			resp.Status = SyncStatusCreated
			return nil
		}

		// 顺带去重：多余的激活行降级为草稿
		for _, rec := range records {
			if rec.IsActive() && rec.ConfigID != target.ConfigID {
				rec.Status = domain.StatusDraft
				if err := tx.UpdateConfig(ctx, rec); err != nil {
					return err
				}
			}
		}

		doc, err := target.Document()
		if err != nil {
			return fmt.Errorf("config %s: %w", target.ConfigID, err)
		}
		changed := false
		for key, rowIDs := range discovered {
			table := doc.Tables[key]
			if table == nil {
				table = &domain.TableConfig{Applicability: true, NullNoopAllowed: true}
				doc.Tables[key] = table
				changed = true
			}
			for _, rowID := range rowIDs {
				if !containsString(table.AllowedRowIDs, rowID) {
					table.AllowedRowIDs = append(table.AllowedRowIDs, rowID)
					changed = true
				}
			}
		}
		if !changed {
			resp.Status = SyncStatusSkipped
			return nil
		}

		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal config document: %w", err)
		}
		target.ConfigDoc = b
		if err := tx.UpdateConfig(ctx, target); err != nil {
			return err
		}
		resp.Status = SyncStatusUpdated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync deltas for movement %q: %w", movementID, err)
	}

	if resp.Status != SyncStatusSkipped {
		s.invalidateResolved(ctx)
	}
	return resp, nil
}

// SyncFailure 批量同步中单个动作的失败记录
type SyncFailure struct {
	MovementID string `json:"movement_id"`
	Error      string `json:"error"`
}

// SyncAllDeltasResponse 批量 delta 同步结果
type SyncAllDeltasResponse struct {
	Created []string      `json:"created"`
	Updated []string      `json:"updated"`
	Skipped []string      `json:"skipped"`
	Failed  []SyncFailure `json:"failed"`
}

// SyncAllDeltaMovements 对所有出现在增量映射中的动作执行 delta 同步
// 单个动作失败只记录不传播：一次坏扫描不该废掉整个批次。
func (s *ConfigService) SyncAllDeltaMovements(ctx context.Context) (*SyncAllDeltasResponse, error) {
	movementIDs, err := s.modifiers.DeltaMovementIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list delta movements: %w", err)
	}

	resp := &SyncAllDeltasResponse{Created: []string{}, Updated: []string{}, Skipped: []string{}, Failed: []SyncFailure{}}
	for _, movementID := range movementIDs {
		result, err := s.SyncDeltasForMovement(ctx, movementID)
		if err != nil {
			s.logger.Warn("delta sync failed", zap.String("movement_id", movementID), zap.Error(err))
			resp.Failed = append(resp.Failed, SyncFailure{MovementID: movementID, Error: err.Error()})
			continue
		}
		switch result.Status {
		case SyncStatusCreated:
			resp.Created = append(resp.Created, movementID)
		case SyncStatusUpdated:
			resp.Updated = append(resp.Updated, movementID)
		default:
			resp.Skipped = append(resp.Skipped, movementID)
		}
	}
	return resp, nil
}
