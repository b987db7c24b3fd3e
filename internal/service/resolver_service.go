package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/store"

	"go.uber.org/zap"
)

// resolvedCacheKeyPrefix 解析结果缓存键前缀（仅 active_only 模式缓存）
const resolvedCacheKeyPrefix = "resolved:movement:"

// resolvedCacheTTL 缓存时长；生命周期操作会主动失效，TTL 只是兜底
const resolvedCacheTTL = 60 * time.Second

// ResolverService 有效配置解析服务
// 读取时将组配置与动作覆盖合并为单个有效视图；只读，不加锁。
type ResolverService struct {
	configs   repository.ConfigsRepository
	movements repository.MovementsRepository
	kv        store.KV // 可为 nil（无缓存）
	logger    *zap.Logger
}

// NewResolverService 创建解析服务
func NewResolverService(configs repository.ConfigsRepository, movements repository.MovementsRepository, kv store.KV, logger *zap.Logger) *ResolverService {
	return &ResolverService{
		configs:   configs,
		movements: movements,
		kv:        kv,
		logger:    logger,
	}
}

// Resolve 解析动作的有效配置
// mode: active_only 只看激活行；draft_preview 允许草稿（有激活优先激活）。
func (s *ResolverService) Resolve(ctx context.Context, movementID, mode string) (*domain.ResolvedConfig, error) {
	if mode == "" {
		mode = domain.ResolveModeActiveOnly
	}
	if mode != domain.ResolveModeActiveOnly && mode != domain.ResolveModeDraftPreview {
		return nil, fmt.Errorf("unknown resolve mode %q", mode)
	}

	// 缓存只服务 active_only：草稿预览必须看到最新编辑
	if mode == domain.ResolveModeActiveOnly && s.kv != nil {
		if cached, err := s.kv.Get(ctx, resolvedCacheKeyPrefix+movementID); err == nil {
			var resolved domain.ResolvedConfig
			if err := json.Unmarshal([]byte(cached), &resolved); err == nil {
				return &resolved, nil
			}
		} else if err != store.ErrMiss {
			// 缓存只是加速：故障降级为直读
			s.logger.Warn("resolver cache read failed", zap.String("movement_id", movementID), zap.Error(err))
		}
	}

	movement, err := s.movements.GetMovement(ctx, movementID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve movement %q: %w", movementID, err)
	}

	resolved := &domain.ResolvedConfig{
		MovementID:      movementID,
		Mode:            mode,
		EffectiveTables: map[domain.TableKey]*domain.EffectiveTable{},
	}
	resolved.GroupID = s.deriveGroupID(movement, resolved)

	groupRec, err := s.loadScopeRecord(ctx, domain.ScopeTypeMovementGroup, resolved.GroupID, mode)
	if err != nil {
		return nil, err
	}
	motionRec, err := s.loadScopeRecord(ctx, domain.ScopeTypeMovement, movementID, mode)
	if err != nil {
		return nil, err
	}

	if groupRec == nil && motionRec == nil {
		resolved.AddDiagnostic(domain.DiagnosticInfo, "no_config",
			fmt.Sprintf("no configuration exists for movement %q or its group %q", movementID, resolved.GroupID))
		return resolved, nil
	}

	var groupDoc, motionDoc *domain.ConfigDocument
	if groupRec != nil {
		id := groupRec.ConfigID
		resolved.GroupConfigID = &id
		if groupDoc, err = groupRec.Document(); err != nil {
			return nil, fmt.Errorf("group config %s: %w", groupRec.ConfigID, err)
		}
	}
	if motionRec != nil {
		id := motionRec.ConfigID
		resolved.MotionConfigID = &id
		if motionDoc, err = motionRec.Document(); err != nil {
			return nil, fmt.Errorf("movement config %s: %w", motionRec.ConfigID, err)
		}
	}

	s.mergeDocuments(groupDoc, motionDoc, resolved)

	if mode == domain.ResolveModeActiveOnly && s.kv != nil {
		if b, err := json.Marshal(resolved); err == nil {
			if err := s.kv.Set(ctx, resolvedCacheKeyPrefix+movementID, string(b), resolvedCacheTTL); err != nil {
				s.logger.Warn("resolver cache write failed", zap.String("movement_id", movementID), zap.Error(err))
			}
		}
	}
	return resolved, nil
}

// deriveGroupID 推导动作所属组
// 无 parent 的动作自成一组；有 parent 的继承 parent 为组（仅一级，不递归）。
// 自指 parent 回退为自成一组并给出 warning。
func (s *ResolverService) deriveGroupID(movement *domain.Movement, resolved *domain.ResolvedConfig) string {
	if movement.ParentID == nil || *movement.ParentID == "" {
		return movement.MovementID
	}
	parent := *movement.ParentID
	if parent == movement.MovementID {
		resolved.AddDiagnostic(domain.DiagnosticWarning, "parent_cycle",
			fmt.Sprintf("movement %q is its own parent; treating it as its own group", movement.MovementID))
		return movement.MovementID
	}
	return parent
}

// loadScopeRecord 按模式加载某作用域的配置行（可能不存在）
func (s *ResolverService) loadScopeRecord(ctx context.Context, scopeType, scopeID, mode string) (*domain.ConfigRecord, error) {
	records, _, err := s.configs.ListConfigs(ctx, repository.ConfigFilters{
		ScopeType: scopeType,
		ScopeID:   scopeID,
	}, 1, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s config for %q: %w", scopeType, scopeID, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var active, latest *domain.ConfigRecord
	for _, rec := range records {
		if rec.IsActive() && (active == nil || rec.UpdatedAt.After(active.UpdatedAt)) {
			active = rec
		}
		if latest == nil || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
		}
	}
	if mode == domain.ResolveModeActiveOnly {
		return active, nil
	}
	// draft_preview：有激活优先激活，否则取最近更新的行
	if active != nil {
		return active, nil
	}
	return latest, nil
}

// mergeDocuments 合并组文档与动作文档到解析结果
func (s *ResolverService) mergeDocuments(groupDoc, motionDoc *domain.ConfigDocument, resolved *domain.ResolvedConfig) {
	keys := map[domain.TableKey]bool{}
	if groupDoc != nil {
		for k := range groupDoc.Tables {
			keys[k] = true
		}
	}
	if motionDoc != nil {
		for k := range motionDoc.Tables {
			keys[k] = true
		}
	}

	for key := range keys {
		var g, m *domain.TableConfig
		if groupDoc != nil {
			g = groupDoc.Tables[key]
		}
		if motionDoc != nil {
			m = motionDoc.Tables[key]
		}
		resolved.EffectiveTables[key] = s.mergeTable(key, g, m, resolved)
	}

	var groupRules, motionRules []domain.GlobalRule
	if groupDoc != nil {
		groupRules = groupDoc.Rules
	}
	if motionDoc != nil {
		motionRules = motionDoc.Rules
	}
	resolved.GlobalRules = s.mergeGlobalRules(groupRules, motionRules, resolved)
}

// mergeTable 合并单个修饰表；动作侧按字段无条件或条件性胜出
func (s *ResolverService) mergeTable(key domain.TableKey, g, m *domain.TableConfig, resolved *domain.ResolvedConfig) *domain.EffectiveTable {
	eff := &domain.EffectiveTable{TableKey: key}

	switch {
	case m == nil:
		eff.Source = domain.SourceGroup
		eff.Applicability = g.Applicability
		eff.AllowedRowIDs = append([]string{}, g.AllowedRowIDs...)
		eff.DefaultRowID = g.DefaultRowID.Value()
		eff.NullNoopAllowed = g.NullNoopAllowed
		eff.LocalRules = s.mergeLocalRules(key, nil, g.LocalRules, resolved)
	case g == nil:
		eff.Source = domain.SourceMotion
		eff.Applicability = m.Applicability
		eff.AllowedRowIDs = append([]string{}, m.AllowedRowIDs...)
		eff.DefaultRowID = m.DefaultRowID.Value()
		eff.NullNoopAllowed = m.NullNoopAllowed
		eff.LocalRules = s.mergeLocalRules(key, nil, m.LocalRules, resolved)
	default:
		eff.Source = domain.SourceMerged
		// 动作侧（更具体）无条件胜出
		eff.Applicability = m.Applicability
		eff.NullNoopAllowed = m.NullNoopAllowed
		// 允许行：动作侧非空则整体替换（不求并集）
		if len(m.AllowedRowIDs) > 0 {
			eff.AllowedRowIDs = append([]string{}, m.AllowedRowIDs...)
		} else {
			eff.AllowedRowIDs = append([]string{}, g.AllowedRowIDs...)
		}
		// 默认选项：动作侧显式设置（含显式 null）则胜出
		if m.DefaultRowID.Set {
			eff.DefaultRowID = m.DefaultRowID.Value()
		} else {
			eff.DefaultRowID = g.DefaultRowID.Value()
		}
		eff.LocalRules = s.mergeLocalRules(key, g.LocalRules, m.LocalRules, resolved)

		// 合并可能制造出两侧各自都没有的不自洽状态
		if eff.DefaultRowID != nil && len(eff.AllowedRowIDs) > 0 && !containsString(eff.AllowedRowIDs, *eff.DefaultRowID) {
			resolved.AddDiagnostic(domain.DiagnosticWarning, "merged_default_not_allowed",
				fmt.Sprintf("table %q: merged default %q is not in the merged allowed rows", key, *eff.DefaultRowID))
		}
	}
	return eff
}

// mergeLocalRules 按 rule_id 合并局部规则
// 动作侧同ID覆盖组侧；动作侧墓碑删除组侧规则；结果不含墓碑。
func (s *ResolverService) mergeLocalRules(key domain.TableKey, base, overlay []domain.LocalRule, resolved *domain.ResolvedConfig) []domain.LocalRule {
	merged := map[string]domain.LocalRule{}
	for _, rule := range base {
		if rule.IsTombstone() {
			// 组是最低优先级，组级墓碑取消不了任何东西
			resolved.AddDiagnostic(domain.DiagnosticWarning, "dead_tombstone",
				fmt.Sprintf("table %q: tombstone for rule %q cancels nothing", key, rule.RuleID))
			continue
		}
		merged[rule.RuleID] = rule
	}
	for _, rule := range overlay {
		if rule.IsTombstone() {
			if _, ok := merged[rule.RuleID]; ok {
				delete(merged, rule.RuleID)
			} else {
				resolved.AddDiagnostic(domain.DiagnosticWarning, "dead_tombstone",
					fmt.Sprintf("table %q: tombstone for rule %q cancels nothing", key, rule.RuleID))
			}
			continue
		}
		merged[rule.RuleID] = rule
	}

	out := make([]domain.LocalRule, 0, len(merged))
	for _, rule := range merged {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// mergeGlobalRules 文档级全局规则合并，与局部规则同一套墓碑语义
func (s *ResolverService) mergeGlobalRules(base, overlay []domain.GlobalRule, resolved *domain.ResolvedConfig) []domain.GlobalRule {
	merged := map[string]domain.GlobalRule{}
	for _, rule := range base {
		if rule.IsTombstone() {
			resolved.AddDiagnostic(domain.DiagnosticWarning, "dead_tombstone",
				fmt.Sprintf("global tombstone for rule %q cancels nothing", rule.RuleID))
			continue
		}
		merged[rule.RuleID] = rule
	}
	for _, rule := range overlay {
		if rule.IsTombstone() {
			if _, ok := merged[rule.RuleID]; ok {
				delete(merged, rule.RuleID)
			} else {
				resolved.AddDiagnostic(domain.DiagnosticWarning, "dead_tombstone",
					fmt.Sprintf("global tombstone for rule %q cancels nothing", rule.RuleID))
			}
			continue
		}
		merged[rule.RuleID] = rule
	}

	out := make([]domain.GlobalRule, 0, len(merged))
	for _, rule := range merged {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

func containsString(list []string, value string) bool {
	for _, s := range list {
		if s == value {
			return true
		}
	}
	return false
}
