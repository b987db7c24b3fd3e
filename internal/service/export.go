package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"liftwise-config/internal/confighash"
	"liftwise-config/internal/domain"
	"liftwise-config/internal/validation"
)

// ExportConfig 导出配置行
// 所有键递归排序，保证同一行两次导出逐字节一致（方便 diff）。
func (s *ConfigService) ExportConfig(ctx context.Context, configID string) ([]byte, error) {
	rec, err := s.configs.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	var doc any
	if len(rec.ConfigDoc) > 0 {
		if err := json.Unmarshal(rec.ConfigDoc, &doc); err != nil {
			return nil, fmt.Errorf("config %s: %w", configID, err)
		}
	}
	export := map[string]any{
		"config_id":         rec.ConfigID,
		"scope_type":        rec.ScopeType,
		"scope_id":          rec.ScopeID,
		"status":            rec.Status,
		"schema_version":    rec.SchemaVersion,
		"config_version":    rec.ConfigVersion,
		"config_doc":        doc,
		"notes":             rec.Notes,
		"validation_status": rec.ValidationStatus,
		"is_deleted":        rec.IsDeleted,
		"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":        rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.PublishedAt != nil {
		export["published_at"] = rec.PublishedAt.UTC().Format(time.RFC3339)
	}
	return confighash.MarshalSorted(export)
}

// ImportConfigRequest 导入配置请求
type ImportConfigRequest struct {
	ScopeType string
	ScopeID   string
	Document  json.RawMessage
	Notes     string
	Author    string
}

// ImportConfig 导入配置文档为新草稿
// 接受前必须通过结构校验；不通过直接拒绝，不做任何静默修正。
func (s *ConfigService) ImportConfig(ctx context.Context, req ImportConfigRequest) (*domain.ConfigRecord, error) {
	messages := s.validator.ValidateStructural(req.Document)
	for _, m := range messages {
		if m.Severity == validation.SeverityError {
			return nil, fmt.Errorf("import rejected: %s (%s)", m.Message, m.Code)
		}
	}
	return s.CreateConfig(ctx, CreateConfigRequest{
		ScopeType: req.ScopeType,
		ScopeID:   req.ScopeID,
		Document:  req.Document,
		Notes:     req.Notes,
		Author:    req.Author,
	})
}
