package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"liftwise-config/internal/confighash"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/service"
)

// ConfigHandler 配置 HTTP 处理器
// 只做请求解析与响应编码，业务语义全部在 service 层。
type ConfigHandler struct {
	configs  *service.ConfigService
	resolver *service.ResolverService
	logger   *zap.Logger
}

func NewConfigHandler(configs *service.ConfigService, resolver *service.ResolverService, logger *zap.Logger) *ConfigHandler {
	return &ConfigHandler{
		configs:  configs,
		resolver: resolver,
		logger:   logger,
	}
}

// ListConfigs GET /config/api/v1/configs
func (h *ConfigHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ListConfigsRequest{
		ScopeType:      q.Get("scope_type"),
		ScopeID:        q.Get("scope_id"),
		Status:         q.Get("status"),
		IncludeDeleted: q.Get("include_deleted") == "true",
		Page:           queryInt(q.Get("page"), 1),
		Size:           queryInt(q.Get("size"), 20),
	}
	resp, err := h.configs.ListConfigs(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// GetConfig GET /config/api/v1/configs/{id}
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request, configID string) {
	rec, err := h.configs.GetConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, rec)
}

type createConfigBody struct {
	ScopeType string          `json:"scope_type"`
	ScopeID   string          `json:"scope_id"`
	Document  json.RawMessage `json:"config_doc"`
	Notes     string          `json:"notes"`
	Author    string          `json:"author"`
}

// CreateConfig POST /config/api/v1/configs
func (h *ConfigHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var body createConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.configs.CreateConfig(r.Context(), service.CreateConfigRequest{
		ScopeType: body.ScopeType,
		ScopeID:   body.ScopeID,
		Document:  body.Document,
		Notes:     body.Notes,
		Author:    body.Author,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, rec)
}

type updateConfigBody struct {
	Document json.RawMessage `json:"config_doc"`
	Notes    *string         `json:"notes"`
	Force    bool            `json:"force"`
	Author   string          `json:"author"`
}

// UpdateConfig PATCH /config/api/v1/configs/{id}
func (h *ConfigHandler) UpdateConfig(w http.ResponseWriter, r *http.Request, configID string) {
	var body updateConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.configs.UpdateConfig(r.Context(), service.UpdateConfigRequest{
		ConfigID: configID,
		Document: body.Document,
		Notes:    body.Notes,
		Force:    body.Force,
		Author:   body.Author,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, rec)
}

// ValidateConfig POST /config/api/v1/configs/{id}/validate
func (h *ConfigHandler) ValidateConfig(w http.ResponseWriter, r *http.Request, configID string) {
	result, err := h.configs.ValidateConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, result)
}

// ActivateConfig POST /config/api/v1/configs/{id}/activate
func (h *ConfigHandler) ActivateConfig(w http.ResponseWriter, r *http.Request, configID string) {
	resp, err := h.configs.ActivateConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// CloneConfig POST /config/api/v1/configs/{id}/clone
func (h *ConfigHandler) CloneConfig(w http.ResponseWriter, r *http.Request, configID string) {
	var body struct {
		Author string `json:"author"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeFail(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	rec, err := h.configs.CloneConfig(r.Context(), configID, body.Author)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, rec)
}

// DeleteConfig DELETE /config/api/v1/configs/{id}?force=true
func (h *ConfigHandler) DeleteConfig(w http.ResponseWriter, r *http.Request, configID string) {
	force := r.URL.Query().Get("force") == "true"
	resp, err := h.configs.DeleteConfig(r.Context(), configID, force)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// ExportConfig GET /config/api/v1/configs/{id}/export
func (h *ConfigHandler) ExportConfig(w http.ResponseWriter, r *http.Request, configID string) {
	data, err := h.configs.ExportConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=config-"+configID+".json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type importConfigBody struct {
	ScopeType string          `json:"scope_type"`
	ScopeID   string          `json:"scope_id"`
	Document  json.RawMessage `json:"config_doc"`
	Notes     string          `json:"notes"`
	Author    string          `json:"author"`
}

// ImportConfig POST /config/api/v1/configs/import
func (h *ConfigHandler) ImportConfig(w http.ResponseWriter, r *http.Request) {
	var body importConfigBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.configs.ImportConfig(r.Context(), service.ImportConfigRequest{
		ScopeType: body.ScopeType,
		ScopeID:   body.ScopeID,
		Document:  body.Document,
		Notes:     body.Notes,
		Author:    body.Author,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, rec)
}

// Resolve GET /config/api/v1/resolve/{movementID}?mode=active_only|draft_preview
func (h *ConfigHandler) Resolve(w http.ResponseWriter, r *http.Request, movementID string) {
	mode := r.URL.Query().Get("mode")
	resolved, err := h.resolver.Resolve(r.Context(), movementID, mode)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resolved)
}

// HashRule POST /config/api/v1/rules/hash
// 对规则内容做规范化哈希，返回 16 位十六进制 rule_id。
func (h *ConfigHandler) HashRule(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ruleID, err := confighash.GenerateRuleID(body)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w, map[string]string{"rule_id": ruleID})
}

// SyncDeltas POST /config/api/v1/maintenance/sync-deltas/{movementID}
func (h *ConfigHandler) SyncDeltas(w http.ResponseWriter, r *http.Request, movementID string) {
	resp, err := h.configs.SyncDeltasForMovement(r.Context(), movementID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// SyncAllDeltas POST /config/api/v1/maintenance/sync-deltas
func (h *ConfigHandler) SyncAllDeltas(w http.ResponseWriter, r *http.Request) {
	resp, err := h.configs.SyncAllDeltaMovements(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// Deduplicate POST /config/api/v1/maintenance/deduplicate
func (h *ConfigHandler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	resp, err := h.configs.DeduplicateConfigs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// EnsureDraft POST /config/api/v1/maintenance/ensure-drafts/{movementID}
func (h *ConfigHandler) EnsureDraft(w http.ResponseWriter, r *http.Request, movementID string) {
	rec, created, err := h.configs.EnsureDraftForMovement(r.Context(), movementID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, map[string]any{
		"config":  rec,
		"created": created,
	})
}

// EnsureAllDrafts POST /config/api/v1/maintenance/ensure-drafts
func (h *ConfigHandler) EnsureAllDrafts(w http.ResponseWriter, r *http.Request) {
	resp, err := h.configs.EnsureDraftsForAllMovements(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, resp)
}

// fail 把 service 层错误映射为 HTTP 状态码
func (h *ConfigHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrConfigNotFound),
		errors.Is(err, repository.ErrMovementNotFound):
		writeFail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrActiveNotEditable):
		writeFail(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeFail(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return fallback
}
