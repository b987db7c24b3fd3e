package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"liftwise-config/internal/domain"
	"liftwise-config/internal/repository"
	"liftwise-config/internal/service"
	"liftwise-config/internal/validation"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger := zap.NewNop()
	configsRepo := repository.NewMemoryConfigsRepo()
	movementsRepo := repository.NewMemoryMovementsRepo()
	modifiersRepo := repository.NewMemoryModifiersRepo()

	movementsRepo.AddMovement(&domain.Movement{MovementID: "bench_press", MovementName: "Bench Press", IsActive: true})
	for _, rowID := range []string{"pronated", "neutral"} {
		modifiersRepo.AddRow(&domain.ModifierRow{TableKey: domain.TableGrip, RowID: rowID, RowName: rowID, IsActive: true})
	}

	validator := validation.NewValidator(logger)
	configService := service.NewConfigService(configsRepo, movementsRepo, modifiersRepo, validator, nil, logger)
	resolverService := service.NewResolverService(configsRepo, movementsRepo, nil, logger)

	router := NewRouter(logger)
	router.RegisterConfigRoutes(NewConfigHandler(configService, resolverService, logger))
	return router
}

func doJSON(t *testing.T, router *Router, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	}
	return rec, envelope
}

func TestConfigLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	// create draft
	rec, envelope := doJSON(t, router, http.MethodPost, "/config/api/v1/configs", `{
		"scope_type": "movement",
		"scope_id": "bench_press",
		"config_doc": {"tables":{"grip":{"applicability":true,"allowed_row_ids":["pronated"],"default_row_id":"pronated"}}},
		"author": "coach_wu"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(ResultSuccess), envelope["code"])
	created := envelope["result"].(map[string]any)
	configID := created["config_id"].(string)
	require.NotEmpty(t, configID)

	// get
	rec, envelope = doJSON(t, router, http.MethodGet, "/config/api/v1/configs/"+configID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := envelope["result"].(map[string]any)
	require.Equal(t, "movement", got["scope_type"])

	// validate
	rec, envelope = doJSON(t, router, http.MethodPost, "/config/api/v1/configs/"+configID+"/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := envelope["result"].(map[string]any)
	require.Equal(t, true, result["can_activate"])

	// activate
	rec, envelope = doJSON(t, router, http.MethodPost, "/config/api/v1/configs/"+configID+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	activation := envelope["result"].(map[string]any)
	require.Equal(t, false, activation["rejected"])

	// resolve
	rec, envelope = doJSON(t, router, http.MethodGet, "/config/api/v1/resolve/bench_press", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := envelope["result"].(map[string]any)
	tables := resolved["effective_tables"].(map[string]any)
	require.Contains(t, tables, "grip")

	// delete without force is refused for the active row
	rec, envelope = doJSON(t, router, http.MethodDelete, "/config/api/v1/configs/"+configID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	del := envelope["result"].(map[string]any)
	require.Equal(t, false, del["ok"])
	require.Equal(t, true, del["was_active"])
}

func TestActiveEditConflictOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	_, envelope := doJSON(t, router, http.MethodPost, "/config/api/v1/configs", `{
		"scope_type": "movement",
		"scope_id": "bench_press",
		"config_doc": {"tables":{"grip":{"applicability":true,"allowed_row_ids":["pronated"],"default_row_id":"pronated"}}}
	}`)
	configID := envelope["result"].(map[string]any)["config_id"].(string)
	rec, _ := doJSON(t, router, http.MethodPost, "/config/api/v1/configs/"+configID+"/activate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, envelope = doJSON(t, router, http.MethodPatch, "/config/api/v1/configs/"+configID, `{
		"config_doc": {"tables":{}}
	}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "error", envelope["type"])
}

func TestNotFoundMapping(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/config/api/v1/configs/00000000-0000-0000-0000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/config/api/v1/resolve/no_such_movement", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHashRuleEndpoint(t *testing.T) {
	router := newTestRouter(t)
	body := `{
		"action": "filter_rows",
		"condition": {"table": "grip", "operator": "equals", "value": "pronated"},
		"rule_id": "ignored",
		"_editor_state": "ignored too"
	}`

	rec, envelope := doJSON(t, router, http.MethodPost, "/config/api/v1/rules/hash", body)
	require.Equal(t, http.StatusOK, rec.Code)
	first := envelope["result"].(map[string]any)["rule_id"].(string)
	require.Len(t, first, 16)

	// 身份与瞬态字段不影响哈希
	rec, envelope = doJSON(t, router, http.MethodPost, "/config/api/v1/rules/hash", `{
		"condition": {"value": "pronated", "operator": "equals", "table": "grip"},
		"action": "filter_rows"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, first, envelope["result"].(map[string]any)["rule_id"].(string))
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)
	rec, _ := doJSON(t, router, http.MethodDelete, "/config/api/v1/resolve/bench_press", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
