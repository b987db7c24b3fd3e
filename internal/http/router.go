package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterConfigRoutes 注册配置生命周期 / 解析 / 维护路由
func (r *Router) RegisterConfigRoutes(h *ConfigHandler) {
	// configs 集合
	r.Handle("/config/api/v1/configs", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListConfigs(w, req)
		case http.MethodPost:
			h.CreateConfig(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	r.Handle("/config/api/v1/configs/import", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ImportConfig(w, req)
	})

	r.Handle("/config/api/v1/configs/export.xlsx", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportConfigsExcel(w, req)
	})

	// configs/{id} 与子操作（validate/activate/clone/export）
	r.Handle("/config/api/v1/configs/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/config/api/v1/configs/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		parts := strings.Split(rest, "/")
		id := parts[0]
		switch {
		case len(parts) == 1:
			switch req.Method {
			case http.MethodGet:
				h.GetConfig(w, req, id)
			case http.MethodPatch, http.MethodPut:
				h.UpdateConfig(w, req, id)
			case http.MethodDelete:
				h.DeleteConfig(w, req, id)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "validate" && req.Method == http.MethodPost:
			h.ValidateConfig(w, req, id)
		case len(parts) == 2 && parts[1] == "activate" && req.Method == http.MethodPost:
			h.ActivateConfig(w, req, id)
		case len(parts) == 2 && parts[1] == "clone" && req.Method == http.MethodPost:
			h.CloneConfig(w, req, id)
		case len(parts) == 2 && parts[1] == "export" && req.Method == http.MethodGet:
			h.ExportConfig(w, req, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// 有效配置解析
	r.Handle("/config/api/v1/resolve/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/config/api/v1/resolve/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Resolve(w, req, id)
	})

	// 规则内容哈希（编辑器生成稳定 rule_id 用）
	r.Handle("/config/api/v1/rules/hash", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.HashRule(w, req)
	})

	// 维护操作
	r.Handle("/config/api/v1/maintenance/sync-deltas", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.SyncAllDeltas(w, req)
	})
	r.Handle("/config/api/v1/maintenance/sync-deltas/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/config/api/v1/maintenance/sync-deltas/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.SyncDeltas(w, req, id)
	})
	r.Handle("/config/api/v1/maintenance/deduplicate", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Deduplicate(w, req)
	})
	r.Handle("/config/api/v1/maintenance/ensure-drafts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.EnsureAllDrafts(w, req)
	})
	r.Handle("/config/api/v1/maintenance/ensure-drafts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/config/api/v1/maintenance/ensure-drafts/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.EnsureDraft(w, req, id)
	})
}
