package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はデータベースの疎通確認を行う。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CatalogStatus はカタログAPIの認証情報が設定済みかを返す。tmdb.Clientが満たす。
type CatalogStatus interface {
	HasAPIKey() bool
}

// HealthHandler は稼働確認エンドポイント。
type HealthHandler struct {
	db      Pinger // インメモリ構成ではnil
	catalog CatalogStatus
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db Pinger, catalog CatalogStatus) *HealthHandler {
	return &HealthHandler{db: db, catalog: catalog}
}

// ServeHTTP はプロセスとデータベースの状態を返す。
// TMDBの認証情報が未設定でも稼働中として扱い、catalog_configuredで知らせる。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.catalog != nil {
		resp["catalog_configured"] = h.catalog.HasAPIKey()
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			resp["status"] = "unavailable"
			resp["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["database"] = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}
