package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhetor-app/rhetor/internal/dashboard"
	"github.com/rhetor-app/rhetor/internal/model"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	Fetch(ctx context.Context, userID string) (*model.Dashboard, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// GetDashboard はホーム画面用のダッシュボードを返す。
// GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Fetch(r.Context(), userID)
	if err != nil {
		handleDashboardError(w, err)
		return
	}

	writeJSON(w, d)
}

// handleDashboardError はダッシュボード取得の失敗種別をAPIエラーに変換する。
func handleDashboardError(w http.ResponseWriter, err error) {
	var dErr *dashboard.Error
	switch {
	case errors.Is(err, dashboard.ErrProfileNotFound):
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError())
	case errors.Is(err, dashboard.ErrAggregation) && errors.As(err, &dErr):
		slog.Error("dashboard aggregation failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewAggregationError(dErr.Err))
	case errors.Is(err, dashboard.ErrDataSource) && errors.As(err, &dErr):
		slog.Error("dashboard data source failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewDataSourceError(dErr.Err))
	default:
		handleServiceError(w, err)
	}
}
