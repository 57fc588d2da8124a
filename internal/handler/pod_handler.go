package handler

import (
	"context"
	"net/http"

	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/pod"
)

// PodServiceInterface はポッド割り当てハンドラーが必要とするサービスインターフェース。
type PodServiceInterface interface {
	Assign(ctx context.Context, userID string, req pod.AssignRequest) (*model.Assignment, error)
}

// PodHandler はポッド割り当てのHTTPハンドラー。
type PodHandler struct {
	service PodServiceInterface
}

// NewPodHandler はPodHandlerを生成する。
func NewPodHandler(service PodServiceInterface) *PodHandler {
	return &PodHandler{service: service}
}

// AssignToPod は呼び出しユーザーをコホート内のポッドに割り当てる。
// POST /assign-to-pod
func (h *PodHandler) AssignToPod(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req pod.AssignRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	assignment, err := h.service.Assign(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, assignment)
}
