package handler

import (
	"context"
	"net/http"

	"github.com/rhetor-app/rhetor/internal/model"
)

// SessionServiceInterface はセッション作成ハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	Create(ctx context.Context, userID string, req model.CreateSessionRequest) (*model.CreatedSession, error)
}

// SessionHandler はセッション作成のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{service: service}
}

// CreateSession は練習セッションを作成し、音声のアップロード先を返す。
// POST /create-session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req model.CreateSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, created)
}
