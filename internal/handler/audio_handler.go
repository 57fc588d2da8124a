package handler

import (
	"context"
	"net/http"

	"github.com/rhetor-app/rhetor/internal/audio"
	"github.com/rhetor-app/rhetor/internal/model"
)

// AudioServiceInterface は署名付きURLハンドラーが必要とするサービスインターフェース。
type AudioServiceInterface interface {
	SignedURL(ctx context.Context, viewerID string, req audio.SignedURLRequest) (*model.SignedAudioURL, error)
}

// AudioHandler はセッション音声のHTTPハンドラー。
type AudioHandler struct {
	service AudioServiceInterface
}

// NewAudioHandler はAudioHandlerを生成する。
func NewAudioHandler(service AudioServiceInterface) *AudioHandler {
	return &AudioHandler{service: service}
}

// GetSessionAudioURL はセッション音声の短時間有効な署名付きURLを返す。
// POST /get-session-audio-url
func (h *AudioHandler) GetSessionAudioURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req audio.SignedURLRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	signed, err := h.service.SignedURL(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, signed)
}
