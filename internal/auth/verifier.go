// Package auth はBearerトークンの検証を提供する。
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrUnauthorized はトークンが無効または期限切れの場合に返される。
var ErrUnauthorized = errors.New("unauthorized")

// TokenVerifier はアクセストークンを検証してユーザーIDを返すインターフェース。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// PlatformVerifier は認証プラットフォームのユーザー取得APIでトークンを検証する。
type PlatformVerifier struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	anonKey    string
}

// NewPlatformVerifier はPlatformVerifierを生成する。
func NewPlatformVerifier(httpClient *http.Client, logger *slog.Logger, baseURL, anonKey string) *PlatformVerifier {
	return &PlatformVerifier{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
	}
}

// Verify はGET /auth/v1/user でトークンを検証し、ユーザーIDを返す。
// 200以外の応答やIDを含まない応答はErrUnauthorizedとして扱う。
func (v *PlatformVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.anonKey)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call auth api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Debug("token rejected by auth api", slog.Int("http_status", resp.StatusCode))
		return "", ErrUnauthorized
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if user.ID == "" {
		return "", ErrUnauthorized
	}

	return user.ID, nil
}

// StaticVerifier は全てのトークンを固定ユーザーとして認証する。
// AUTH_MODE=bypassのローカル開発専用。
type StaticVerifier struct {
	UserID string
}

// NewStaticVerifier はStaticVerifierを生成する。
func NewStaticVerifier(userID string) *StaticVerifier {
	return &StaticVerifier{UserID: userID}
}

// Verify はトークンの内容に関わらず固定のユーザーIDを返す。
func (v *StaticVerifier) Verify(ctx context.Context, token string) (string, error) {
	return v.UserID, nil
}

var (
	_ TokenVerifier = (*PlatformVerifier)(nil)
	_ TokenVerifier = (*StaticVerifier)(nil)
)
