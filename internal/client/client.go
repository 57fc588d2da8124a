// Package client はrhetor APIのGoクライアントを提供する。
// CLIの各サブコマンドと録音セッションのセッション作成に使用する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhetor-app/rhetor/internal/audio"
	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/pod"
)

// DefaultTimeout はAPI呼び出しの既定タイムアウト。
const DefaultTimeout = 15 * time.Second

// maxResponseBodySize はJSONレスポンスとして読み取るボディの上限。
const maxResponseBodySize = 1 << 20

// Error はAPIがエラーレスポンスを返した場合のエラー。
// errors.Asで*model.APIErrorとしても取り出せる。
type Error struct {
	StatusCode int
	API        *model.APIError
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("api returned status %d: %v", e.StatusCode, e.API)
}

// Unwrap は内包するAPIErrorを返す。
func (e *Error) Unwrap() error {
	return e.API
}

// Client はrhetor APIのクライアント。
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	validateURL    func(string) error
	logger         *slog.Logger
	baseURL        string
	anonKey        string
	token          string
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithHTTPClient はAPI呼び出しに使うHTTPクライアントを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDownloadClient は署名付きURLからのダウンロードに使うHTTPクライアントを差し替える。
func WithDownloadClient(hc *http.Client) Option {
	return func(c *Client) { c.downloadClient = hc }
}

// WithURLValidator は署名付きURLをダウンロード前に検証する関数を設定する。
func WithURLValidator(validate func(rawURL string) error) Option {
	return func(c *Client) { c.validateURL = validate }
}

// WithLogger はロガーを差し替える。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New はClientの新しいインスタンスを生成する。
// tokenはユーザーのアクセストークンで、全リクエストにBearerとして付与される。
func New(baseURL, anonKey, token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.downloadClient == nil {
		c.downloadClient = c.httpClient
	}
	return c
}

// CreateSession は練習セッションを作成する。
func (c *Client) CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.CreatedSession, error) {
	var out model.CreatedSession
	if err := c.do(ctx, http.MethodPost, "/create-session", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignToPod は呼び出しユーザーをポッドに割り当てる。
func (c *Client) AssignToPod(ctx context.Context, req pod.AssignRequest) (*model.Assignment, error) {
	var out model.Assignment
	if err := c.do(ctx, http.MethodPost, "/assign-to-pod", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionAudioURL はセッション音声の署名付きURLを取得する。
// expiresInがnilの場合はサーバーの既定値が使われる。
func (c *Client) SessionAudioURL(ctx context.Context, sessionID string, expiresIn *int) (*model.SignedAudioURL, error) {
	req := audio.SignedURLRequest{SessionID: sessionID, ExpiresIn: expiresIn}
	var out model.SignedAudioURL
	if err := c.do(ctx, http.MethodPost, "/get-session-audio-url", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Dashboard はホーム画面のダッシュボードを取得する。
func (c *Client) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	var out model.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveProfile はプロフィールを保存する。
func (c *Client) SaveProfile(ctx context.Context, in model.ProfileInput) (*model.Profile, error) {
	var out model.Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadAudio は署名付きURLから音声を取得しwに書き込む。
// 書き込んだバイト数を返す。
func (c *Client) DownloadAudio(ctx context.Context, signedURL string, w io.Writer) (int64, error) {
	if c.validateURL != nil {
		if err := c.validateURL(signedURL); err != nil {
			return 0, fmt.Errorf("refusing to download audio: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write audio: %w", err)
	}
	return n, nil
}

// do はJSONリクエストを送信し、成功時はレスポンスをoutにデコードする。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	limited := io.LimitReader(resp.Body, maxResponseBodySize)
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, limited)
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// decodeError はエラーレスポンスのエンベロープを*Errorに変換する。
// エンベロープとして解釈できない場合はステータスのみのAPIErrorを組み立てる。
func decodeError(status int, r io.Reader) error {
	var envelope struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Category string `json:"category"`
		Action   string `json:"action"`
	}
	raw, _ := io.ReadAll(r)
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Code == "" {
		return &Error{
			StatusCode: status,
			API: &model.APIError{
				Code:     model.ErrCodeInternal,
				Message:  strings.TrimSpace(string(raw)),
				Category: model.CategorySystem,
			},
		}
	}
	return &Error{
		StatusCode: status,
		API: &model.APIError{
			Code:     envelope.Code,
			Message:  envelope.Message,
			Category: envelope.Category,
			Action:   envelope.Action,
		},
	}
}

// IsStatus はerrがstatusのAPIエラーかを返す。
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
