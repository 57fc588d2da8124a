// Package storage はオブジェクトストレージのREST APIクライアントを提供する。
// 録音音声のアップロード、署名付きURLの発行、存在確認に使用する。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrObjectExists は同じパスにオブジェクトが既に存在する場合に返される。
var ErrObjectExists = errors.New("storage object already exists")

// maxErrorBodySize はエラーレスポンスとして読み取るボディの上限。
const maxErrorBodySize = 4096

// StatusError はストレージAPIが想定外のステータスを返した場合のエラー。
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("storage %s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Client はオブジェクトストレージのクライアント。
// サーバーではサービスロールキー、CLIではanon keyとユーザーのアクセストークンで認証する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはプラットフォームのURL（例: "https://project.example.co"）。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey, token string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		token:      token,
	}
}

// Upload はオブジェクトを新規作成する。上書きは行わない。
// 同じパスに既にオブジェクトがある場合はErrObjectExistsを返す。
func (c *Client) Upload(ctx context.Context, bucket, path string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL("object", bucket, path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Info("audio uploaded",
			slog.String("bucket", bucket),
			slog.String("path", path),
			slog.Int("bytes", len(body)),
		)
		return nil
	}

	respBody := readErrorBody(resp.Body)
	if isDuplicate(resp.StatusCode, respBody) {
		return ErrObjectExists
	}
	return &StatusError{Op: "upload", StatusCode: resp.StatusCode, Body: respBody}
}

// CreateSignedURL は期限付きでオブジェクトを取得できる署名付きURLを発行する。
func (c *Client) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error) {
	payload, err := json.Marshal(map[string]int{"expiresIn": expiresIn})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL("object/sign", bucket, path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "sign", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode sign response: %w", err)
	}
	if result.SignedURL == "" {
		return "", errors.New("sign response did not contain a signed url")
	}

	// APIは/storage/v1からの相対パスを返す
	if strings.HasPrefix(result.SignedURL, "http://") || strings.HasPrefix(result.SignedURL, "https://") {
		return result.SignedURL, nil
	}
	return c.baseURL + "/storage/v1" + ensureLeadingSlash(result.SignedURL), nil
}

// Exists はオブジェクトが存在するかを返す。
func (c *Client) Exists(ctx context.Context, bucket, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.objectURL("object", bucket, path), nil)
	if err != nil {
		return false, fmt.Errorf("failed to build head request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check object: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, &StatusError{Op: "head", StatusCode: resp.StatusCode}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// objectURL はバケットとパスからAPIのURLを組み立てる。パスは区切りごとにエスケープする。
func (c *Client) objectURL(prefix, bucket, path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/storage/v1/%s/%s/%s", c.baseURL, prefix, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// isDuplicate は既存オブジェクトとの衝突を示すレスポンスかを判定する。
// 409のほか、400のボディで重複を報告する実装がある。
func isDuplicate(status int, body string) bool {
	if status == http.StatusConflict {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	lower := strings.ToLower(body)
	return strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exists")
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	return strings.TrimSpace(string(b))
}

func ensureLeadingSlash(s string) string {
	if strings.HasPrefix(s, "/") {
		return s
	}
	return "/" + s
}

// ContentTypeForExtension は音声拡張子に対応するContent-Typeを返す。
func ContentTypeForExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "m4a":
		return "audio/mp4"
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "caf":
		return "audio/x-caf"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
