// Package audio はセッション音声の署名付きURL発行を提供する。
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rhetor-app/rhetor/internal/metrics"
	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/repository"
)

// 署名付きURLの有効期限（秒）。
const (
	DefaultExpiresIn = 120
	MinExpiresIn     = 30
	MaxExpiresIn     = 600
)

// URLSigner はストレージオブジェクトの署名付きURLを発行する。
// storage.Clientが実装する。
type URLSigner interface {
	CreateSignedURL(ctx context.Context, bucket, path string, expiresIn int) (string, error)
}

// SignedURLRequest は署名付きURLの発行リクエストを表す。
type SignedURLRequest struct {
	SessionID string `json:"session_id"`
	ExpiresIn *int   `json:"expires_in,omitempty"`
}

// Service は署名付きURL発行のサービス層。
type Service struct {
	sessionRepo repository.SessionRepository
	signer      URLSigner
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	bucket      string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	signer URLSigner,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	bucket string,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		sessionRepo: sessionRepo,
		signer:      signer,
		metrics:     collector,
		logger:      logger,
		bucket:      bucket,
	}
}

// SignedURL は閲覧者がアクセスできるセッション音声の署名付きURLを返す。
// 閲覧できるのはセッションのオーナーと割り当てられたレビュアーのみ。
func (s *Service) SignedURL(ctx context.Context, viewerID string, req SignedURLRequest) (*model.SignedAudioURL, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, model.NewSessionIDRequiredError()
	}
	// 存在有無を区別させないため、形式不正も権限なしとして扱う
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, model.NewForbiddenError()
	}

	expiresIn := ClampExpiresIn(req.ExpiresIn)

	audioPath, err := s.sessionRepo.FindVisibleAudioPath(ctx, sessionID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if audioPath == "" {
		return nil, model.NewForbiddenError()
	}

	signedURL, err := s.signer.CreateSignedURL(ctx, s.bucket, audioPath, expiresIn)
	if err != nil || signedURL == "" {
		s.logger.Error("failed to create signed url",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
		return nil, model.NewSignedURLFailedError()
	}

	s.metrics.RecordSignedURL()
	s.logger.Info("signed url issued",
		slog.String("viewer_id", viewerID),
		slog.String("session_id", sessionID),
		slog.Int("expires_in", expiresIn),
	)

	return &model.SignedAudioURL{
		SessionID: sessionID,
		AudioPath: audioPath,
		ExpiresIn: expiresIn,
		SignedURL: signedURL,
	}, nil
}

// ClampExpiresIn は有効期限を[MinExpiresIn, MaxExpiresIn]に収める。nilの場合はDefaultExpiresIn。
func ClampExpiresIn(v *int) int {
	if v == nil {
		return DefaultExpiresIn
	}
	switch {
	case *v < MinExpiresIn:
		return MinExpiresIn
	case *v > MaxExpiresIn:
		return MaxExpiresIn
	}
	return *v
}
