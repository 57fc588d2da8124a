// Package session は練習セッション作成のドメインロジックを提供する。
package session

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

// フォーカスタグの件数範囲。
const (
	MinFocusTags = 1
	MaxFocusTags = 2
)

// Service はセッション作成のサービス層。
type Service struct {
	sessionRepo repository.SessionRepository
	podRepo     repository.PodRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	audioBucket string
	newID       func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	podRepo repository.PodRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	audioBucket string,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		sessionRepo: sessionRepo,
		podRepo:     podRepo,
		metrics:     collector,
		logger:      logger,
		audioBucket: audioBucket,
		newID:       func() string { return uuid.New().String() },
	}
}

// Create は入力を検証し、recorded状態のセッション行を作成する。
// pod_id省略時は有効なポッド所属から解決する。
// 音声のアップロード先は{user_id}/{session_id}.{ext}。
func (s *Service) Create(ctx context.Context, userID string, req model.CreateSessionRequest) (*model.CreatedSession, error) {
	sessionType := model.SessionType(strings.TrimSpace(req.SessionType))
	if !sessionType.Valid() {
		return nil, model.NewInvalidSessionTypeError()
	}

	tags := NormalizeFocusTags(req.FocusTags)
	if len(tags) < MinFocusTags || len(tags) > MaxFocusTags {
		return nil, model.NewInvalidFocusTagsError()
	}

	ext := NormalizeAudioExt(req.AudioExt)
	if !model.IsAudioExtension(ext) {
		return nil, model.NewInvalidAudioExtError()
	}

	podID, err := s.resolvePodID(ctx, userID, strings.TrimSpace(req.PodID))
	if err != nil {
		return nil, err
	}

	sessionID := s.newID()
	audioPath := fmt.Sprintf("%s/%s.%s", userID, sessionID, ext)

	sess := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		PodID:     podID,
		Type:      sessionType,
		FocusTags: tags,
		AudioPath: audioPath,
		Status:    model.SessionStatusRecorded,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	s.metrics.RecordSessionCreated(string(sessionType))
	s.logger.Info("session created",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.String("pod_id", podID),
		slog.String("session_type", string(sessionType)),
	)

	return &model.CreatedSession{
		SessionID:   sessionID,
		PodID:       podID,
		SessionType: sessionType,
		FocusTags:   tags,
		AudioBucket: s.audioBucket,
		AudioPath:   audioPath,
		Status:      sess.Status,
		SubmittedAt: sess.SubmittedAt,
		Next: &model.NextStep{
			Upload: model.UploadTarget{Bucket: s.audioBucket, Path: audioPath},
		},
	}, nil
}

// resolvePodID はリクエストのpod_idを検証するか、省略時は有効な所属先を返す。
func (s *Service) resolvePodID(ctx context.Context, userID, podID string) (string, error) {
	if podID == "" {
		active, err := s.podRepo.FindActivePodID(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("ポッド所属の取得に失敗しました: %w", err)
		}
		if active == "" {
			return "", model.NewNoActivePodError()
		}
		return active, nil
	}

	if _, err := uuid.Parse(podID); err != nil {
		return "", model.NewForbiddenError()
	}
	member, err := s.podRepo.HasActiveMembership(ctx, userID, podID)
	if err != nil {
		return "", fmt.Errorf("ポッド所属の確認に失敗しました: %w", err)
	}
	if !member {
		return "", model.NewForbiddenError()
	}
	return podID, nil
}

// NormalizeFocusTags は各タグの前後の空白を除去し、空のタグを取り除く。
func NormalizeFocusTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeAudioExt は拡張子を小文字化し英数字以外を取り除く。空の場合はm4aとする。
func NormalizeAudioExt(ext string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(ext) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return model.DefaultAudioExtension
	}
	return b.String()
}
