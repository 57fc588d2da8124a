// Package profile はオンボーディング時のプロフィール保存を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/repository"
	"github.com/rhetor-app/rhetor/internal/security"
)

// 表示名の文字数範囲。
const (
	MinPseudonymLength = 3
	MaxPseudonymLength = 24
)

// Service はプロフィール保存のサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
	sanitizer   security.TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profileRepo repository.ProfileRepository, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Save は呼び出しユーザーのプロフィールを作成または更新する。creditsは変更しない。
func (s *Service) Save(ctx context.Context, userID string, in model.ProfileInput) (*model.Profile, error) {
	normalized, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.Upsert(ctx, userID, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrPseudonymTaken) {
			return nil, model.NewPseudonymTakenError()
		}
		return nil, fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}

	s.logger.Info("profile saved",
		slog.String("user_id", userID),
		slog.Int("goals", len(profile.Goals)),
	)

	return profile, nil
}

// normalize は入力を検証し、保存する形に整える。
func (s *Service) normalize(in model.ProfileInput) (model.ProfileInput, error) {
	pseudonym := s.sanitizer.SanitizeText(in.Pseudonym)
	if strings.ContainsAny(pseudonym, "<>") {
		return model.ProfileInput{}, model.NewInvalidProfileError("pseudonym must be plain text")
	}
	if n := utf8.RuneCountInString(pseudonym); n < MinPseudonymLength || n > MaxPseudonymLength {
		return model.ProfileInput{}, model.NewInvalidProfileError(
			fmt.Sprintf("pseudonym must be %d to %d characters", MinPseudonymLength, MaxPseudonymLength))
	}

	level := model.ProfessionLevel(strings.TrimSpace(string(in.ProfessionLevel)))
	if level != "" && !level.Valid() {
		return model.ProfileInput{}, model.NewInvalidProfileError("unknown profession_level")
	}

	goals := make([]string, 0, len(in.Goals))
	seen := make(map[string]bool, len(in.Goals))
	for _, g := range in.Goals {
		g = strings.ToLower(strings.TrimSpace(g))
		if !model.IsGoalTag(g) {
			return model.ProfileInput{}, model.NewInvalidProfileError(fmt.Sprintf("unknown goal %q", g))
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		goals = append(goals, g)
	}
	if len(goals) > model.MaxGoals {
		return model.ProfileInput{}, model.NewInvalidProfileError(
			fmt.Sprintf("at most %d goals are allowed", model.MaxGoals))
	}

	return model.ProfileInput{
		Pseudonym:       pseudonym,
		NativeLanguage:  strings.TrimSpace(in.NativeLanguage),
		ProfessionLevel: level,
		Goals:           goals,
	}, nil
}
