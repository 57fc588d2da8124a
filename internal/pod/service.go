// Package pod はコホート内のポッド割り当てのドメインロジックを提供する。
package pod

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

// AssignRequest はポッド割り当てリクエストを表す。
// CohortIDとFocusAreaの少なくとも一方が必要で、両方ある場合はCohortIDを優先する。
type AssignRequest struct {
	CohortID  string `json:"cohort_id,omitempty"`
	FocusArea string `json:"focus_area,omitempty"`
}

// Service はポッド割り当てのサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
	cohortRepo  repository.CohortRepository
	podRepo     repository.PodRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	cohortRepo repository.CohortRepository,
	podRepo repository.PodRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		profileRepo: profileRepo,
		cohortRepo:  cohortRepo,
		podRepo:     podRepo,
		metrics:     collector,
		logger:      logger,
	}
}

// Assign はユーザーをコホート内のポッドに割り当てる。
// 既に同じコホートで有効な所属がある場合はその所属を返す。
func (s *Service) Assign(ctx context.Context, userID string, req AssignRequest) (*model.Assignment, error) {
	cohortID := strings.TrimSpace(req.CohortID)
	focusArea := strings.TrimSpace(req.FocusArea)
	if cohortID == "" && focusArea == "" {
		return nil, model.NewCohortRequiredError()
	}

	exists, err := s.profileRepo.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの確認に失敗しました: %w", err)
	}
	if !exists {
		return nil, model.NewProfileRequiredError()
	}

	cohort, err := s.findCohort(ctx, cohortID, focusArea)
	if err != nil {
		return nil, err
	}

	assignment, err := s.podRepo.AssignToPod(ctx, userID, cohort.ID)
	if err != nil {
		return nil, fmt.Errorf("ポッドの割り当てに失敗しました: %w", err)
	}
	if assignment == nil {
		return nil, model.NewAssignmentFailedError("no pod returned")
	}

	s.metrics.RecordPodAssignment()
	s.logger.Info("pod assigned",
		slog.String("user_id", userID),
		slog.String("cohort_id", assignment.CohortID),
		slog.String("pod_id", assignment.PodID),
		slog.String("pod_label", assignment.PodLabel),
	)

	return assignment, nil
}

func (s *Service) findCohort(ctx context.Context, cohortID, focusArea string) (*model.Cohort, error) {
	if cohortID != "" {
		if _, err := uuid.Parse(cohortID); err != nil {
			return nil, model.NewCohortIDNotFoundError(cohortID)
		}
		cohort, err := s.cohortRepo.FindActiveByID(ctx, cohortID)
		if err != nil {
			return nil, fmt.Errorf("コホートの取得に失敗しました: %w", err)
		}
		if cohort == nil {
			return nil, model.NewCohortIDNotFoundError(cohortID)
		}
		return cohort, nil
	}

	cohort, err := s.cohortRepo.FindActiveByFocusArea(ctx, focusArea)
	if err != nil {
		return nil, fmt.Errorf("コホートの取得に失敗しました: %w", err)
	}
	if cohort == nil {
		return nil, model.NewCohortNotFoundError(focusArea)
	}
	return cohort, nil
}
