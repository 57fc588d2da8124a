package dashboard

import (
	"context"

	"github.com/rhetor-app/rhetor/internal/model"
	"github.com/rhetor-app/rhetor/internal/repository"
)

// LiveSource はリポジトリ経由でPostgreSQLから読み取るSource。
type LiveSource struct {
	profiles repository.ProfileRepository
	sessions repository.SessionRepository
	reviews  repository.ReviewRepository
}

// NewLiveSource はLiveSourceを生成する。
func NewLiveSource(
	profiles repository.ProfileRepository,
	sessions repository.SessionRepository,
	reviews repository.ReviewRepository,
) *LiveSource {
	return &LiveSource{
		profiles: profiles,
		sessions: sessions,
		reviews:  reviews,
	}
}

func (s *LiveSource) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	return s.profiles.FindByUserID(ctx, userID)
}

func (s *LiveSource) CountPendingReviews(ctx context.Context, userID string) (int, error) {
	return s.reviews.CountPendingByReviewer(ctx, userID)
}

func (s *LiveSource) RecentSessions(ctx context.Context, userID string, limit int) ([]model.SessionSummary, error) {
	return s.sessions.ListRecentWithReviewCount(ctx, userID, limit)
}

func (s *LiveSource) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	return s.sessions.ListIDsByUserID(ctx, userID)
}

func (s *LiveSource) ReviewSessionIDs(ctx context.Context, sessionIDs []string) ([]string, error) {
	return s.reviews.ListSessionIDs(ctx, sessionIDs)
}

var _ Source = (*LiveSource)(nil)
