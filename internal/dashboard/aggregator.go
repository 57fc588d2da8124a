// Package dashboard はホーム画面用のダッシュボードビューモデルを集約する。
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhetor-app/rhetor/internal/metrics"
	"github.com/rhetor-app/rhetor/internal/model"
)

// RecentLimit はダッシュボードに表示する直近セッションの最大件数。
const RecentLimit = 5

// Source はダッシュボードの集約に必要な読み取りを提供する。
type Source interface {
	// Profile はプロフィールを返す。行が無い場合はnilを返す。
	Profile(ctx context.Context, userID string) (*model.Profile, error)

	// CountPendingReviews はユーザーに割り当てられた未完了レビュー数を返す。
	CountPendingReviews(ctx context.Context, userID string) (int, error)

	// RecentSessions はsubmitted_at降順で最大limit件のセッションをreview_count付きで返す。
	RecentSessions(ctx context.Context, userID string, limit int) ([]model.SessionSummary, error)

	// SessionIDs はユーザーの全セッションIDを返す。
	SessionIDs(ctx context.Context, userID string) ([]string, error)

	// ReviewSessionIDs は指定セッション群のレビュー行ごとのsession_idを返す。
	ReviewSessionIDs(ctx context.Context, sessionIDs []string) ([]string, error)
}

// Aggregator はSourceからダッシュボードを組み立てる。
// 状態を持たないため複数のゴルーチンから同時に呼び出せる。
type Aggregator struct {
	source  Source
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewAggregator はAggregatorを生成する。collectorがnilの場合は記録しない。
func NewAggregator(source Source, collector metrics.MetricsCollector, logger *slog.Logger) *Aggregator {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Aggregator{
		source:  source,
		metrics: collector,
		logger:  logger,
	}
}

// Fetch はユーザーのダッシュボードを取得する。
// 独立した4つの読み取りを並行に行い、いずれかが失敗した場合は部分的な結果を返さない。
func (a *Aggregator) Fetch(ctx context.Context, userID string) (*model.Dashboard, error) {
	start := time.Now()

	dashboard, err := a.fetch(ctx, userID)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
		a.logger.Warn("dashboard fetch failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	a.metrics.RecordDashboardFetch(result, time.Since(start))

	return dashboard, err
}

func (a *Aggregator) fetch(ctx context.Context, userID string) (*model.Dashboard, error) {
	var (
		profile    *model.Profile
		pending    int
		recent     []model.SessionSummary
		sessionIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := a.source.Profile(gctx, userID)
		if err != nil {
			return &Error{Op: "profile", Kind: ErrDataSource, Err: err}
		}
		profile = p
		return nil
	})

	g.Go(func() error {
		n, err := a.source.CountPendingReviews(gctx, userID)
		if err != nil {
			return &Error{Op: "pending reviews", Kind: ErrDataSource, Err: err}
		}
		pending = n
		return nil
	})

	g.Go(func() error {
		s, err := a.source.RecentSessions(gctx, userID, RecentLimit)
		if err != nil {
			return &Error{Op: "recent sessions", Kind: ErrDataSource, Err: err}
		}
		recent = s
		return nil
	})

	g.Go(func() error {
		ids, err := a.source.SessionIDs(gctx, userID)
		if err != nil {
			return &Error{Op: "session ids", Kind: ErrDataSource, Err: err}
		}
		sessionIDs = ids
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if profile == nil {
		return nil, &Error{Op: "profile", Kind: ErrProfileNotFound}
	}

	awaiting, err := a.countAwaitingFeedback(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}

	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	if recent == nil {
		recent = []model.SessionSummary{}
	}
	goals := profile.Goals
	if goals == nil {
		goals = []string{}
	}

	return &model.Dashboard{
		Profile: model.Profile{
			Pseudonym: profile.Pseudonym,
			Credits:   profile.Credits,
			Goals:     goals,
		},
		PendingReviewCount:       pending,
		SessionsAwaitingFeedback: awaiting,
		RecentSessions:           recent,
	}, nil
}

// countAwaitingFeedback はレビュー数がCompletedReviewThreshold未満のセッション数を返す。
// セッションが無い場合はレビュー行を読まない。
func (a *Aggregator) countAwaitingFeedback(ctx context.Context, sessionIDs []string) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	reviewed, err := a.source.ReviewSessionIDs(ctx, sessionIDs)
	if err != nil {
		return 0, &Error{Op: "review counts", Kind: ErrAggregation, Err: err}
	}

	counts := make(map[string]int, len(sessionIDs))
	for _, id := range reviewed {
		counts[id]++
	}

	awaiting := 0
	for _, id := range sessionIDs {
		if counts[id] < model.CompletedReviewThreshold {
			awaiting++
		}
	}
	return awaiting, nil
}
