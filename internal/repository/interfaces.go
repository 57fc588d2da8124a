// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rhetor-app/rhetor/internal/model"
)

// ErrPseudonymTaken は表示名が他のユーザーに使用されている場合に返される。
var ErrPseudonymTaken = errors.New("pseudonym already taken")

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Exists はプロフィール行が存在するかを返す。
	Exists(ctx context.Context, userID string) (bool, error)

	// Upsert はプロフィールを作成または更新する。creditsは変更しない。
	// 表示名が重複する場合はErrPseudonymTakenを返す。
	Upsert(ctx context.Context, userID string, in model.ProfileInput) (*model.Profile, error)
}

// SessionRepository は練習セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成し、DBが採番したsubmitted_atをsessionに反映する。
	Create(ctx context.Context, session *model.Session) error

	// ListRecentWithReviewCount はユーザーの直近のセッションをsubmitted_at降順で取得する。
	// review_countは関連するレビュー行の件数。
	ListRecentWithReviewCount(ctx context.Context, userID string, limit int) ([]model.SessionSummary, error)

	// ListIDsByUserID はユーザーの全セッションIDを返す。件数の上限は設けない。
	ListIDsByUserID(ctx context.Context, userID string) ([]string, error)

	// FindVisibleAudioPath は閲覧者がアクセスできるセッションの音声パスを返す。
	// オーナーまたはレビュー担当者でない場合、セッションが無い場合は空文字を返す。
	FindVisibleAudioPath(ctx context.Context, sessionID, viewerID string) (string, error)

	// ListOrphanCandidates はbefore以前に作成されrecordedのまま残っているセッションを古い順に返す。
	ListOrphanCandidates(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)

	// MarkFailed はrecordedのセッションをfailedに更新する。更新した場合はtrueを返す。
	MarkFailed(ctx context.Context, sessionID string) (bool, error)
}

// ReviewRepository はレビュー行の読み取りインターフェース。
type ReviewRepository interface {
	// ListSessionIDs は指定セッション群に付いたレビューのsession_idをレビュー1件につき1行で返す。
	ListSessionIDs(ctx context.Context, sessionIDs []string) ([]string, error)

	// CountPendingByReviewer はレビュアーに割り当てられた未完了のレビュー数を返す。
	CountPendingByReviewer(ctx context.Context, reviewerID string) (int, error)
}

// CohortRepository はコホートの読み取りインターフェース。
type CohortRepository interface {
	// FindActiveByFocusArea はfocus_areaに一致する有効なコホートのうち最も古いものを返す。
	// 見つからない場合はnilを返す。
	FindActiveByFocusArea(ctx context.Context, focusArea string) (*model.Cohort, error)

	// FindActiveByID は指定IDの有効なコホートを返す。見つからない場合はnilを返す。
	FindActiveByID(ctx context.Context, id string) (*model.Cohort, error)
}

// PodRepository はポッドと所属の永続化インターフェース。
type PodRepository interface {
	// FindActivePodID はユーザーの有効な所属先ポッドIDを返す。無い場合は空文字を返す。
	FindActivePodID(ctx context.Context, userID string) (string, error)

	// HasActiveMembership はユーザーが指定ポッドに有効な所属を持つかを返す。
	HasActiveMembership(ctx context.Context, userID, podID string) (bool, error)

	// AssignToPod はrhetor_assign_to_podでユーザーをコホート内のポッドに割り当てる。
	// 関数が行を返さなかった場合はnilを返す。
	AssignToPod(ctx context.Context, userID, cohortID string) (*model.Assignment, error)
}
