package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// ListSessionIDs は指定セッション群に付いたレビューのsession_idをレビュー1件につき1行で返す。
func (r *PostgresReviewRepo) ListSessionIDs(ctx context.Context, sessionIDs []string) ([]string, error) {
	if len(sessionIDs) == 0 {
		return []string{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM rhetor_reviews WHERE session_id = ANY($1::uuid[])`,
		pq.Array(sessionIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return ids, nil
}

// CountPendingByReviewer はレビュアーに割り当てられた未完了のレビュー数を返す。
func (r *PostgresReviewRepo) CountPendingByReviewer(ctx context.Context, reviewerID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rhetor_review_queue
		 WHERE assigned_reviewer_id = $1 AND status = 'pending'`,
		reviewerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reviews: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
