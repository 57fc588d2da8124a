package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rhetor-app/rhetor/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用した練習セッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成し、DBが採番したsubmitted_atをsessionに反映する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rhetor_sessions (id, user_id, pod_id, session_type, focus_tags, audio_path, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING submitted_at`,
		s.ID, s.UserID, s.PodID, string(s.Type), pq.Array(s.FocusTags), s.AudioPath, string(s.Status),
	).Scan(&s.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// ListRecentWithReviewCount はユーザーの直近のセッションをsubmitted_at降順で取得する。
// 同時刻のセッションはidの降順で並べ、結果を決定的にする。
func (r *PostgresSessionRepo) ListRecentWithReviewCount(ctx context.Context, userID string, limit int) ([]model.SessionSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.session_type, s.submitted_at, s.status, s.memory_score, COUNT(rv.id)
		 FROM rhetor_sessions s
		 LEFT JOIN rhetor_reviews rv ON rv.session_id = s.id
		 WHERE s.user_id = $1
		 GROUP BY s.id
		 ORDER BY s.submitted_at DESC, s.id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.SessionSummary{}
	for rows.Next() {
		var (
			s           model.SessionSummary
			sessionType string
			status      string
			memoryScore sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &sessionType, &s.SubmittedAt, &status, &memoryScore, &s.ReviewCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Type = model.SessionType(sessionType)
		s.Status = model.SessionStatus(status)
		if memoryScore.Valid {
			score := memoryScore.Float64
			s.MemoryScore = &score
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// ListIDsByUserID はユーザーの全セッションIDを返す。
func (r *PostgresSessionRepo) ListIDsByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM rhetor_sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session ids: %w", err)
	}
	return ids, nil
}

// FindVisibleAudioPath は閲覧者がアクセスできるセッションの音声パスを返す。
// 閲覧できるのはオーナーとレビューキューで割り当てられたレビュアーのみ。
func (r *PostgresSessionRepo) FindVisibleAudioPath(ctx context.Context, sessionID, viewerID string) (string, error) {
	var audioPath string
	err := r.db.QueryRowContext(ctx,
		`SELECT s.audio_path
		 FROM rhetor_sessions s
		 WHERE s.id = $1
		   AND (
		     s.user_id = $2
		     OR EXISTS (
		       SELECT 1 FROM rhetor_review_queue q
		       WHERE q.session_id = s.id AND q.assigned_reviewer_id = $2
		     )
		   )`,
		sessionID, viewerID,
	).Scan(&audioPath)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	return audioPath, nil
}

// ListOrphanCandidates はbefore以前に作成されrecordedのまま残っているセッションを古い順に返す。
func (r *PostgresSessionRepo) ListOrphanCandidates(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, pod_id, session_type, audio_path, status, submitted_at
		 FROM rhetor_sessions
		 WHERE status = 'recorded' AND submitted_at < $1
		 ORDER BY submitted_at ASC
		 LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan candidates: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s := &model.Session{}
		var sessionType, status string
		if err := rows.Scan(&s.ID, &s.UserID, &s.PodID, &sessionType, &s.AudioPath, &status, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan orphan candidate: %w", err)
		}
		s.Type = model.SessionType(sessionType)
		s.Status = model.SessionStatus(status)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orphan candidates: %w", err)
	}
	return sessions, nil
}

// MarkFailed はrecordedのセッションをfailedに更新する。
// 他の状態に遷移済みのセッションは変更しない。
func (r *PostgresSessionRepo) MarkFailed(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rhetor_sessions SET status = 'failed', updated_at = now()
		 WHERE id = $1 AND status = 'recorded'`,
		sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark session failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
