package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rhetor-app/rhetor/internal/model"
)

// PostgresCohortRepo はPostgreSQLを使用したコホートリポジトリ。
type PostgresCohortRepo struct {
	db *sql.DB
}

// NewPostgresCohortRepo はPostgresCohortRepoを生成する。
func NewPostgresCohortRepo(db *sql.DB) *PostgresCohortRepo {
	return &PostgresCohortRepo{db: db}
}

// FindActiveByFocusArea はfocus_areaに一致する有効なコホートのうち最も古いものを返す。
func (r *PostgresCohortRepo) FindActiveByFocusArea(ctx context.Context, focusArea string) (*model.Cohort, error) {
	return r.findOne(ctx,
		`SELECT id, name, focus_area, is_active, created_at
		 FROM rhetor_cohorts
		 WHERE focus_area = $1 AND is_active = true
		 ORDER BY created_at ASC
		 LIMIT 1`,
		focusArea,
	)
}

// FindActiveByID は指定IDの有効なコホートを返す。
func (r *PostgresCohortRepo) FindActiveByID(ctx context.Context, id string) (*model.Cohort, error) {
	return r.findOne(ctx,
		`SELECT id, name, focus_area, is_active, created_at
		 FROM rhetor_cohorts
		 WHERE id = $1 AND is_active = true`,
		id,
	)
}

func (r *PostgresCohortRepo) findOne(ctx context.Context, query string, arg string) (*model.Cohort, error) {
	c := &model.Cohort{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&c.ID, &c.Name, &c.FocusArea, &c.IsActive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cohort: %w", err)
	}
	return c, nil
}

// PostgresPodRepo はPostgreSQLを使用したポッドリポジトリ。
type PostgresPodRepo struct {
	db *sql.DB
}

// NewPostgresPodRepo はPostgresPodRepoを生成する。
func NewPostgresPodRepo(db *sql.DB) *PostgresPodRepo {
	return &PostgresPodRepo{db: db}
}

// FindActivePodID はユーザーの有効な所属先ポッドIDを返す。
// 複数ある場合は最も早く参加したポッドを返す。
func (r *PostgresPodRepo) FindActivePodID(ctx context.Context, userID string) (string, error) {
	var podID string
	err := r.db.QueryRowContext(ctx,
		`SELECT pod_id FROM rhetor_pod_memberships
		 WHERE user_id = $1 AND left_at IS NULL
		 ORDER BY joined_at ASC
		 LIMIT 1`,
		userID,
	).Scan(&podID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve pod membership: %w", err)
	}
	return podID, nil
}

// HasActiveMembership はユーザーが指定ポッドに有効な所属を持つかを返す。
func (r *PostgresPodRepo) HasActiveMembership(ctx context.Context, userID, podID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM rhetor_pod_memberships
		   WHERE user_id = $1 AND pod_id = $2 AND left_at IS NULL
		 )`,
		userID, podID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to verify pod membership: %w", err)
	}
	return exists, nil
}

// AssignToPod はrhetor_assign_to_podでユーザーをコホート内のポッドに割り当てる。
func (r *PostgresPodRepo) AssignToPod(ctx context.Context, userID, cohortID string) (*model.Assignment, error) {
	a := &model.Assignment{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT cohort_id, pod_id, pod_label FROM rhetor_assign_to_pod($1, $2)`,
		userID, cohortID,
	).Scan(&a.CohortID, &a.PodID, &a.PodLabel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to assign pod: %w", err)
	}
	return a, nil
}

// compile-time interface check
var (
	_ CohortRepository = (*PostgresCohortRepo)(nil)
	_ PodRepository    = (*PostgresPodRepo)(nil)
)
