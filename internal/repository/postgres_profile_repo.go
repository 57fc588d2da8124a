package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rhetor-app/rhetor/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const pseudonymConstraint = "rhetor_users_pseudonym_key"

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	var goals pq.StringArray
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT pseudonym, credits, goals FROM rhetor_users WHERE id = $1`,
		userID,
	).Scan(&profile.Pseudonym, &profile.Credits, &goals)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	profile.Goals = nonNilStrings(goals)
	return profile, nil
}

// Exists はプロフィール行が存在するかを返す。
func (r *PostgresProfileRepo) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM rhetor_users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to verify profile: %w", err)
	}
	return exists, nil
}

// Upsert はプロフィールを作成または更新する。creditsは変更しない。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, userID string, in model.ProfileInput) (*model.Profile, error) {
	level := sql.NullString{String: string(in.ProfessionLevel), Valid: in.ProfessionLevel != ""}

	var goals pq.StringArray
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rhetor_users (id, pseudonym, native_language, profession_level, goals)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   pseudonym = EXCLUDED.pseudonym,
		   native_language = EXCLUDED.native_language,
		   profession_level = EXCLUDED.profession_level,
		   goals = EXCLUDED.goals,
		   updated_at = now()
		 RETURNING pseudonym, credits, goals`,
		userID, in.Pseudonym, in.NativeLanguage, level, pq.Array(nonNilStrings(in.Goals)),
	).Scan(&profile.Pseudonym, &profile.Credits, &goals)
	if err != nil {
		if isUniqueViolation(err, pseudonymConstraint) {
			return nil, ErrPseudonymTaken
		}
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	profile.Goals = nonNilStrings(goals)
	return profile, nil
}

// isUniqueViolation は指定制約の一意制約違反かを判定する。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation && pqErr.Constraint == constraint
}

func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
