package dashboard

import (
	"errors"
	"fmt"
)

var (
	// ErrDataSource は4つの独立した読み取りのいずれかが失敗したことを示す。
	ErrDataSource = errors.New("dashboard data source failed")
	// ErrAggregation はレビュー行の集計読み取りが失敗したことを示す。
	ErrAggregation = errors.New("dashboard aggregation failed")
	// ErrProfileNotFound はユーザーのプロフィール行が存在しないことを示す。
	ErrProfileNotFound = errors.New("profile not found")
)

// Error はダッシュボード取得の失敗を表す。
// Kindは上記の種別のいずれかで、errors.Isで判定できる。
type Error struct {
	Op   string
	Kind error
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap は種別と原因の両方を返す。
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
