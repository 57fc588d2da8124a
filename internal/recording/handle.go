package recording

import "github.com/rhetor-app/rhetor/internal/model"

// HandleKind はセッションハンドルの状態を表す。
type HandleKind int

const (
	// HandleAbsent はセッションを保持していない状態。
	HandleAbsent HandleKind = iota
	// HandleUnresolved はセッション作成の応答待ちの状態。
	HandleUnresolved
	// HandlePresent は作成済みセッションを保持している状態。
	HandlePresent
)

// SessionHandle は録音サイクルが保持するCreatedSession。
// ValueはKindがHandlePresentの場合のみ非nil。
type SessionHandle struct {
	Kind  HandleKind
	Value *model.CreatedSession
}

// Present はハンドルが作成済みセッションを保持しているかを返す。
func (h SessionHandle) Present() bool {
	return h.Kind == HandlePresent && h.Value != nil
}

func absentHandle() SessionHandle     { return SessionHandle{Kind: HandleAbsent} }
func unresolvedHandle() SessionHandle { return SessionHandle{Kind: HandleUnresolved} }

func presentHandle(s *model.CreatedSession) SessionHandle {
	return SessionHandle{Kind: HandlePresent, Value: s}
}
