// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, forbidden, data_source, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryDataSource = "data_source"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidSessionType = "INVALID_SESSION_TYPE"
	ErrCodeInvalidFocusTags   = "INVALID_FOCUS_TAGS"
	ErrCodeInvalidAudioExt    = "INVALID_AUDIO_EXT"
	ErrCodeNoActivePod        = "NO_ACTIVE_POD"
	ErrCodeProfileRequired    = "PROFILE_REQUIRED"
	ErrCodeCohortRequired     = "COHORT_OR_FOCUS_AREA_REQUIRED"
	ErrCodeCohortNotFound     = "COHORT_NOT_FOUND"
	ErrCodeSessionIDRequired  = "SESSION_ID_REQUIRED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeInvalidProfile     = "INVALID_PROFILE"
	ErrCodePseudonymTaken     = "PSEUDONYM_TAKEN"
	ErrCodeDataSource         = "DATA_SOURCE_ERROR"
	ErrCodeAggregation        = "AGGREGATION_ERROR"
	ErrCodeSignedURLFailed    = "SIGNED_URL_FAILED"
	ErrCodeAssignmentFailed   = "ASSIGNMENT_FAILED"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: CategoryAuth,
		Action:   "Sign in again and retry.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid JSON body",
		Category: CategoryValidation,
		Action:   "Send a well-formed JSON request body.",
	}
}

// NewInvalidSessionTypeError はセッション種別が不正な場合のエラーを生成する。
func NewInvalidSessionTypeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSessionType,
		Message:  "session_type must be one of: prompt, freeform, flash_notes",
		Category: CategoryValidation,
		Action:   "Choose a supported session type.",
	}
}

// NewInvalidFocusTagsError はフォーカスタグの件数が範囲外の場合のエラーを生成する。
func NewInvalidFocusTagsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFocusTags,
		Message:  "focus_tags must contain 1 to 2 values",
		Category: CategoryValidation,
		Action:   "Pick one or two focus tags.",
	}
}

// NewInvalidAudioExtError は音声拡張子が許可されていない場合のエラーを生成する。
func NewInvalidAudioExtError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAudioExt,
		Message:  "audio_ext must be one of: m4a, aac, mp3, wav, caf, ogg",
		Category: CategoryValidation,
		Action:   "Record in a supported audio format.",
	}
}

// NewNoActivePodError は有効なポッド所属がない場合のエラーを生成する。
func NewNoActivePodError() *APIError {
	return &APIError{
		Code:     ErrCodeNoActivePod,
		Message:  "No active pod membership. Complete onboarding cohort assignment first.",
		Category: CategoryValidation,
		Action:   "Join a cohort before recording a session.",
	}
}

// NewProfileRequiredError はプロフィール未作成でポッド割り当てを要求した場合のエラーを生成する。
func NewProfileRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileRequired,
		Message:  "Profile not found. Create your profile first.",
		Category: CategoryValidation,
		Action:   "Finish profile setup before choosing a cohort.",
	}
}

// NewCohortRequiredError はcohort_idとfocus_areaがどちらも無い場合のエラーを生成する。
func NewCohortRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeCohortRequired,
		Message:  "Provide cohort_id or focus_area",
		Category: CategoryValidation,
		Action:   "Select a cohort to join.",
	}
}

// NewCohortNotFoundError はfocus_areaに一致する有効なコホートが無い場合のエラーを生成する。
func NewCohortNotFoundError(focusArea string) *APIError {
	return &APIError{
		Code:     ErrCodeCohortNotFound,
		Message:  fmt.Sprintf("No active cohort found for focus_area: %s", focusArea),
		Category: CategoryNotFound,
		Action:   "Choose another focus area.",
	}
}

// NewCohortIDNotFoundError はcohort_idに一致する有効なコホートが無い場合のエラーを生成する。
func NewCohortIDNotFoundError(cohortID string) *APIError {
	return &APIError{
		Code:     ErrCodeCohortNotFound,
		Message:  fmt.Sprintf("No active cohort found for cohort_id: %s", cohortID),
		Category: CategoryNotFound,
		Action:   "Choose another cohort.",
	}
}

// NewSessionIDRequiredError はsession_idが空の場合のエラーを生成する。
func NewSessionIDRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionIDRequired,
		Message:  "session_id is required",
		Category: CategoryValidation,
		Action:   "Specify the session to play back.",
	}
}

// NewForbiddenError は閲覧権限の無いリソースへのアクセスエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden",
		Category: CategoryForbidden,
		Action:   "Only the session owner and its assigned reviewers can access this audio.",
	}
}

// NewProfileNotFoundError はプロフィール行が存在しない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found",
		Category: CategoryNotFound,
		Action:   "Complete onboarding to create your profile.",
	}
}

// NewInvalidProfileError はプロフィール入力が不正な場合のエラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("Invalid profile: %s", reason),
		Category: CategoryValidation,
		Action:   "Fix the highlighted field and save again.",
	}
}

// NewPseudonymTakenError は表示名が既に使われている場合のエラーを生成する。
func NewPseudonymTakenError() *APIError {
	return &APIError{
		Code:     ErrCodePseudonymTaken,
		Message:  "This pseudonym is already taken",
		Category: CategoryValidation,
		Action:   "Pick a different pseudonym.",
	}
}

// NewDataSourceError はデータ取得失敗エラーを生成する。
// 下位のエラーメッセージをそのまま含める。
func NewDataSourceError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeDataSource,
		Message:  cause.Error(),
		Category: CategoryDataSource,
		Action:   "Pull to refresh and try again.",
	}
}

// NewAggregationError はレビュー集計の失敗エラーを生成する。
func NewAggregationError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeAggregation,
		Message:  cause.Error(),
		Category: CategoryDataSource,
		Action:   "Pull to refresh and try again.",
	}
}

// NewSignedURLFailedError は署名付きURLの発行失敗エラーを生成する。
func NewSignedURLFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSignedURLFailed,
		Message:  "Failed to create signed URL",
		Category: CategorySystem,
		Action:   "Try again in a moment.",
	}
}

// NewAssignmentFailedError はポッド割り当てが失敗した場合のエラーを生成する。
func NewAssignmentFailedError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeAssignmentFailed,
		Message:  fmt.Sprintf("Assignment failed: %s", detail),
		Category: CategorySystem,
		Action:   "Try again in a moment.",
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドのエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method not allowed",
		Category: CategoryValidation,
		Action:   "Use the documented HTTP method for this endpoint.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal error",
		Category: CategorySystem,
		Action:   "Try again in a moment.",
	}
}
