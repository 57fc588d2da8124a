package model

import "time"

// SessionType は練習セッションの種別を表す。
type SessionType string

const (
	// SessionTypePrompt はお題に沿って話す練習。
	SessionTypePrompt SessionType = "prompt"
	// SessionTypeFreeform は自由テーマで話す練習。
	SessionTypeFreeform SessionType = "freeform"
	// SessionTypeFlashNotes はメモを見てから記憶で話す練習。
	// 処理後にmemory_scoreが付与される唯一の種別。
	SessionTypeFlashNotes SessionType = "flash_notes"
)

// Valid はセッション種別が定義済みの値かを返す。
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypePrompt, SessionTypeFreeform, SessionTypeFlashNotes:
		return true
	}
	return false
}

// SessionStatus はセッションの処理状態を表す。
// recorded → processing → ready | failed の順に単調に遷移し、failedは終端状態。
type SessionStatus string

const (
	// SessionStatusRecorded は作成直後の状態。音声未アップロードの場合もこの状態に留まる。
	SessionStatusRecorded SessionStatus = "recorded"
	// SessionStatusProcessing は音声処理中の状態。
	SessionStatusProcessing SessionStatus = "processing"
	// SessionStatusReady はレビュー可能な状態。
	SessionStatusReady SessionStatus = "ready"
	// SessionStatusFailed は処理に失敗した終端状態。
	SessionStatusFailed SessionStatus = "failed"
)

// CompletedReviewThreshold はセッションが「フィードバック完了」とみなされるレビュー数。
const CompletedReviewThreshold = 2

// AudioExtensions はアップロードを許可する音声ファイル拡張子。
var AudioExtensions = []string{"m4a", "aac", "mp3", "wav", "caf", "ogg"}

// DefaultAudioExtension はaudio_ext省略時に使用する拡張子。
const DefaultAudioExtension = "m4a"

// IsAudioExtension は拡張子がアップロード許可リストに含まれるかを返す。
func IsAudioExtension(ext string) bool {
	for _, allowed := range AudioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Session は永続化された練習セッションを表す。
// review_countはreviewsテーブルから導出するため、ここには保持しない。
type Session struct {
	ID          string
	UserID      string
	PodID       string
	Type        SessionType
	FocusTags   []string
	AudioPath   string
	Status      SessionStatus
	MemoryScore *float64
	SubmittedAt time.Time
}

// SessionSummary はダッシュボードに表示するセッションの射影。
// ReviewCountは関連するレビュー行の件数から毎回算出する。
type SessionSummary struct {
	ID          string        `json:"id"`
	Type        SessionType   `json:"session_type"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Status      SessionStatus `json:"status"`
	MemoryScore *float64      `json:"memory_score"`
	ReviewCount int           `json:"review_count"`
}

// CreateSessionRequest はセッション作成リクエストを表す。
// PodIDが空の場合はサーバー側で有効なポッド所属から解決する。
type CreateSessionRequest struct {
	SessionType string   `json:"session_type"`
	FocusTags   []string `json:"focus_tags"`
	AudioExt    string   `json:"audio_ext,omitempty"`
	PodID       string   `json:"pod_id,omitempty"`
}

// CreatedSession はセッション作成の結果を表す。
// クライアントから見て作成後は不変で、録音サイクルが終わるまで保持される。
type CreatedSession struct {
	SessionID   string        `json:"session_id"`
	PodID       string        `json:"pod_id"`
	SessionType SessionType   `json:"session_type"`
	FocusTags   []string      `json:"focus_tags"`
	AudioBucket string        `json:"audio_bucket"`
	AudioPath   string        `json:"audio_path"`
	Status      SessionStatus `json:"status"`
	SubmittedAt time.Time     `json:"submitted_at"`
	Next        *NextStep     `json:"next,omitempty"`
}

// NextStep はセッション作成後にクライアントが行う次の操作を表す。
type NextStep struct {
	Upload UploadTarget `json:"upload"`
}

// UploadTarget は音声のアップロード先を表す。
type UploadTarget struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

// AudioExtension はaudio_pathの拡張子を返す。
func (c *CreatedSession) AudioExtension() string {
	for i := len(c.AudioPath) - 1; i >= 0 && c.AudioPath[i] != '/'; i-- {
		if c.AudioPath[i] == '.' {
			return c.AudioPath[i+1:]
		}
	}
	return ""
}

// Review はセッションに対するピアレビュー1件を表す。
// セッションのreview_countはこの行の件数として導出される。
type Review struct {
	ID         string
	SessionID  string
	ReviewerID string
	CreatedAt  time.Time
}

// Dashboard はホーム画面用のビューモデル。
// 取得のたびに再計算される読み取り専用のスナップショットで、キャッシュはしない。
type Dashboard struct {
	Profile                  Profile          `json:"profile"`
	PendingReviewCount       int              `json:"pending_review_count"`
	SessionsAwaitingFeedback int              `json:"sessions_awaiting_feedback"`
	RecentSessions           []SessionSummary `json:"recent_sessions"`
}
