package model

import "time"

// Cohort は同じフォーカス領域を共有するユーザーの集団を表す。
type Cohort struct {
	ID        string
	Name      string
	FocusArea string
	IsActive  bool
	CreatedAt time.Time
}

// Assignment はポッド割り当ての結果を表す。
type Assignment struct {
	UserID   string `json:"user_id"`
	CohortID string `json:"cohort_id"`
	PodID    string `json:"pod_id"`
	PodLabel string `json:"pod_label"`
}

// SignedAudioURL はセッション音声の署名付きURLを表す。
type SignedAudioURL struct {
	SessionID string `json:"session_id"`
	AudioPath string `json:"audio_path"`
	ExpiresIn int    `json:"expires_in"`
	SignedURL string `json:"signed_url"`
}
