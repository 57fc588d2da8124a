package model

// Profile はユーザーのプロフィールを表す。
// Goalsはnilにせず、未設定の場合は空スライスとする。
type Profile struct {
	Pseudonym string   `json:"pseudonym"`
	Credits   int      `json:"credits"`
	Goals     []string `json:"goals"`
}

// ProfessionLevel は職業上のキャリア段階を表す。
type ProfessionLevel string

const (
	ProfessionStudent     ProfessionLevel = "student"
	ProfessionEarlyCareer ProfessionLevel = "early_career"
	ProfessionMidLevel    ProfessionLevel = "mid_level"
	ProfessionSenior      ProfessionLevel = "senior"
	ProfessionExecutive   ProfessionLevel = "executive"
)

// Valid はキャリア段階が定義済みの値かを返す。
func (p ProfessionLevel) Valid() bool {
	switch p {
	case ProfessionStudent, ProfessionEarlyCareer, ProfessionMidLevel, ProfessionSenior, ProfessionExecutive:
		return true
	}
	return false
}

// GoalTags はプロフィールに設定できるフォーカスタグ。
var GoalTags = []string{"clarity", "confidence", "structure", "persuasion", "memory", "fluency"}

// MaxGoals はプロフィールに設定できるゴールの最大数。
const MaxGoals = 3

// IsGoalTag はタグがGoalTagsに含まれるかを返す。
func IsGoalTag(tag string) bool {
	for _, g := range GoalTags {
		if g == tag {
			return true
		}
	}
	return false
}

// ProfileInput はオンボーディングで保存するプロフィール入力。
type ProfileInput struct {
	Pseudonym       string          `json:"pseudonym"`
	NativeLanguage  string          `json:"native_language"`
	ProfessionLevel ProfessionLevel `json:"profession_level"`
	Goals           []string        `json:"goals"`
}
