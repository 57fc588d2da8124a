package dashboard

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhetor-app/rhetor/internal/model"
)

// fixtureFile はフィクスチャYAMLの構造。
type fixtureFile struct {
	Profile struct {
		Pseudonym string   `yaml:"pseudonym"`
		Credits   int      `yaml:"credits"`
		Goals     []string `yaml:"goals"`
	} `yaml:"profile"`
	PendingReviewCount int              `yaml:"pending_review_count"`
	Sessions           []fixtureSession `yaml:"sessions"`
}

type fixtureSession struct {
	ID          string    `yaml:"id"`
	Type        string    `yaml:"session_type"`
	SubmittedAt time.Time `yaml:"submitted_at"`
	Status      string    `yaml:"status"`
	MemoryScore *float64  `yaml:"memory_score"`
	ReviewCount int       `yaml:"review_count"`
}

// FixtureSource はYAMLフィクスチャから読み取るSource。
// UI確認用で、どのユーザーに対しても同じデータを返す。
type FixtureSource struct {
	profile  model.Profile
	pending  int
	sessions []model.SessionSummary
}

// LoadFixtureSource はYAMLファイルからFixtureSourceを読み込む。
func LoadFixtureSource(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture はYAMLバイト列からFixtureSourceを生成する。
func ParseFixture(data []byte) (*FixtureSource, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse dashboard fixture: %w", err)
	}

	src := &FixtureSource{
		profile: model.Profile{
			Pseudonym: f.Profile.Pseudonym,
			Credits:   f.Profile.Credits,
			Goals:     f.Profile.Goals,
		},
		pending:  f.PendingReviewCount,
		sessions: make([]model.SessionSummary, 0, len(f.Sessions)),
	}
	if src.profile.Goals == nil {
		src.profile.Goals = []string{}
	}

	for i, s := range f.Sessions {
		if s.ID == "" {
			return nil, fmt.Errorf("fixture session %d: id is required", i)
		}
		if !model.SessionType(s.Type).Valid() {
			return nil, fmt.Errorf("fixture session %s: invalid session_type %q", s.ID, s.Type)
		}
		if s.ReviewCount < 0 {
			return nil, fmt.Errorf("fixture session %s: review_count must not be negative", s.ID)
		}
		status := model.SessionStatus(s.Status)
		if status == "" {
			status = model.SessionStatusRecorded
		}
		src.sessions = append(src.sessions, model.SessionSummary{
			ID:          s.ID,
			Type:        model.SessionType(s.Type),
			SubmittedAt: s.SubmittedAt,
			Status:      status,
			MemoryScore: s.MemoryScore,
			ReviewCount: s.ReviewCount,
		})
	}

	sort.SliceStable(src.sessions, func(i, j int) bool {
		if src.sessions[i].SubmittedAt.Equal(src.sessions[j].SubmittedAt) {
			return src.sessions[i].ID > src.sessions[j].ID
		}
		return src.sessions[i].SubmittedAt.After(src.sessions[j].SubmittedAt)
	})

	return src, nil
}

func (s *FixtureSource) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	p := s.profile
	p.Goals = append([]string{}, s.profile.Goals...)
	return &p, nil
}

func (s *FixtureSource) CountPendingReviews(ctx context.Context, userID string) (int, error) {
	return s.pending, nil
}

func (s *FixtureSource) RecentSessions(ctx context.Context, userID string, limit int) ([]model.SessionSummary, error) {
	n := len(s.sessions)
	if limit >= 0 && limit < n {
		n = limit
	}
	out := make([]model.SessionSummary, n)
	copy(out, s.sessions[:n])
	return out, nil
}

func (s *FixtureSource) SessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids := make([]string, len(s.sessions))
	for i, sess := range s.sessions {
		ids[i] = sess.ID
	}
	return ids, nil
}

// ReviewSessionIDs はreview_countの数だけsession_idを繰り返して返す。
func (s *FixtureSource) ReviewSessionIDs(ctx context.Context, sessionIDs []string) ([]string, error) {
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}

	var out []string
	for _, sess := range s.sessions {
		if !want[sess.ID] {
			continue
		}
		for i := 0; i < sess.ReviewCount; i++ {
			out = append(out, sess.ID)
		}
	}
	return out, nil
}

var _ Source = (*FixtureSource)(nil)
