package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/learnpath/internal/grading"
	"github.com/pavelanni/learnpath/internal/i18n"
	"github.com/pavelanni/learnpath/internal/llm/prompts"
	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/progress"
	"github.com/pavelanni/learnpath/internal/remedial"
	"github.com/pavelanni/learnpath/internal/store"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type failingGen struct{}

func (failingGen) Complete(context.Context, string, string) (string, error) {
	return "", errors.New("service unavailable")
}

func fourQuestionLesson(id string, order int) model.Lesson {
	q := func(id string, tag string) model.Question {
		return model.Question{
			ID: id, QuestionText: "?", Tags: []string{tag}, CorrectAnswerID: "right",
			Options: []model.Option{{ID: "right"}, {ID: "wrong"}},
		}
	}
	return model.Lesson{
		ID: id, Title: "Lesson " + id, Order: order, XP: 100,
		Difficulty: model.DifficultyBeginner,
		Assessment: model.Assessment{
			PassingScore: 80,
			Questions: []model.Question{
				q("q1", "variables"), q("q2", "loops"), q("q3", "loops"), q("q4", "functions"),
			},
		},
	}
}

type testEnv struct {
	svc   *Service
	store *store.Store
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.UpsertTopic(ctx, model.Topic{ID: "go", Name: "Go"}); err != nil {
		t.Fatalf("UpsertTopic: %v", err)
	}
	for i, id := range []string{"l1", "l2", "l3"} {
		if err := st.UpsertLesson(ctx, "go", fourQuestionLesson(id, i+1)); err != nil {
			t.Fatalf("UpsertLesson: %v", err)
		}
	}

	clock := func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }
	svc := NewService(st, st, progress.NewUpdater(st, st, clock), remedial.New(failingGen{}, 50*time.Millisecond))
	return testEnv{svc: svc, store: st}
}

func answers(pairs ...string) []model.Answer {
	var out []model.Answer
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.Answer{QuestionID: pairs[i], SelectedOptionID: pairs[i+1]})
	}
	return out
}

func TestSubmitFailingScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, "u1", "l1",
		answers("q1", "right", "q2", "wrong", "q3", "wrong", "q4", "right"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != model.SubmissionRequiresReview || res.Score != 50 {
		t.Errorf("got status=%s score=%d, want requires_review/50", res.Status, res.Score)
	}
	if res.RemedialLesson == nil {
		t.Fatal("expected fallback remedial lesson")
	}
	if len(res.RemedialLesson.Tags) != 1 || res.RemedialLesson.Tags[0] != "loops" {
		t.Errorf("remedial tags = %v, want [loops]", res.RemedialLesson.Tags)
	}
	if !strings.Contains(res.RemedialLesson.Title, "loops") {
		t.Errorf("remedial title = %q", res.RemedialLesson.Title)
	}

	rec, err := env.store.GetProgress(ctx, "u1", "l1")
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if rec.Status != model.StatusRequiresReview || len(rec.QuizAttempts) != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if _, err := env.store.GetProfile(ctx, "u1"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("failed submission must not create a profile, got %v", err)
	}
}

func TestSubmitPassAwardsXPOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	all := answers("q1", "right", "q2", "right", "q3", "right", "q4", "right")

	first, err := env.svc.Submit(ctx, "u1", "l1", all)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Status != model.SubmissionPassed || first.Score != 100 || first.XPEarned != 100 {
		t.Errorf("first pass = %+v", first)
	}
	if first.NextLessonID != "l2" {
		t.Errorf("NextLessonID = %q, want l2", first.NextLessonID)
	}

	second, err := env.svc.Submit(ctx, "u1", "l1", all)
	if err != nil {
		t.Fatalf("Submit again: %v", err)
	}
	if second.XPEarned != 0 {
		t.Errorf("second pass awarded %d XP", second.XPEarned)
	}

	p, err := env.store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.TotalXP != 100 || p.CurrentStreak != 1 || p.LastActivityDate != "2024-03-10" {
		t.Errorf("unexpected profile: %+v", p)
	}

	rec, _ := env.store.GetProgress(ctx, "u1", "l1")
	if len(rec.QuizAttempts) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(rec.QuizAttempts))
	}
}

func TestSubmitLastLessonHasNoNext(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Submit(context.Background(), "u1", "l3",
		answers("q1", "right", "q2", "right", "q3", "right", "q4", "right"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.NextLessonID != "" {
		t.Errorf("NextLessonID = %q, want none", res.NextLessonID)
	}
	data, _ := json.Marshal(res)
	if !strings.Contains(string(data), `"nextLessonId":null`) {
		t.Errorf("JSON = %s", data)
	}
}

func TestSubmitUnansweredNoStub(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Submit(context.Background(), "u1", "l1", answers("q1", "right"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Score != 25 || res.Status != model.SubmissionRequiresReview {
		t.Errorf("got %+v", res)
	}
	if res.RemedialLesson != nil {
		t.Errorf("expected no remedial lesson, got %+v", res.RemedialLesson)
	}
}

func TestSubmitErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userID   string
		lessonID string
		answers  []model.Answer
		want     error
	}{
		{"unauthenticated", "", "l1", answers("q1", "right"), model.ErrUnauthenticated},
		{"unknown lesson", "u1", "nope", answers("q1", "right"), model.ErrNotFound},
		{"nil answers", "u1", "l1", nil, model.ErrInvalidInput},
		{"empty question id", "u1", "l1", answers("", "right"), model.ErrInvalidInput},
		{"empty option id", "u1", "l1", answers("q1", ""), model.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Submit(ctx, tt.userID, tt.lessonID, tt.answers)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if n, _ := env.store.AttemptCount(ctx, "u1", "l1"); n != 0 {
		t.Errorf("rejected submissions recorded %d attempts", n)
	}
}

type fakeLessons struct{ lesson model.Lesson }

func (f fakeLessons) GetLesson(context.Context, string) (model.Lesson, error) { return f.lesson, nil }

type fakeAttempts struct{ n int }

func (f *fakeAttempts) AppendAttempt(context.Context, string, string, int, model.ProgressStatus, []model.Answer) (model.QuizAttempt, error) {
	f.n++
	return model.QuizAttempt{}, nil
}

type failingProgress struct{}

func (failingProgress) ApplyPass(context.Context, string, model.Lesson, grading.Result) (progress.Outcome, error) {
	return progress.Outcome{}, model.ErrTransientStore
}

func TestSubmitProfileFailureKeepsAttempt(t *testing.T) {
	attempts := &fakeAttempts{}
	svc := NewService(fakeLessons{fourQuestionLesson("l1", 1)}, attempts, failingProgress{}, remedial.New(nil, 0))

	_, err := svc.Submit(context.Background(), "u1", "l1",
		answers("q1", "right", "q2", "right", "q3", "right", "q4", "right"))
	if !errors.Is(err, model.ErrTransientStore) {
		t.Fatalf("expected ErrTransientStore, got %v", err)
	}
	if attempts.n != 1 {
		t.Errorf("expected the attempt to be recorded once, got %d", attempts.n)
	}
}

func TestSubmitEmptyLesson(t *testing.T) {
	empty := fourQuestionLesson("l1", 1)
	empty.Assessment.Questions = nil
	attempts := &fakeAttempts{}
	svc := NewService(fakeLessons{empty}, attempts, failingProgress{}, remedial.New(nil, 0))

	_, err := svc.Submit(context.Background(), "u1", "l1", answers("q1", "right"))
	if !errors.Is(err, model.ErrInvalidLessonState) {
		t.Fatalf("expected ErrInvalidLessonState, got %v", err)
	}
	if attempts.n != 0 {
		t.Errorf("attempt recorded for ungradable lesson")
	}
}
