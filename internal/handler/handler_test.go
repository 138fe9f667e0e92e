package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/learnpath/internal/assessment"
	"github.com/pavelanni/learnpath/internal/auth"
	appI18n "github.com/pavelanni/learnpath/internal/i18n"
	"github.com/pavelanni/learnpath/internal/llm/prompts"
	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/progress"
	"github.com/pavelanni/learnpath/internal/remedial"
	"github.com/pavelanni/learnpath/internal/store"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	if err := prompts.Load(prompts.Templates); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testServer struct {
	srv      *httptest.Server
	store    *store.Store
	verifier *auth.Verifier
	token    string
}

func newTestServer(t *testing.T, sub Submitter) *testServer {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	lesson := model.Lesson{
		ID: "l1", Title: "Loops", Order: 1, XP: 50,
		Assessment: model.Assessment{
			PassingScore: 100,
			Questions: []model.Question{{
				ID: "q1", QuestionText: "2+2?", Tags: []string{"arithmetic"}, CorrectAnswerID: "a",
				Explanation: "Four.", Options: []model.Option{{ID: "a", Text: "4"}, {ID: "b", Text: "5"}},
			}},
		},
	}
	if _, err := st.ImportTopic(context.Background(), model.TopicImport{ID: "math", Name: "Math", Lessons: []model.Lesson{lesson}}); err != nil {
		t.Fatalf("ImportTopic: %v", err)
	}

	v, err := auth.NewVerifier("secret", "learnpath")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := v.Issue(model.User{ID: "u1", Email: "ann@example.com", Name: "Ann"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if sub == nil {
		sub = assessment.NewService(st, st, progress.NewUpdater(st, st, nil), remedial.New(nil, 0))
	}

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	New(st, sub, v).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, verifier: v, token: token}
}

func (ts *testServer) do(t *testing.T, method, path, body string, authed bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var out map[string]any
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestSubmitEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/assessments/l1/submit",
		`{"answers":[{"questionId":"q1","selectedOptionId":"b"}]}`, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "requires_review" || body["score"] != float64(0) {
		t.Errorf("unexpected body: %v", body)
	}
	stub, ok := body["remedialLesson"].(map[string]any)
	if !ok || !strings.Contains(stub["title"].(string), "arithmetic") {
		t.Errorf("remedialLesson = %v", body["remedialLesson"])
	}

	resp, body = ts.do(t, http.MethodPost, "/assessments/l1/submit",
		`{"answers":[{"questionId":"q1","selectedOptionId":"a"}]}`, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["status"] != "passed" || body["xpEarned"] != float64(50) {
		t.Errorf("unexpected body: %v", body)
	}
	if v, ok := body["nextLessonId"]; !ok || v != nil {
		t.Errorf("nextLessonId = %v, want null", v)
	}
	if _, ok := body["remedialLesson"]; ok {
		t.Error("passed body must not carry remedialLesson")
	}
}

func TestSubmitEndpointErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		authed bool
		status int
		msg    string
	}{
		{"no token", "/assessments/l1/submit", `{"answers":[]}`, false, http.StatusUnauthorized, "Authentication required."},
		{"unknown lesson", "/assessments/nope/submit", `{"answers":[]}`, true, http.StatusNotFound, "Not found."},
		{"malformed json", "/assessments/l1/submit", `{"answers":`, true, http.StatusBadRequest, "The request body is not valid."},
		{"malformed json unknown lesson", "/assessments/nope/submit", `{"answers":`, true, http.StatusNotFound, "Not found."},
		{"wrong shape", "/assessments/l1/submit", `{"answers":"q1"}`, true, http.StatusBadRequest, "The request body is not valid."},
		{"missing answers", "/assessments/l1/submit", `{}`, true, http.StatusBadRequest, "The request body is not valid."},
		{"empty ids", "/assessments/l1/submit", `{"answers":[{"questionId":""}]}`, true, http.StatusBadRequest, "The request body is not valid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, tt.path, tt.body, tt.authed)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body["error"] != tt.msg {
				t.Errorf("error = %v, want %q", body["error"], tt.msg)
			}
		})
	}
}

type brokenSubmitter struct{}

func (brokenSubmitter) Submit(context.Context, string, string, []model.Answer) (model.SubmissionResult, error) {
	return model.SubmissionResult{}, errors.New("disk on fire at /var/lib/learnpath")
}

func TestSubmitInternalErrorIsGeneric(t *testing.T) {
	ts := newTestServer(t, brokenSubmitter{})

	resp, body := ts.do(t, http.MethodPost, "/assessments/l1/submit",
		`{"answers":[{"questionId":"q1","selectedOptionId":"a"}]}`, true)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if msg, _ := body["error"].(string); strings.Contains(msg, "disk") {
		t.Errorf("internal detail leaked: %q", msg)
	}
}

func TestLessonEndpointsHideAnswers(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{"/lessons/l1", "/topics/math/lessons"} {
		req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+path, nil)
		req.Header.Set("Authorization", "Bearer "+ts.token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var buf strings.Builder
		_, _ = io.Copy(&buf, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		if strings.Contains(buf.String(), "correctAnswerId") || strings.Contains(buf.String(), "Four.") {
			t.Errorf("GET %s leaks answer key: %s", path, buf.String())
		}
		if !strings.Contains(buf.String(), `"questionText":"2+2?"`) {
			t.Errorf("GET %s missing question: %s", path, buf.String())
		}
	}
}

func TestProfileAndSync(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/profile", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("profile before sync: status = %d", resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodPost, "/auth/sync", `{"displayName":"Ann B"}`, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	if body["name"] != "Ann B" || body["email"] != "ann@example.com" || body["totalXp"] != float64(0) {
		t.Errorf("unexpected profile: %v", body)
	}

	resp, body = ts.do(t, http.MethodGet, "/profile", "", true)
	if resp.StatusCode != http.StatusOK || body["userId"] != "u1" {
		t.Errorf("profile: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestProgressEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := ts.do(t, http.MethodGet, "/progress/l1", "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before attempts = %d", resp.StatusCode)
	}

	ts.do(t, http.MethodPost, "/assessments/l1/submit", `{"answers":[{"questionId":"q1","selectedOptionId":"b"}]}`, true)
	resp, body := ts.do(t, http.MethodGet, "/progress/l1", "", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	attempts, _ := body["quizAttempts"].([]any)
	if body["status"] != "requires_review" || len(attempts) != 1 {
		t.Errorf("unexpected record: %v", body)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.do(t, http.MethodGet, "/healthz", "", false)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("healthz: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestTopicsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/topics", nil)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /topics: %v", err)
	}
	defer resp.Body.Close()
	var topics []model.Topic
	if err := json.NewDecoder(resp.Body).Decode(&topics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(topics) != 1 || topics[0].ID != "math" {
		t.Errorf("topics = %+v", topics)
	}
}
