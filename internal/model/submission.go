package model

import "encoding/json"

// SubmissionStatus is the outcome reported to the caller.
type SubmissionStatus string

const (
	SubmissionPassed         SubmissionStatus = "passed"
	SubmissionRequiresReview SubmissionStatus = "requires_review"
)

// LessonStub is a short remedial lesson synthesized for missed concepts.
type LessonStub struct {
	Title            string         `json:"title"`
	EstimatedMinutes int            `json:"estimatedMinutes"`
	Difficulty       Difficulty     `json:"difficulty"`
	Content          []ContentBlock `json:"content"`
	Tags             []string       `json:"tags"`
}

// SubmissionResult is returned by a quiz submission.
type SubmissionResult struct {
	Status         SubmissionStatus
	Score          int
	XPEarned       int
	NextLessonID   string
	RemedialLesson *LessonStub
}

type passedBody struct {
	Status       SubmissionStatus `json:"status"`
	Score        int              `json:"score"`
	XPEarned     int              `json:"xpEarned"`
	NextLessonID *string          `json:"nextLessonId"`
}

type reviewBody struct {
	Status         SubmissionStatus `json:"status"`
	Score          int              `json:"score"`
	RemedialLesson *LessonStub      `json:"remedialLesson"`
}

// MarshalJSON emits only the fields that belong to the outcome.
func (r SubmissionResult) MarshalJSON() ([]byte, error) {
	if r.Status == SubmissionPassed {
		b := passedBody{Status: r.Status, Score: r.Score, XPEarned: r.XPEarned}
		if r.NextLessonID != "" {
			next := r.NextLessonID
			b.NextLessonID = &next
		}
		return json.Marshal(b)
	}
	return json.Marshal(reviewBody{Status: r.Status, Score: r.Score, RemedialLesson: r.RemedialLesson})
}
