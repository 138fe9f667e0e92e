// Package grading scores quiz submissions against a lesson's answer key.
package grading

import (
	"fmt"
	"slices"

	"github.com/pavelanni/learnpath/internal/model"
)

// Result is the outcome of grading one submission.
type Result struct {
	Score      int
	Correct    int
	Total      int
	Passed     bool
	MissedTags []string
}

// Grade scores answers against questions. Answers for unknown question ids
// are ignored and only the first answer to a question counts. Unanswered
// questions lower the score but contribute no tags to MissedTags.
func Grade(questions []model.Question, answers []model.Answer, passingScore int) (Result, error) {
	if len(questions) == 0 {
		return Result{}, fmt.Errorf("grade: lesson has no questions: %w", model.ErrInvalidLessonState)
	}

	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	seen := make(map[string]bool, len(answers))
	missed := make(map[string]struct{})
	correct := 0
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok || seen[a.QuestionID] {
			continue
		}
		seen[a.QuestionID] = true
		if a.SelectedOptionID == q.CorrectAnswerID {
			correct++
			continue
		}
		for _, tag := range q.Tags {
			missed[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(missed))
	for tag := range missed {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	score := Percent(correct, len(questions))
	return Result{
		Score:      score,
		Correct:    correct,
		Total:      len(questions),
		Passed:     score >= passingScore,
		MissedTags: tags,
	}, nil
}

// Percent returns round(100*k/n) with halves rounded up. n must be positive.
func Percent(k, n int) int {
	return (200*k + n) / (2 * n)
}
