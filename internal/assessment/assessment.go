// Package assessment handles quiz submissions: grading, attempt history,
// progression on a pass and remediation on a failure.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/learnpath/internal/grading"
	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/progress"
	"github.com/pavelanni/learnpath/internal/remedial"
)

// LessonGetter loads a validated lesson.
type LessonGetter interface {
	GetLesson(ctx context.Context, id string) (model.Lesson, error)
}

// AttemptRecorder appends to a user's attempt history for a lesson.
type AttemptRecorder interface {
	AppendAttempt(ctx context.Context, userID, lessonID string, score int, status model.ProgressStatus, answers []model.Answer) (model.QuizAttempt, error)
}

// ProgressApplier awards XP and streaks for a passing result.
type ProgressApplier interface {
	ApplyPass(ctx context.Context, userID string, lesson model.Lesson, result grading.Result) (progress.Outcome, error)
}

// Remediator produces a remedial lesson for missed concepts.
type Remediator interface {
	Synthesize(ctx context.Context, missedTags []string, difficulty model.Difficulty) remedial.Outcome
}

// Service is the entry point for quiz submissions.
type Service struct {
	lessons  LessonGetter
	attempts AttemptRecorder
	progress ProgressApplier
	remedial Remediator
}

// NewService wires a Service from its collaborators.
func NewService(lessons LessonGetter, attempts AttemptRecorder, progress ProgressApplier, remedial Remediator) *Service {
	return &Service{lessons: lessons, attempts: attempts, progress: progress, remedial: remedial}
}

// Submit grades answers for a lesson and records the attempt. The attempt is
// stored before the profile is touched; if the profile update then fails the
// attempt stays recorded and the error is returned.
func (s *Service) Submit(ctx context.Context, userID, lessonID string, answers []model.Answer) (model.SubmissionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return model.SubmissionResult{}, model.ErrUnauthenticated
	}

	lesson, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidLessonState) {
			slog.Error("lesson cannot be graded", "lesson_id", lessonID, "error", err)
		}
		return model.SubmissionResult{}, err
	}

	if err := ValidateAnswers(answers); err != nil {
		return model.SubmissionResult{}, err
	}

	result, err := grading.Grade(lesson.Assessment.Questions, answers, lesson.Assessment.PassingScore)
	if err != nil {
		slog.Error("lesson cannot be graded", "lesson_id", lessonID, "error", err)
		return model.SubmissionResult{}, err
	}

	status := model.StatusRequiresReview
	if result.Passed {
		status = model.StatusCompleted
	}
	if _, err := s.attempts.AppendAttempt(ctx, userID, lessonID, result.Score, status, answers); err != nil {
		return model.SubmissionResult{}, fmt.Errorf("record attempt: %w", err)
	}

	if result.Passed {
		out, err := s.progress.ApplyPass(ctx, userID, lesson, result)
		if err != nil {
			slog.Error("attempt recorded but profile not updated",
				"user_id", userID, "lesson_id", lessonID, "score", result.Score, "error", err)
			return model.SubmissionResult{}, err
		}
		slog.Info("lesson passed",
			"user_id", userID, "lesson_id", lessonID, "score", result.Score,
			"xp", out.XPAwarded, "streak", out.Streak, "next_lesson_id", out.NextLessonID)
		return model.SubmissionResult{
			Status:       model.SubmissionPassed,
			Score:        result.Score,
			XPEarned:     out.XPAwarded,
			NextLessonID: out.NextLessonID,
		}, nil
	}

	rem := s.remedial.Synthesize(ctx, result.MissedTags, lesson.Difficulty)
	slog.Info("lesson requires review",
		"user_id", userID, "lesson_id", lessonID, "score", result.Score,
		"missed_tags", result.MissedTags, "remedial", rem.Source.String())
	return model.SubmissionResult{
		Status:         model.SubmissionRequiresReview,
		Score:          result.Score,
		RemedialLesson: rem.Stub,
	}, nil
}

// ValidateAnswers rejects a missing answer list and answers with empty ids.
func ValidateAnswers(answers []model.Answer) error {
	if answers == nil {
		return fmt.Errorf("answers are required: %w", model.ErrInvalidInput)
	}
	for i, a := range answers {
		if strings.TrimSpace(a.QuestionID) == "" || strings.TrimSpace(a.SelectedOptionID) == "" {
			return fmt.Errorf("answer %d: questionId and selectedOptionId are required: %w", i, model.ErrInvalidInput)
		}
	}
	return nil
}
