// Package progress applies passing quiz results to a user's profile.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/learnpath/internal/grading"
	"github.com/pavelanni/learnpath/internal/model"
)

// ProfileStore runs fn inside a transaction that first re-reads the profile.
// current is nil when the user has no profile yet. fn may run more than once
// if the transaction is retried after a write conflict.
type ProfileStore interface {
	UpdateProfile(ctx context.Context, userID string, fn func(current *model.UserProfile) (model.ProfileChange, error)) error
}

// LessonSequencer resolves the lesson that follows afterOrder in a topic.
// It returns an empty id when there is none.
type LessonSequencer interface {
	NextLesson(ctx context.Context, topicID string, afterOrder int) (string, error)
}

// Outcome describes what a passing submission changed.
type Outcome struct {
	XPAwarded    int
	Streak       int
	NextLessonID string
}

// Updater awards XP and streaks for passed lessons.
type Updater struct {
	profiles ProfileStore
	lessons  LessonSequencer
	now      func() time.Time
}

// NewUpdater creates an Updater. A nil clock defaults to time.Now.
func NewUpdater(profiles ProfileStore, lessons LessonSequencer, now func() time.Time) *Updater {
	if now == nil {
		now = time.Now
	}
	return &Updater{profiles: profiles, lessons: lessons, now: now}
}

// ApplyPass records a passing result. XP is granted only on the first
// completion of the lesson; the check and the grant share one transaction.
func (u *Updater) ApplyPass(ctx context.Context, userID string, lesson model.Lesson, result grading.Result) (Outcome, error) {
	if !result.Passed {
		return Outcome{}, fmt.Errorf("apply pass for lesson %s: result did not pass: %w", lesson.ID, model.ErrInvalidInput)
	}

	var out Outcome
	err := u.profiles.UpdateProfile(ctx, userID, func(current *model.UserProfile) (model.ProfileChange, error) {
		now := u.now()
		var prevStreak int
		var lastActivity string
		if current != nil {
			prevStreak = current.CurrentStreak
			lastActivity = current.LastActivityDate
		}

		change := model.ProfileChange{
			Streak:       NextStreak(prevStreak, lastActivity, now),
			ActivityDate: Day(now),
		}
		if !current.HasCompleted(lesson.ID) {
			change.XPDelta = lesson.XP
			change.CompletedLesson = lesson.ID
		}

		// Overwritten on retry so the values match the attempt that committed.
		out.XPAwarded = change.XPDelta
		out.Streak = change.Streak
		return change, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("update profile for %s: %w", userID, err)
	}

	next, err := u.lessons.NextLesson(ctx, lesson.TopicID, lesson.Order)
	if err != nil {
		// The profile is already committed at this point.
		slog.Warn("next lesson lookup failed", "lesson_id", lesson.ID, "topic_id", lesson.TopicID, "error", err)
		return out, nil
	}
	out.NextLessonID = next
	return out, nil
}
