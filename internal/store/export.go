package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavelanni/learnpath/internal/model"
)

// ExportUser builds an export of a user's profile and per-lesson progress.
// Profile is nil when the user never passed a lesson or signed in.
func (s *Store) ExportUser(ctx context.Context, userID string) (model.ProgressExport, error) {
	export := model.ProgressExport{
		UserID:     userID,
		ExportedAt: s.now().UTC(),
		Lessons:    []model.LessonProgress{},
	}

	profile, err := s.GetProfile(ctx, userID)
	switch {
	case err == nil:
		export.Profile = &profile
	case !errors.Is(err, model.ErrNotFound):
		return export, fmt.Errorf("get profile: %w", err)
	}

	records, err := s.ListProgress(ctx, userID)
	if err != nil {
		return export, fmt.Errorf("list progress: %w", err)
	}

	for _, rec := range records {
		lp := model.LessonProgress{
			LessonID: rec.LessonID,
			Status:   rec.Status,
			Score:    rec.Score,
		}

		l, err := s.GetLesson(ctx, rec.LessonID)
		if err == nil || errors.Is(err, model.ErrInvalidLessonState) {
			lp.TopicID = l.TopicID
			lp.Title = l.Title
			lp.Order = l.Order
		} else if !errors.Is(err, model.ErrNotFound) {
			return export, fmt.Errorf("get lesson %s: %w", rec.LessonID, err)
		}

		attempts, err := s.listAttempts(ctx, userID, rec.LessonID)
		if err != nil {
			return export, fmt.Errorf("list attempts for %s: %w", rec.LessonID, err)
		}
		lp.Attempts = len(attempts)
		if n := len(attempts); n > 0 {
			last := attempts[n-1].Timestamp
			lp.LastAttempt = &last
		}
		export.Lessons = append(export.Lessons, lp)
	}
	return export, nil
}
