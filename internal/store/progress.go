package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pavelanni/learnpath/internal/model"
)

// AppendAttempt adds one entry to the attempt history of (userID, lessonID)
// and sets the record's latest score and status. Prior attempts are never
// modified.
func (s *Store) AppendAttempt(ctx context.Context, userID, lessonID string, score int, status model.ProgressStatus, answers []model.Answer) (model.QuizAttempt, error) {
	if answers == nil {
		answers = []model.Answer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return model.QuizAttempt{}, fmt.Errorf("marshal answers: %w", err)
	}
	attempt := model.QuizAttempt{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Score:     score,
		Answers:   answers,
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quiz_attempts (id, user_id, lesson_id, score, answers, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			attempt.ID, userID, lessonID, score, string(data), attempt.Timestamp,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO progress (user_id, lesson_id, score, status, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, lesson_id) DO UPDATE SET score = excluded.score,
			   status = excluded.status, updated_at = excluded.updated_at`,
			userID, lessonID, score, status, attempt.Timestamp,
		)
		return err
	})
	if err != nil {
		return model.QuizAttempt{}, fmt.Errorf("append attempt for %s/%s: %w", userID, lessonID, err)
	}
	return attempt, nil
}

// GetProgress returns the progress record for (userID, lessonID) with its
// attempts in chronological order.
func (s *Store) GetProgress(ctx context.Context, userID, lessonID string) (model.ProgressRecord, error) {
	rec := model.ProgressRecord{UserID: userID, LessonID: lessonID}
	err := s.db.QueryRowContext(ctx,
		`SELECT score, status, updated_at FROM progress WHERE user_id = ? AND lesson_id = ?`,
		userID, lessonID,
	).Scan(&rec.Score, &rec.Status, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("progress %s/%s: %w", userID, lessonID, model.ErrNotFound)
	}
	if err != nil {
		return rec, err
	}

	rec.QuizAttempts, err = s.listAttempts(ctx, userID, lessonID)
	return rec, err
}

func (s *Store) listAttempts(ctx context.Context, userID, lessonID string) ([]model.QuizAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, score, answers, created_at FROM quiz_attempts
		 WHERE user_id = ? AND lesson_id = ? ORDER BY created_at, rowid`,
		userID, lessonID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attempts := []model.QuizAttempt{}
	for rows.Next() {
		var a model.QuizAttempt
		var answers string
		if err := rows.Scan(&a.ID, &a.Score, &answers, &a.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListProgress returns all progress records of a user without attempt bodies.
func (s *Store) ListProgress(ctx context.Context, userID string) ([]model.ProgressRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lesson_id, score, status, updated_at FROM progress WHERE user_id = ? ORDER BY updated_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.ProgressRecord
	for rows.Next() {
		rec := model.ProgressRecord{UserID: userID}
		if err := rows.Scan(&rec.LessonID, &rec.Score, &rec.Status, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AttemptCount returns the number of attempts a user made on a lesson.
func (s *Store) AttemptCount(ctx context.Context, userID, lessonID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quiz_attempts WHERE user_id = ? AND lesson_id = ?`, userID, lessonID,
	).Scan(&count)
	return count, err
}
