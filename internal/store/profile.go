package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/learnpath/internal/model"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GetProfile returns the user's profile, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	p, err := readProfile(ctx, s.db, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	if p == nil {
		return model.UserProfile{}, fmt.Errorf("profile %s: %w", userID, model.ErrNotFound)
	}
	return *p, nil
}

// readProfile returns nil without error when the user has no profile.
func readProfile(ctx context.Context, q querier, userID string) (*model.UserProfile, error) {
	p := model.UserProfile{UserID: userID}
	err := q.QueryRowContext(ctx,
		`SELECT email, name, total_xp, current_streak, last_activity_date, created_at
		 FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.Email, &p.Name, &p.TotalXP, &p.CurrentStreak, &p.LastActivityDate, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", userID, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT lesson_id FROM completed_lessons WHERE user_id = ? ORDER BY completed_at, lesson_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	p.CompletedLessons = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.CompletedLessons = append(p.CompletedLessons, id)
	}
	return &p, rows.Err()
}

// UpdateProfile re-reads the profile inside an immediate transaction, passes
// it to fn and writes the returned change. XP is incremented in SQL and the
// completed lesson is inserted with INSERT OR IGNORE, so neither can be lost
// or duplicated by a concurrent writer. fn runs again when the transaction is
// retried.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(current *model.UserProfile) (model.ProfileChange, error)) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := readProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		change, err := fn(current)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if current == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO user_profiles (user_id, total_xp, current_streak, last_activity_date, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				userID, change.XPDelta, change.Streak, change.ActivityDate, now, now,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE user_profiles SET total_xp = total_xp + ?, current_streak = ?,
				   last_activity_date = ?, updated_at = ? WHERE user_id = ?`,
				change.XPDelta, change.Streak, change.ActivityDate, now, userID,
			)
		}
		if err != nil {
			return fmt.Errorf("write profile %s: %w", userID, err)
		}

		if change.CompletedLesson != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO completed_lessons (user_id, lesson_id, completed_at) VALUES (?, ?, ?)`,
				userID, change.CompletedLesson, now,
			); err != nil {
				return fmt.Errorf("mark lesson %s completed: %w", change.CompletedLesson, err)
			}
		}
		return nil
	})
}

// SyncProfile creates the profile on first sign-in and refreshes the identity
// fields afterwards. XP, streak and completions are left untouched.
func (s *Store) SyncProfile(ctx context.Context, userID, email, name string) (model.UserProfile, error) {
	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_profiles (user_id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE user_profiles.email END,
			   name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE user_profiles.name END,
			   updated_at = excluded.updated_at`,
			userID, email, name, now, now,
		)
		return err
	})
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("sync profile %s: %w", userID, err)
	}
	return s.GetProfile(ctx, userID)
}
