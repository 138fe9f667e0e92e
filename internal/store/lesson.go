package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/schema"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertTopic creates a topic or renames an existing one.
func (s *Store) UpsertTopic(ctx context.Context, t model.Topic) error {
	return upsertTopic(ctx, s.db, t, s.now().UTC())
}

func upsertTopic(ctx context.Context, db execer, t model.Topic, now time.Time) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("topic id is empty: %w", model.ErrInvalidInput)
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO topics (id, name, description, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		t.ID, t.Name, t.Description, now,
	)
	return err
}

// ListTopics returns all topics ordered by name.
func (s *Store) ListTopics(ctx context.Context) ([]model.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM topics ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// UpsertLesson validates a lesson and stores it under topicID.
func (s *Store) UpsertLesson(ctx context.Context, topicID string, l model.Lesson) error {
	if err := validateLesson(topicID, l); err != nil {
		return err
	}
	return upsertLesson(ctx, s.db, topicID, l, s.now().UTC())
}

func validateLesson(topicID string, l model.Lesson) error {
	l.TopicID = topicID
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lesson %s: %w", l.ID, err)
	}
	if err := schema.Validate(schema.Lesson, doc); err != nil {
		return fmt.Errorf("lesson %q: %w: %v", l.ID, model.ErrInvalidInput, err)
	}
	seen := make(map[string]bool, len(l.Assessment.Questions))
	for _, q := range l.Assessment.Questions {
		if seen[q.ID] {
			return fmt.Errorf("lesson %q: duplicate question id %q: %w", l.ID, q.ID, model.ErrInvalidInput)
		}
		seen[q.ID] = true
	}
	return nil
}

func upsertLesson(ctx context.Context, db execer, topicID string, l model.Lesson, now time.Time) error {
	l.TopicID = topicID
	doc, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal lesson %s: %w", l.ID, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO lessons (id, topic_id, ord, doc, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET topic_id = excluded.topic_id, ord = excluded.ord,
		   doc = excluded.doc, updated_at = excluded.updated_at`,
		l.ID, topicID, l.Order, string(doc), now,
	)
	if err != nil {
		return fmt.Errorf("upsert lesson %s: %w", l.ID, err)
	}
	return nil
}

// GetLesson returns a lesson by id. A stored document that cannot be decoded
// or has no questions yields ErrInvalidLessonState.
func (s *Store) GetLesson(ctx context.Context, id string) (model.Lesson, error) {
	var topicID, doc string
	var order int
	err := s.db.QueryRowContext(ctx,
		`SELECT topic_id, ord, doc FROM lessons WHERE id = ?`, id,
	).Scan(&topicID, &order, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lesson{}, fmt.Errorf("lesson %q: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Lesson{}, err
	}
	return decodeLesson(id, topicID, order, doc)
}

func decodeLesson(id, topicID string, order int, doc string) (model.Lesson, error) {
	var l model.Lesson
	if err := json.Unmarshal([]byte(doc), &l); err != nil {
		slog.Error("corrupt lesson document", "lesson_id", id, "error", err)
		return model.Lesson{}, fmt.Errorf("lesson %q: %w: %v", id, model.ErrInvalidLessonState, err)
	}
	l.ID = id
	l.TopicID = topicID
	l.Order = order
	if len(l.Assessment.Questions) == 0 {
		return l, fmt.Errorf("lesson %q has no questions: %w", id, model.ErrInvalidLessonState)
	}
	return l, nil
}

// ListLessonsByTopic returns the lessons of a topic ordered by their position.
// Lessons whose documents are corrupt are skipped and logged.
func (s *Store) ListLessonsByTopic(ctx context.Context, topicID string) ([]model.Lesson, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ord, doc FROM lessons WHERE topic_id = ? ORDER BY ord`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lessons []model.Lesson
	for rows.Next() {
		var id, doc string
		var order int
		if err := rows.Scan(&id, &order, &doc); err != nil {
			return nil, err
		}
		l, err := decodeLesson(id, topicID, order, doc)
		if err != nil {
			slog.Warn("skipping lesson", "lesson_id", id, "error", err)
			continue
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// NextLesson returns the id of the lesson in topicID with the smallest order
// greater than afterOrder, or an empty string when there is none.
func (s *Store) NextLesson(ctx context.Context, topicID string, afterOrder int) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM lessons WHERE topic_id = ? AND ord > ? ORDER BY ord LIMIT 1`,
		topicID, afterOrder,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// LessonCount returns the number of stored lessons.
func (s *Store) LessonCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lessons`).Scan(&count)
	return count, err
}
