package model

import "time"

// ProgressExport is the top-level JSON structure for a user's progress export.
type ProgressExport struct {
	UserID     string           `json:"user_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Profile    *UserProfile     `json:"profile"`
	Lessons    []LessonProgress `json:"lessons"`
}

// LessonProgress pairs a progress record with the lesson it belongs to.
type LessonProgress struct {
	LessonID    string         `json:"lesson_id"`
	TopicID     string         `json:"topic_id"`
	Title       string         `json:"title"`
	Order       int            `json:"order"`
	Status      ProgressStatus `json:"status"`
	Score       int            `json:"score"`
	Attempts    int            `json:"attempts"`
	LastAttempt *time.Time     `json:"last_attempt,omitempty"`
}
