package model

import (
	"context"
	"slices"
	"time"
)

// User is the verified caller identity attached to a request.
type User struct {
	ID    string
	Email string
	Name  string
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Difficulty represents lesson difficulty level.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Topic groups an ordered sequence of lessons.
type Topic struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single quiz item. Tags link it to teachable concepts.
type Question struct {
	ID              string   `json:"id"`
	QuestionText    string   `json:"questionText"`
	QuizType        string   `json:"quizType,omitempty"`
	Tags            []string `json:"tags"`
	Options         []Option `json:"options"`
	CorrectAnswerID string   `json:"correctAnswerId,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

// Assessment is the quiz attached to a lesson.
type Assessment struct {
	PassingScore int        `json:"passingScore"`
	Questions    []Question `json:"questions"`
}

// ContentBlock is one paragraph of lesson content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Lesson is an ordered content unit within a topic.
type Lesson struct {
	ID               string         `json:"id"`
	TopicID          string         `json:"topicId"`
	Title            string         `json:"title"`
	Order            int            `json:"order"`
	XP               int            `json:"xp"`
	EstimatedMinutes int            `json:"estimatedMinutes,omitempty"`
	Difficulty       Difficulty     `json:"difficulty,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Content          []ContentBlock `json:"content,omitempty"`
	Assessment       Assessment     `json:"assessment"`
}

// Public returns a copy of the lesson without answer keys or explanations.
func (l Lesson) Public() Lesson {
	qs := make([]Question, len(l.Assessment.Questions))
	for i, q := range l.Assessment.Questions {
		q.CorrectAnswerID = ""
		q.Explanation = ""
		qs[i] = q
	}
	l.Assessment.Questions = qs
	return l
}

// Answer is one submitted choice.
type Answer struct {
	QuestionID       string `json:"questionId"`
	SelectedOptionID string `json:"selectedOptionId"`
}

// ProgressStatus is the state of a user's progress on one lesson.
type ProgressStatus string

const (
	StatusCompleted      ProgressStatus = "completed"
	StatusRequiresReview ProgressStatus = "requires_review"
)

// QuizAttempt is one entry of the append-only attempt history.
type QuizAttempt struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
	Answers   []Answer  `json:"answers"`
}

// ProgressRecord tracks a user's attempts on a single lesson.
type ProgressRecord struct {
	UserID       string         `json:"userId"`
	LessonID     string         `json:"lessonId"`
	Score        int            `json:"score"`
	Status       ProgressStatus `json:"status"`
	QuizAttempts []QuizAttempt  `json:"quizAttempts"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// UserProfile is the per-user aggregate of XP, streak and completions.
type UserProfile struct {
	UserID           string    `json:"userId"`
	Email            string    `json:"email,omitempty"`
	Name             string    `json:"name,omitempty"`
	TotalXP          int       `json:"totalXp"`
	CompletedLessons []string  `json:"completedLessons"`
	CurrentStreak    int       `json:"currentStreak"`
	LastActivityDate string    `json:"lastActivityDate,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// HasCompleted reports whether the lesson is in the completed set.
func (p *UserProfile) HasCompleted(lessonID string) bool {
	return p != nil && slices.Contains(p.CompletedLessons, lessonID)
}

// ProfileChange is the write computed inside a profile transaction.
// CompletedLesson is empty when the completed set must not change.
type ProfileChange struct {
	XPDelta         int
	Streak          int
	ActivityDate    string
	CompletedLesson string
}

// TopicImport is the on-disk format used by the import command.
type TopicImport struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Lessons     []Lesson `json:"lessons"`
}
