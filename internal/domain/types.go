package domain

import (
	"encoding/json"
	"time"
)

type ShowStatus string

const (
	StatusWaiting    ShowStatus = "waiting"
	StatusInProgress ShowStatus = "inprogress"
	StatusPaused     ShowStatus = "paused"
	StatusCompleted  ShowStatus = "completed"
)

// ValidShowStatus reports whether s is one of the four known states.
func ValidShowStatus(s ShowStatus) bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type Account struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Show struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Details            string     `json:"details"`
	URL                string     `json:"url"`
	BackgroundImageURL string     `json:"backgroundImageUrl,omitempty"`
	Quizzes            []string   `json:"quizzes"`
	Status             ShowStatus `json:"status"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	EndTime            *time.Time `json:"endTime,omitempty"`
}

// Quiz carries the question payload. Options and CorrectAnswer are opaque to
// the service layer; their shape depends on QuizType and is validated at the
// HTTP boundary.
type Quiz struct {
	ID                string          `json:"id"`
	Question          string          `json:"question"`
	QuizType          string          `json:"quizType"`
	Options           []string        `json:"options,omitempty"`
	CorrectAnswer     json.RawMessage `json:"correctAnswer,omitempty"`
	TimeLimit         int             `json:"timeLimit"`
	Hint              string          `json:"hint,omitempty"`
	ReferenceImageURL string          `json:"referenceImageUrl,omitempty"`
	ReferenceVideoURL string          `json:"referenceVideoUrl,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
