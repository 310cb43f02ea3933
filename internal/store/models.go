package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type AccountModel struct {
	UserID       string    `gorm:"primaryKey"`
	Username     string    `gorm:"not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type ShowModel struct {
	ID                 string `gorm:"primaryKey"`
	Title              string `gorm:"not null"`
	Details            string
	URL                string
	BackgroundImageURL string
	Quizzes            datatypes.JSON
	Status             string    `gorm:"not null;index"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
	StartTime          *time.Time
	EndTime            *time.Time
}

type QuizModel struct {
	ID                string `gorm:"primaryKey"`
	Question          string `gorm:"not null"`
	QuizType          string `gorm:"not null"`
	Options           datatypes.JSON
	CorrectAnswer     datatypes.JSON
	TimeLimit         int
	Hint              string
	ReferenceImageURL string
	ReferenceVideoURL string
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}
