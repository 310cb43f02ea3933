package store

import "quizshow/internal/domain"

// Store defines persistence operations for accounts, shows, and quizzes.
type Store interface {
	// accounts, keyed by userId
	SaveAccount(domain.Account) error
	HasAccount(userID string) (bool, error)
	GetAccount(userID string) (domain.Account, bool, error)
	DeleteAccount(userID string) (bool, error)

	// shows
	SaveShow(domain.Show) error
	GetShow(id string) (domain.Show, bool, error)
	ListShows() ([]domain.Show, error)
	DeleteShow(id string) (bool, error)

	// quizzes
	SaveQuiz(domain.Quiz) error
	GetQuiz(id string) (domain.Quiz, bool, error)
	ListQuizzes() ([]domain.Quiz, error)
	DeleteQuiz(id string) (bool, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
