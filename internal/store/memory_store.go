package store

import (
	"sync"

	"quizshow/internal/domain"
)

// MemoryStore keeps records in-process. Used in tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]domain.Account
	shows     map[string]domain.Show
	quizzes   map[string]domain.Quiz
	showOrder []string
	quizOrder []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]domain.Account),
		shows:    make(map[string]domain.Show),
		quizzes:  make(map[string]domain.Quiz),
	}
}

func (m *MemoryStore) SaveAccount(a domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.UserID] = a
	return nil
}

func (m *MemoryStore) HasAccount(userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[userID]
	return ok, nil
}

func (m *MemoryStore) GetAccount(userID string) (domain.Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[userID]
	return a, ok, nil
}

func (m *MemoryStore) DeleteAccount(userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; !ok {
		return false, nil
	}
	delete(m.accounts, userID)
	return true, nil
}

func (m *MemoryStore) SaveShow(show domain.Show) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.shows[show.ID]; !exists {
		m.showOrder = append(m.showOrder, show.ID)
	}
	m.shows[show.ID] = show
	return nil
}

func (m *MemoryStore) GetShow(id string) (domain.Show, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shows[id]
	return s, ok, nil
}

func (m *MemoryStore) ListShows() ([]domain.Show, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Show, 0, len(m.showOrder))
	for _, id := range m.showOrder {
		if s, ok := m.shows[id]; ok {
			res = append(res, s)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteShow(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shows[id]; !ok {
		return false, nil
	}
	delete(m.shows, id)
	return true, nil
}

func (m *MemoryStore) SaveQuiz(q domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.quizzes[q.ID]; !exists {
		m.quizOrder = append(m.quizOrder, q.ID)
	}
	m.quizzes[q.ID] = q
	return nil
}

func (m *MemoryStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	return q, ok, nil
}

func (m *MemoryStore) ListQuizzes() ([]domain.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Quiz, 0, len(m.quizOrder))
	for _, id := range m.quizOrder {
		if q, ok := m.quizzes[id]; ok {
			res = append(res, q)
		}
	}
	return res, nil
}

func (m *MemoryStore) DeleteQuiz(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return false, nil
	}
	delete(m.quizzes, id)
	return true, nil
}
