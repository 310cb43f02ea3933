package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quizshow/internal/auth"
	"quizshow/internal/domain"
)

// Register creates an account keyed by userId. The password is bcrypt-hashed
// before it is persisted and never travels back to callers.
func (a *App) Register(userID, username, password string) (domain.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || password == "" {
		return domain.Account{}, ErrUserIDAndPasswordRequired
	}
	exists, err := a.store.HasAccount(userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check user id: %w", err)
	}
	if exists {
		return domain.Account{}, ErrDuplicateUser
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	account := domain.Account{
		UserID:       userID,
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveAccount(account); err != nil {
		return domain.Account{}, fmt.Errorf("save account: %w", err)
	}
	return account, nil
}

// Login checks credentials and issues a session token for the userId.
func (a *App) Login(userID, password string) (domain.Account, string, error) {
	userID = strings.TrimSpace(userID)
	account, ok, err := a.store.GetAccount(userID)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("load account: %w", err)
	}
	if !ok {
		return domain.Account{}, "", ErrAccountNotFound
	}
	if !auth.CheckPassword(password, account.PasswordHash) {
		return domain.Account{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(account.UserID)
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("issue session: %w", err)
	}
	return account, token, nil
}

// GetAccount returns the account for a userId.
func (a *App) GetAccount(userID string) (domain.Account, error) {
	account, ok, err := a.store.GetAccount(strings.TrimSpace(userID))
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// DeleteAccount removes an account, reporting whether it existed.
func (a *App) DeleteAccount(userID string) (bool, error) {
	deleted, err := a.store.DeleteAccount(strings.TrimSpace(userID))
	if err != nil {
		return false, fmt.Errorf("delete account: %w", err)
	}
	return deleted, nil
}

// Authenticate resolves a bearer token to the account it was issued for.
// Validation failures collapse to ErrInvalidCredentials; the underlying
// cause is logged first so a revoker or store outage stays diagnosable.
func (a *App) Authenticate(token string) (domain.Account, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		if err != nil {
			slog.Warn("session validation failed", "err", err)
		}
		return domain.Account{}, ErrInvalidCredentials
	}
	account, ok, err := a.store.GetAccount(userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !ok {
		return domain.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Logout revokes the session token until its natural expiry.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}
