package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"quizshow/internal/domain"
	"quizshow/internal/util"
)

const quizReferenceDir = "quiz_references"

// QuizPatch carries partial quiz updates; nil fields are left untouched.
type QuizPatch struct {
	Question          *string
	QuizType          *string
	Options           *[]string
	CorrectAnswer     json.RawMessage
	TimeLimit         *int
	Hint              *string
	ReferenceVideoURL *string

	// ReferenceImageURL set through a patch replaces the stored pointer;
	// the previously attached object is cleaned up best-effort.
	ReferenceImageURL *string
}

// CreateQuiz persists a new quiz with a generated id.
func (a *App) CreateQuiz(quiz domain.Quiz) (domain.Quiz, error) {
	now := time.Now().UTC()
	quiz.ID = util.NewID()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now
	if err := a.store.SaveQuiz(quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// GetQuiz returns one quiz by id.
func (a *App) GetQuiz(id string) (domain.Quiz, error) {
	quiz, ok, err := a.store.GetQuiz(id)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, ErrQuizNotFound
	}
	return quiz, nil
}

// ListQuizzes returns all quizzes.
func (a *App) ListQuizzes() ([]domain.Quiz, error) {
	quizzes, err := a.store.ListQuizzes()
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// UpdateQuiz merges the patch into the stored record and stamps updatedAt.
func (a *App) UpdateQuiz(ctx context.Context, id string, patch QuizPatch) (domain.Quiz, error) {
	quiz, ok, err := a.store.GetQuiz(id)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, ErrQuizNotFound
	}
	if patch.Question != nil {
		quiz.Question = *patch.Question
	}
	if patch.QuizType != nil {
		quiz.QuizType = *patch.QuizType
	}
	if patch.Options != nil {
		quiz.Options = *patch.Options
	}
	if patch.CorrectAnswer != nil {
		quiz.CorrectAnswer = patch.CorrectAnswer
	}
	if patch.TimeLimit != nil {
		quiz.TimeLimit = *patch.TimeLimit
	}
	if patch.Hint != nil {
		quiz.Hint = *patch.Hint
	}
	if patch.ReferenceVideoURL != nil {
		quiz.ReferenceVideoURL = *patch.ReferenceVideoURL
	}
	if patch.ReferenceImageURL != nil && *patch.ReferenceImageURL != quiz.ReferenceImageURL {
		a.discardObject(ctx, quiz.ReferenceImageURL, "quiz/"+id)
		quiz.ReferenceImageURL = *patch.ReferenceImageURL
	}
	quiz.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveQuiz(quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// DeleteQuiz removes a quiz and its reference image (best-effort), and
// reports whether the record existed.
func (a *App) DeleteQuiz(ctx context.Context, id string) (bool, error) {
	quiz, ok, err := a.store.GetQuiz(id)
	if err != nil {
		return false, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return false, nil
	}
	a.discardObject(ctx, quiz.ReferenceImageURL, "quiz/"+id)
	deleted, err := a.store.DeleteQuiz(id)
	if err != nil {
		return false, fmt.Errorf("delete quiz: %w", err)
	}
	return deleted, nil
}

// DeleteQuizzes removes quizzes by id. Missing ids are per-item no-ops and do
// not fail the batch; reference images are cleaned up best-effort alongside
// each record. Store errors are collected and returned after the batch.
func (a *App) DeleteQuizzes(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		quiz, ok, err := a.store.GetQuiz(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load quiz %s: %w", id, err))
			continue
		}
		if !ok {
			continue
		}
		a.discardObject(ctx, quiz.ReferenceImageURL, "quiz/"+id)
		if _, err := a.store.DeleteQuiz(id); err != nil {
			errs = append(errs, fmt.Errorf("delete quiz %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// AttachQuizReferenceImage replaces the quiz's reference image with the same
// lifecycle as show backgrounds: best-effort delete of the old object, upload
// under a timestamped key, record update, and cleanup of the fresh upload if
// the record write fails.
func (a *App) AttachQuizReferenceImage(ctx context.Context, id string, file io.Reader, size int64, filename, contentType string) (domain.Quiz, error) {
	quiz, ok, err := a.store.GetQuiz(id)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, ErrQuizNotFound
	}
	a.discardObject(ctx, quiz.ReferenceImageURL, "quiz/"+id)

	key := attachmentKey(quizReferenceDir, id, filename)
	newURL, err := a.objects.Upload(ctx, key, file, size, contentType)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("upload reference image: %w", err)
	}

	quiz.ReferenceImageURL = newURL
	quiz.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveQuiz(quiz); err != nil {
		a.discardObject(ctx, newURL, "quiz/"+id)
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	return quiz, nil
}

// DetachQuizReferenceImage deletes the reference image object (if any) and
// clears the record's URL. A missing record counts as success.
func (a *App) DetachQuizReferenceImage(ctx context.Context, id string) (bool, error) {
	quiz, ok, err := a.store.GetQuiz(id)
	if err != nil {
		return false, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return true, nil
	}
	a.discardObject(ctx, quiz.ReferenceImageURL, "quiz/"+id)
	quiz.ReferenceImageURL = ""
	quiz.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveQuiz(quiz); err != nil {
		return false, fmt.Errorf("save quiz: %w", err)
	}
	return true, nil
}
