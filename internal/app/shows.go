package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"quizshow/internal/domain"
	"quizshow/internal/util"
)

const showBackgroundDir = "show_backgrounds"

// ShowPatch carries partial show updates; nil fields are left untouched.
// Status changes go through SetShowStatus so the transition table applies.
type ShowPatch struct {
	Title   *string
	Details *string
	URL     *string
	Quizzes *[]string

	// BackgroundImageURL set through a patch replaces the stored pointer;
	// the previously attached object is cleaned up best-effort.
	BackgroundImageURL *string
}

// CreateShow persists a new show with a generated id. Quizzes default to an
// empty sequence and the status to waiting.
func (a *App) CreateShow(show domain.Show) (domain.Show, error) {
	if show.Status == "" {
		show.Status = domain.StatusWaiting
	}
	if !domain.ValidShowStatus(show.Status) {
		return domain.Show{}, ErrInvalidStatus
	}
	if show.Quizzes == nil {
		show.Quizzes = []string{}
	}
	now := time.Now().UTC()
	show.ID = util.NewID()
	show.CreatedAt = now
	show.UpdatedAt = now
	show.StartTime = nil
	show.EndTime = nil
	if err := a.store.SaveShow(show); err != nil {
		return domain.Show{}, fmt.Errorf("save show: %w", err)
	}
	return show, nil
}

// GetShow returns one show by id.
func (a *App) GetShow(id string) (domain.Show, error) {
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return domain.Show{}, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return domain.Show{}, ErrShowNotFound
	}
	return show, nil
}

// ListShows returns all shows.
func (a *App) ListShows() ([]domain.Show, error) {
	shows, err := a.store.ListShows()
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return shows, nil
}

// UpdateShow merges the patch into the stored record and stamps updatedAt.
// When the patch replaces backgroundImageUrl, the old object is deleted
// best-effort before the record is written; a cleanup failure is logged and
// does not block the update.
func (a *App) UpdateShow(ctx context.Context, id string, patch ShowPatch) (domain.Show, error) {
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return domain.Show{}, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return domain.Show{}, ErrShowNotFound
	}
	if patch.Title != nil {
		show.Title = *patch.Title
	}
	if patch.Details != nil {
		show.Details = *patch.Details
	}
	if patch.URL != nil {
		show.URL = *patch.URL
	}
	if patch.Quizzes != nil {
		show.Quizzes = *patch.Quizzes
	}
	if patch.BackgroundImageURL != nil && *patch.BackgroundImageURL != show.BackgroundImageURL {
		a.discardObject(ctx, show.BackgroundImageURL, "show/"+id)
		show.BackgroundImageURL = *patch.BackgroundImageURL
	}
	show.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveShow(show); err != nil {
		return domain.Show{}, fmt.Errorf("save show: %w", err)
	}
	return show, nil
}

// DeleteShow removes a show and its background image (best-effort), and
// reports whether the record existed.
func (a *App) DeleteShow(ctx context.Context, id string) (bool, error) {
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return false, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return false, nil
	}
	a.discardObject(ctx, show.BackgroundImageURL, "show/"+id)
	deleted, err := a.store.DeleteShow(id)
	if err != nil {
		return false, fmt.Errorf("delete show: %w", err)
	}
	return deleted, nil
}

// SetShowStatus applies a status transition. Re-asserting the current status
// is a no-op; transitions outside the table are rejected.
//
//	waiting    -> inprogress          (sets startTime if unset)
//	inprogress -> paused | completed  (paused clears endTime,
//	                                   completed sets endTime if unset)
//	paused     -> inprogress | completed
//	completed  -> waiting             (clears startTime and endTime)
func (a *App) SetShowStatus(id string, status domain.ShowStatus) (domain.Show, error) {
	if !domain.ValidShowStatus(status) {
		return domain.Show{}, ErrInvalidStatus
	}
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return domain.Show{}, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return domain.Show{}, ErrShowNotFound
	}
	if show.Status == status {
		return show, nil
	}
	if !canTransition(show.Status, status) {
		return domain.Show{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, show.Status, status)
	}
	now := time.Now().UTC()
	switch status {
	case domain.StatusInProgress:
		if show.StartTime == nil {
			show.StartTime = &now
		}
	case domain.StatusPaused:
		show.EndTime = nil
	case domain.StatusCompleted:
		if show.EndTime == nil {
			show.EndTime = &now
		}
	case domain.StatusWaiting:
		show.StartTime = nil
		show.EndTime = nil
	}
	show.Status = status
	show.UpdatedAt = now
	if err := a.store.SaveShow(show); err != nil {
		return domain.Show{}, fmt.Errorf("save show: %w", err)
	}
	return show, nil
}

func canTransition(from, to domain.ShowStatus) bool {
	switch from {
	case domain.StatusWaiting:
		return to == domain.StatusInProgress
	case domain.StatusInProgress:
		return to == domain.StatusPaused || to == domain.StatusCompleted
	case domain.StatusPaused:
		return to == domain.StatusInProgress || to == domain.StatusCompleted
	case domain.StatusCompleted:
		return to == domain.StatusWaiting
	}
	return false
}

// AttachShowBackgroundImage replaces the show's background image: the old
// object is deleted best-effort, the new bytes are uploaded under a
// timestamped key, and the record is updated to point at the new URL. If the
// record update fails, the fresh upload is discarded to avoid an orphan.
func (a *App) AttachShowBackgroundImage(ctx context.Context, id string, file io.Reader, size int64, filename, contentType string) (domain.Show, error) {
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return domain.Show{}, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return domain.Show{}, ErrShowNotFound
	}
	a.discardObject(ctx, show.BackgroundImageURL, "show/"+id)

	key := attachmentKey(showBackgroundDir, id, filename)
	newURL, err := a.objects.Upload(ctx, key, file, size, contentType)
	if err != nil {
		return domain.Show{}, fmt.Errorf("upload background image: %w", err)
	}

	show.BackgroundImageURL = newURL
	show.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveShow(show); err != nil {
		a.discardObject(ctx, newURL, "show/"+id)
		return domain.Show{}, fmt.Errorf("save show: %w", err)
	}
	return show, nil
}

// DetachShowBackgroundImage deletes the stored image object (if any) and
// clears the record's URL. A missing record counts as success: there is
// nothing left to clean up.
func (a *App) DetachShowBackgroundImage(ctx context.Context, id string) (bool, error) {
	show, ok, err := a.store.GetShow(id)
	if err != nil {
		return false, fmt.Errorf("load show: %w", err)
	}
	if !ok {
		return true, nil
	}
	a.discardObject(ctx, show.BackgroundImageURL, "show/"+id)
	show.BackgroundImageURL = ""
	show.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveShow(show); err != nil {
		return false, fmt.Errorf("save show: %w", err)
	}
	return true, nil
}

// attachmentKey builds a deterministic object key: {dir}/{id}/{timestamp}{ext}.
func attachmentKey(dir, id, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s/%d%s", dir, id, time.Now().UnixMilli(), ext)
}
