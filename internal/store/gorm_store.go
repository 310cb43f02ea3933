package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"quizshow/internal/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&AccountModel{}, &ShowModel{}, &QuizModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveAccount creates or updates an account keyed by userId.
func (s *GormStore) SaveAccount(a domain.Account) error {
	model := accountToModel(a)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasAccount checks if the userId is taken.
func (s *GormStore) HasAccount(userID string) (bool, error) {
	var count int64
	if err := s.db.Model(&AccountModel{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetAccount returns an account by userId.
func (s *GormStore) GetAccount(userID string) (domain.Account, bool, error) {
	var model AccountModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, err
	}
	return accountFromModel(model), true, nil
}

// DeleteAccount removes an account, reporting whether it existed.
func (s *GormStore) DeleteAccount(userID string) (bool, error) {
	res := s.db.Delete(&AccountModel{}, "user_id = ?", userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveShow creates or updates a show record.
func (s *GormStore) SaveShow(show domain.Show) error {
	model, err := showToModel(show)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "details", "url", "background_image_url",
			"quizzes", "status", "updated_at", "start_time", "end_time",
		}),
	}).Create(&model).Error
}

// GetShow retrieves a show.
func (s *GormStore) GetShow(id string) (domain.Show, bool, error) {
	var model ShowModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Show{}, false, nil
		}
		return domain.Show{}, false, err
	}
	show, err := showFromModel(model)
	if err != nil {
		return domain.Show{}, false, err
	}
	return show, true, nil
}

// ListShows returns all shows ordered by created_at.
func (s *GormStore) ListShows() ([]domain.Show, error) {
	var models []ShowModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Show, 0, len(models))
	for _, m := range models {
		show, err := showFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, show)
	}
	return res, nil
}

// DeleteShow removes a show record, reporting whether it existed.
func (s *GormStore) DeleteShow(id string) (bool, error) {
	res := s.db.Delete(&ShowModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveQuiz creates or updates a quiz record.
func (s *GormStore) SaveQuiz(q domain.Quiz) error {
	model, err := quizToModel(q)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"question", "quiz_type", "options", "correct_answer", "time_limit",
			"hint", "reference_image_url", "reference_video_url", "updated_at",
		}),
	}).Create(&model).Error
}

// GetQuiz retrieves a quiz.
func (s *GormStore) GetQuiz(id string) (domain.Quiz, bool, error) {
	var model QuizModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Quiz{}, false, nil
		}
		return domain.Quiz{}, false, err
	}
	quiz, err := quizFromModel(model)
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quiz, true, nil
}

// ListQuizzes returns all quizzes ordered by created_at.
func (s *GormStore) ListQuizzes() ([]domain.Quiz, error) {
	var models []QuizModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Quiz, 0, len(models))
	for _, m := range models {
		quiz, err := quizFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, quiz)
	}
	return res, nil
}

// DeleteQuiz removes a quiz record, reporting whether it existed.
func (s *GormStore) DeleteQuiz(id string) (bool, error) {
	res := s.db.Delete(&QuizModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func accountToModel(a domain.Account) AccountModel {
	return AccountModel{
		UserID:       a.UserID,
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func accountFromModel(m AccountModel) domain.Account {
	return domain.Account{
		UserID:       m.UserID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func showToModel(show domain.Show) (ShowModel, error) {
	if show.Quizzes == nil {
		show.Quizzes = []string{}
	}
	quizzes, err := json.Marshal(show.Quizzes)
	if err != nil {
		return ShowModel{}, fmt.Errorf("marshal quizzes: %w", err)
	}
	return ShowModel{
		ID:                 show.ID,
		Title:              show.Title,
		Details:            show.Details,
		URL:                show.URL,
		BackgroundImageURL: show.BackgroundImageURL,
		Quizzes:            datatypes.JSON(quizzes),
		Status:             string(show.Status),
		CreatedAt:          show.CreatedAt,
		UpdatedAt:          show.UpdatedAt,
		StartTime:          show.StartTime,
		EndTime:            show.EndTime,
	}, nil
}

func showFromModel(m ShowModel) (domain.Show, error) {
	quizzes := []string{}
	if len(m.Quizzes) > 0 {
		if err := json.Unmarshal(m.Quizzes, &quizzes); err != nil {
			return domain.Show{}, fmt.Errorf("unmarshal quizzes for show %s: %w", m.ID, err)
		}
	}
	return domain.Show{
		ID:                 m.ID,
		Title:              m.Title,
		Details:            m.Details,
		URL:                m.URL,
		BackgroundImageURL: m.BackgroundImageURL,
		Quizzes:            quizzes,
		Status:             domain.ShowStatus(m.Status),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		StartTime:          m.StartTime,
		EndTime:            m.EndTime,
	}, nil
}

func quizToModel(q domain.Quiz) (QuizModel, error) {
	var options []byte
	if q.Options != nil {
		var err error
		options, err = json.Marshal(q.Options)
		if err != nil {
			return QuizModel{}, fmt.Errorf("marshal options: %w", err)
		}
	}
	return QuizModel{
		ID:                q.ID,
		Question:          q.Question,
		QuizType:          q.QuizType,
		Options:           datatypes.JSON(options),
		CorrectAnswer:     datatypes.JSON(q.CorrectAnswer),
		TimeLimit:         q.TimeLimit,
		Hint:              q.Hint,
		ReferenceImageURL: q.ReferenceImageURL,
		ReferenceVideoURL: q.ReferenceVideoURL,
		CreatedAt:         q.CreatedAt,
		UpdatedAt:         q.UpdatedAt,
	}, nil
}

func quizFromModel(m QuizModel) (domain.Quiz, error) {
	var options []string
	if len(m.Options) > 0 {
		if err := json.Unmarshal(m.Options, &options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options for quiz %s: %w", m.ID, err)
		}
	}
	return domain.Quiz{
		ID:                m.ID,
		Question:          m.Question,
		QuizType:          m.QuizType,
		Options:           options,
		CorrectAnswer:     json.RawMessage(m.CorrectAnswer),
		TimeLimit:         m.TimeLimit,
		Hint:              m.Hint,
		ReferenceImageURL: m.ReferenceImageURL,
		ReferenceVideoURL: m.ReferenceVideoURL,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}
