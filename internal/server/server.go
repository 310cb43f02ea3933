package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"quizshow/internal/app"
	"quizshow/internal/domain"
	"quizshow/internal/ratelimit"
	"quizshow/internal/util"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Redis backs the register/login rate limiters. When RedisAddr is empty
	// the limiters are disabled (local development and tests).
	RedisAddr     string
	RedisPassword string

	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int

	MaxUploadBytes         int64
	AllowedImageExtensions []string
	TrustedProxies         []string
}

// Server exposes the HTTP API.
type Server struct {
	app *app.App
	mux *http.ServeMux

	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies

	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	s := &Server{
		app:               cfg.App,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedImageExtensions),
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	s.trustedProxies = trusted

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "quizshow:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}

	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the shared middleware.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// accounts
	s.mux.HandleFunc("/api/accounts/register", s.handleRegister)
	s.mux.HandleFunc("/api/accounts/login", s.handleLogin)
	s.mux.Handle("/api/accounts/logout", s.authenticated(s.handleLogout))
	s.mux.Handle("/api/accounts/", s.authenticated(s.handleAccountByID))

	// shows
	s.mux.Handle("/api/shows", s.authenticated(s.handleShows))
	s.mux.Handle("/api/shows/", s.authenticated(s.handleShowSubpath))

	// quizzes
	s.mux.Handle("/api/quiz", s.authenticated(s.handleQuizzes))
	s.mux.Handle("/api/quiz/batch-delete", s.authenticated(s.handleQuizBatchDelete))
	s.mux.Handle("/api/quiz/", s.authenticated(s.handleQuizSubpath))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Account)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		account, err := s.app.Authenticate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, account)
	})
}

// account handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registrations, try again later") {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, err := s.app.Register(req.UserID, req.Username, req.Password)
	if err != nil {
		s.audit(r, "register", "failure", "userId", req.UserID)
		writeAppError(w, err)
		return
	}
	s.audit(r, "register", "success", "userId", account.UserID)
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts, try again later") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := s.app.Login(req.UserID, req.Password)
	if err != nil {
		s.audit(r, "login", "failure", "userId", req.UserID)
		// An unknown user and a wrong password look the same to callers.
		// Anything else (store outage, token signing) is a server fault.
		if errors.Is(err, app.ErrAccountNotFound) || errors.Is(err, app.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "login", "success", "userId", account.UserID)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Account: account})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ domain.Account) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccountByID(w http.ResponseWriter, r *http.Request, _ domain.Account) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if userID == "" || strings.Contains(userID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		account, err := s.app.GetAccount(userID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, account)
	case http.MethodDelete:
		deleted, err := s.app.DeleteAccount(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, app.ErrAccountNotFound.Error())
			return
		}
		s.audit(r, "account_delete", "success", "userId", userID)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// show handlers
func (s *Server) handleShows(w http.ResponseWriter, r *http.Request, _ domain.Account) {
	switch r.Method {
	case http.MethodGet:
		shows, err := s.app.ListShows()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": shows,
			"count": len(shows),
		})
	case http.MethodPost:
		var req showRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		show, err := s.app.CreateShow(domain.Show{
			Title:   strVal(req.Title),
			Details: strVal(req.Details),
			URL:     strVal(req.URL),
			Quizzes: req.quizzesOrNil(),
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, show)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleShowSubpath(w http.ResponseWriter, r *http.Request, account domain.Account) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/shows/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(sub, "/") {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleShowByID(w, r, id)
	case "status":
		s.handleShowStatus(w, r, id)
	case "background-image":
		s.handleShowBackgroundImage(w, r, account, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleShowByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		show, err := s.app.GetShow(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, show)
	case http.MethodPut:
		var req showRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		show, err := s.app.UpdateShow(r.Context(), id, app.ShowPatch{
			Title:              req.Title,
			Details:            req.Details,
			URL:                req.URL,
			Quizzes:            req.Quizzes,
			BackgroundImageURL: req.BackgroundImageURL,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, show)
	case http.MethodDelete:
		deleted, err := s.app.DeleteShow(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, app.ErrShowNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleShowStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req statusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	show, err := s.app.SetShowStatus(id, domain.ShowStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (s *Server) handleShowBackgroundImage(w http.ResponseWriter, r *http.Request, account domain.Account, id string) {
	switch r.Method {
	case http.MethodPost:
		file, header, ok := s.formImage(w, r, "backgroundImage")
		if !ok {
			return
		}
		defer file.Close()
		show, err := s.app.AttachShowBackgroundImage(r.Context(), id, file, header.Size, header.Filename, header.Header.Get("Content-Type"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "show_background_upload", "success", "showId", id, "userId", account.UserID)
		writeJSON(w, http.StatusOK, show)
	case http.MethodDelete:
		if _, err := s.app.DetachShowBackgroundImage(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// quiz handlers
func (s *Server) handleQuizzes(w http.ResponseWriter, r *http.Request, _ domain.Account) {
	switch r.Method {
	case http.MethodGet:
		quizzes, err := s.app.ListQuizzes()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": quizzes,
			"count": len(quizzes),
		})
	case http.MethodPost:
		var req quizRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		quiz, err := s.app.CreateQuiz(req.toQuiz())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, quiz)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleQuizBatchDelete(w http.ResponseWriter, r *http.Request, _ domain.Account) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req batchDeleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if err := s.app.DeleteQuizzes(r.Context(), req.IDs); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQuizSubpath(w http.ResponseWriter, r *http.Request, account domain.Account) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/quiz/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(sub, "/") {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleQuizByID(w, r, id)
	case "reference-image":
		s.handleQuizReferenceImage(w, r, account, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleQuizByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		quiz, err := s.app.GetQuiz(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
	case http.MethodPut:
		var req quizRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		quiz, err := s.app.UpdateQuiz(r.Context(), id, app.QuizPatch{
			Question:          req.Question,
			QuizType:          req.QuizType,
			Options:           req.Options,
			CorrectAnswer:     req.CorrectAnswer,
			TimeLimit:         req.TimeLimit,
			Hint:              req.Hint,
			ReferenceImageURL: req.ReferenceImageURL,
			ReferenceVideoURL: req.ReferenceVideoURL,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quiz)
	case http.MethodDelete:
		deleted, err := s.app.DeleteQuiz(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, app.ErrQuizNotFound.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleQuizReferenceImage(w http.ResponseWriter, r *http.Request, account domain.Account, id string) {
	switch r.Method {
	case http.MethodPost:
		file, header, ok := s.formImage(w, r, "referenceImage")
		if !ok {
			return
		}
		defer file.Close()
		quiz, err := s.app.AttachQuizReferenceImage(r.Context(), id, file, header.Size, header.Filename, header.Header.Get("Content-Type"))
		if err != nil {
			writeAppError(w, err)
			return
		}
		s.audit(r, "quiz_reference_upload", "success", "quizId", id, "userId", account.UserID)
		writeJSON(w, http.StatusOK, quiz)
	case http.MethodDelete:
		if _, err := s.app.DetachQuizReferenceImage(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

// formImage parses the multipart body and returns the named file part. It
// writes the error response itself when the part is missing or rejected.
func (s *Server) formImage(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("image is required (field: %s)", field))
		return nil, nil, false
	}
	if !s.isExtensionAllowed(header.Filename) {
		file.Close()
		writeError(w, http.StatusBadRequest, "unsupported image type")
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrShowNotFound),
		errors.Is(err, app.ErrQuizNotFound),
		errors.Is(err, app.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrDuplicateUser),
		errors.Is(err, app.ErrUserIDAndPasswordRequired),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type registerRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Account domain.Account `json:"account"`
}

// showRequest serves both create and update. Fields are pointers so updates
// can tell "absent" apart from "set to empty".
type showRequest struct {
	Title              *string   `json:"title"`
	Details            *string   `json:"details"`
	URL                *string   `json:"url"`
	Quizzes            *[]string `json:"quizzes"`
	BackgroundImageURL *string   `json:"backgroundImageUrl"`
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (req showRequest) quizzesOrNil() []string {
	if req.Quizzes == nil {
		return nil
	}
	return *req.Quizzes
}

type quizRequest struct {
	Question          *string         `json:"question"`
	QuizType          *string         `json:"quizType"`
	Options           *[]string       `json:"options"`
	CorrectAnswer     json.RawMessage `json:"correctAnswer"`
	TimeLimit         *int            `json:"timeLimit"`
	Hint              *string         `json:"hint"`
	ReferenceImageURL *string         `json:"referenceImageUrl"`
	ReferenceVideoURL *string         `json:"referenceVideoUrl"`
}

func (req quizRequest) toQuiz() domain.Quiz {
	quiz := domain.Quiz{CorrectAnswer: req.CorrectAnswer}
	if req.Question != nil {
		quiz.Question = *req.Question
	}
	if req.QuizType != nil {
		quiz.QuizType = *req.QuizType
	}
	if req.Options != nil {
		quiz.Options = *req.Options
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = *req.TimeLimit
	}
	if req.Hint != nil {
		quiz.Hint = *req.Hint
	}
	if req.ReferenceVideoURL != nil {
		quiz.ReferenceVideoURL = *req.ReferenceVideoURL
	}
	return quiz
}

type statusRequest struct {
	Status string `json:"status"`
}

type batchDeleteRequest struct {
	IDs []string `json:"ids"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}
