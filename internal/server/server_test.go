package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizshow/internal/app"
	"quizshow/internal/domain"
	"quizshow/internal/storage"
	"quizshow/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryObjectStore) {
	t.Helper()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("NewJWTSessionStore: %v", err)
	}
	objects := storage.NewMemoryObjectStore()
	a, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: sessions,
		Objects:  objects,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, objects
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func registerAndLogin(t *testing.T, ts *httptest.Server, userID string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts/register", "", map[string]string{
		"userId": userID, "username": userID, "password": "pw",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts/login", "", map[string]string{
		"userId": userID, "password": "pw",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	login := decode[struct {
		Token string `json:"token"`
	}](t, resp)
	if login.Token == "" {
		t.Fatal("empty token")
	}
	return login.Token
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/shows"},
		{http.MethodPost, "/api/shows"},
		{http.MethodGet, "/api/quiz"},
		{http.MethodGet, "/api/accounts/someone"},
		{http.MethodPost, "/api/quiz/batch-delete"},
	} {
		resp := doJSON(t, tc.method, ts.URL+tc.path, "", nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: status = %d, want 401", tc.method, tc.path, resp.StatusCode)
		}
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/shows", "not-a-real-token", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token accepted: status = %d", resp.StatusCode)
	}
}

func TestRegisterDuplicateAndLoginFailures(t *testing.T) {
	ts, _ := newTestServer(t)
	registerAndLogin(t, ts, "alice")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts/register", "", map[string]string{
		"userId": "alice", "password": "other",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts/login", "", map[string]string{
		"userId": "alice", "password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", resp.StatusCode)
	}

	// Unknown users get the same answer as wrong passwords.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts/login", "", map[string]string{
		"userId": "nobody", "password": "pw",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown user status = %d, want 401", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if !strings.Contains(body["error"], "incorrect user id or password") {
		t.Fatalf("error = %q", body["error"])
	}
}

// flakyAccountStore simulates a record-store outage on account reads.
type flakyAccountStore struct {
	store.Store
	down bool
}

func (f *flakyAccountStore) GetAccount(userID string) (domain.Account, bool, error) {
	if f.down {
		return domain.Account{}, false, fmt.Errorf("dial tcp: connection refused")
	}
	return f.Store.GetAccount(userID)
}

func TestLoginStoreOutageIsNotAuthFailure(t *testing.T) {
	flaky := &flakyAccountStore{Store: store.NewMemoryStore()}
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("NewJWTSessionStore: %v", err)
	}
	a, err := app.New(app.Config{
		Store:    flaky,
		Sessions: sessions,
		Objects:  storage.NewMemoryObjectStore(),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	srv, err := New(Config{App: a})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts/register", "", map[string]string{
		"userId": "alice", "password": "pw",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}

	flaky.down = true
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts/login", "", map[string]string{
		"userId": "alice", "password": "pw",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("login during store outage: status = %d, want 500", resp.StatusCode)
	}
	body := decode[map[string]string](t, resp)
	if strings.Contains(body["error"], "incorrect user id or password") {
		t.Fatalf("store outage reported as bad credentials: %q", body["error"])
	}

	flaky.down = false
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/accounts/login", "", map[string]string{
		"userId": "alice", "password": "pw",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login after recovery: status = %d", resp.StatusCode)
	}
}

func TestShowCRUDOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/shows", token, map[string]any{
		"title":   "Friday Night Trivia",
		"details": "weekly",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	show := decode[domain.Show](t, resp)
	if show.ID == "" || show.Status != domain.StatusWaiting {
		t.Fatalf("unexpected show: %+v", show)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/shows/"+show.ID, token, map[string]any{
		"title": "Renamed",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decode[domain.Show](t, resp)
	if updated.Title != "Renamed" || updated.Details != "weekly" {
		t.Fatalf("patch semantics broken: %+v", updated)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/shows", token, nil)
	list := decode[struct {
		Items []domain.Show `json:"items"`
		Count int           `json:"count"`
	}](t, resp)
	if list.Count != 1 || len(list.Items) != 1 {
		t.Fatalf("list = %+v", list)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/shows/"+show.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/shows/"+show.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/shows/"+show.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestShowStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/shows", token, map[string]any{"title": "s"})
	show := decode[domain.Show](t, resp)

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/shows/"+show.ID+"/status", token, map[string]string{
		"status": "inprogress",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	started := decode[domain.Show](t, resp)
	if started.Status != domain.StatusInProgress || started.StartTime == nil {
		t.Fatalf("start did not stamp: %+v", started)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/shows/"+show.ID+"/status", token, map[string]string{
		"status": "waiting",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("illegal transition status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/shows/"+show.ID+"/status", token, map[string]string{
		"status": "cancelled",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status = %d, want 400", resp.StatusCode)
	}
}

func uploadImage(t *testing.T, ts *httptest.Server, token, url, field, filename string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fmt.Fprint(part, "fake image bytes")
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	return resp
}

func TestShowBackgroundImageOverHTTP(t *testing.T) {
	ts, objects := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/shows", token, map[string]any{"title": "s"})
	show := decode[domain.Show](t, resp)

	resp = uploadImage(t, ts, token, ts.URL+"/api/shows/"+show.ID+"/background-image", "backgroundImage", "bg.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	withImage := decode[domain.Show](t, resp)
	if withImage.BackgroundImageURL == "" {
		t.Fatal("backgroundImageUrl not set")
	}
	if objects.Len() != 1 {
		t.Fatalf("%d live objects, want 1", objects.Len())
	}

	// Wrong form field is a 400, not a silent no-op.
	resp = uploadImage(t, ts, token, ts.URL+"/api/shows/"+show.ID+"/background-image", "file", "bg.png")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong field status = %d, want 400", resp.StatusCode)
	}

	resp = uploadImage(t, ts, token, ts.URL+"/api/shows/"+show.ID+"/background-image", "backgroundImage", "script.exe")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad extension status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/shows/"+show.ID+"/background-image", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("detach status = %d", resp.StatusCode)
	}
	if objects.Len() != 0 {
		t.Fatal("object survived detach")
	}
}

func TestQuizLifecycleOverHTTP(t *testing.T) {
	ts, objects := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/quiz", token, map[string]any{
		"question":      "2+2?",
		"quizType":      "single_choice",
		"options":       []string{"3", "4"},
		"correctAnswer": "4",
		"timeLimit":     15,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	quiz := decode[domain.Quiz](t, resp)
	if string(quiz.CorrectAnswer) != `"4"` {
		t.Fatalf("correctAnswer = %s", quiz.CorrectAnswer)
	}

	resp = uploadImage(t, ts, token, ts.URL+"/api/quiz/"+quiz.ID+"/reference-image", "referenceImage", "ref.jpg")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	withImage := decode[domain.Quiz](t, resp)
	if !strings.Contains(withImage.ReferenceImageURL, "quiz_references/"+quiz.ID+"/") {
		t.Fatalf("referenceImageUrl = %q", withImage.ReferenceImageURL)
	}

	second := decode[domain.Quiz](t, doJSON(t, http.MethodPost, ts.URL+"/api/quiz", token, map[string]any{
		"question": "other",
	}))

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/quiz/batch-delete", token, map[string]any{
		"ids": []string{quiz.ID, "missing", second.ID},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("batch delete status = %d", resp.StatusCode)
	}
	if objects.Len() != 0 {
		t.Fatal("reference image survived batch delete")
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/quiz", token, nil)
	list := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	if list.Count != 0 {
		t.Fatalf("count = %d, want 0", list.Count)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/quiz/batch-delete", token, map[string]any{"ids": []string{}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty ids status = %d, want 400", resp.StatusCode)
	}
}

func TestMethodNotAllowedAndBadJSON(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/accounts/register", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/shows", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad JSON status = %d, want 400", resp.StatusCode)
	}
}

func TestLogoutRevokesTokenOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "host")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts/logout", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/shows", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: status = %d", resp.StatusCode)
	}
}

func TestAccountEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	token := registerAndLogin(t, ts, "alice")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/accounts/alice", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account status = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.Contains(strings.ToLower(string(raw)), "password") {
		t.Fatalf("account payload leaks credentials: %s", raw)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/accounts/nobody", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing account status = %d, want 404", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/accounts/alice", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete account status = %d", resp.StatusCode)
	}
}
