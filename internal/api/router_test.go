package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ritmohq/ritmo/internal/events"
	"github.com/ritmohq/ritmo/internal/service"
	"github.com/ritmohq/ritmo/internal/storage"
)

const testSecret = "router-test-secret"

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbPath := filepath.Join(t.TempDir(), "api-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	svc := service.New(repo, events.NewPublisher(nil, "", logger), 12, logger)
	return NewRouter(svc, testSecret)
}

func authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	token, err := IssueToken(testSecret, "user-1", "user@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func TestRouterRejectsMissingAndBadTokens(t *testing.T) {
	router := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", recorder.Code)
	}

	expired, err := IssueToken(testSecret, "user-1", "", -time.Hour)
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/habits", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with expired token, got %d", recorder.Code)
	}
}

func TestHabitLifecycleOverHTTP(t *testing.T) {
	router := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost, "/api/v1/habits",
		`{"name":"Read","frequency":{"kind":"daily"}}`))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create habit: %d %s", recorder.Code, recorder.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost,
		"/api/v1/habits/"+created.ID+"/complete", `{"notes":"first"}`))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("first completion: %d %s", recorder.Code, recorder.Body.String())
	}
	var completion struct {
		Streak    int  `json:"streak"`
		Duplicate bool `json:"duplicate"`
		Count     int  `json:"count"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &completion); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if completion.Streak != 1 || completion.Duplicate {
		t.Fatalf("unexpected first completion: %+v", completion)
	}

	// Same day again: 200, count bumped, streak untouched.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost,
		"/api/v1/habits/"+created.ID+"/complete", ""))
	if recorder.Code != http.StatusOK {
		t.Fatalf("duplicate completion: %d %s", recorder.Code, recorder.Body.String())
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &completion); err != nil {
		t.Fatalf("decode duplicate completion: %v", err)
	}
	if !completion.Duplicate || completion.Count != 2 || completion.Streak != 1 {
		t.Fatalf("unexpected duplicate completion: %+v", completion)
	}

	// A completion dated in the future is rejected.
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost,
		"/api/v1/habits/"+created.ID+"/complete", `{"day":"2999-01-01"}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for future-dated completion, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodGet, "/api/v1/habits/missing", ""))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown habit, got %d", recorder.Code)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	router := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost, "/api/v1/tasks",
		`{"description":"Recurring without rule","isRecurring":true}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for recurring task without frequency, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost, "/api/v1/tasks",
		`{"description":"Bad energy","energyPoints":4}`))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for energy outside 1/3/5, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, http.MethodPost, "/api/v1/tasks",
		`{"description":"Water plants","energyPoints":1,"isRecurring":true,"frequency":{"kind":"interval","intervalDays":3}}`))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create interval task: %d %s", recorder.Code, recorder.Body.String())
	}
}
