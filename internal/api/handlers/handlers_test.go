package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/submission-portal/internal/api/middleware"
	"github.com/bigkaa/submission-portal/internal/domain/model"
	"github.com/bigkaa/submission-portal/internal/repository/memory"
	"github.com/bigkaa/submission-portal/internal/service"
	"github.com/bigkaa/submission-portal/internal/storage/blob/memstore"
	"github.com/bigkaa/submission-portal/internal/storage/wal"
)

// subjectHeader — заголовок, из которого тестовый middleware берёт subject.
const subjectHeader = "X-Test-Subject"

const testMaxFileSize = 1024

type testEnv struct {
	router http.Handler
	users  *memory.UserRepository
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestEnv собирает API поверх хранилищ в памяти.
// Пользователи: admin-1 (ADMIN), student-alice и student-bob (STUDENT).
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	journal, err := wal.New(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания WAL: %v", err)
	}

	users := memory.NewUserRepository()
	for _, u := range []model.User{
		{ID: "admin-1", Name: "Admin", Email: "admin@example.com", Role: model.RoleAdmin},
		{ID: "student-alice", Name: "Alice", Email: "alice@example.com", Role: model.RoleStudent},
		{ID: "student-bob", Name: "Bob", Email: "bob@example.com", Role: model.RoleStudent},
	} {
		u := u
		if err := users.Create(context.Background(), &u); err != nil {
			t.Fatalf("Ошибка создания пользователя %s: %v", u.ID, err)
		}
	}

	subs := service.NewSubmissionService(
		memory.NewSubmissionRepository(), memstore.New(), journal,
		service.NewSubmissionCache(100, time.Minute),
		service.SubmissionOptions{MaxFileSize: testMaxFileSize},
		testLogger(),
	)
	userSvc := service.NewUserService(users, subs, testLogger())
	h := NewAPIHandler(subs, userSvc, testMaxFileSize, testLogger())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if sub := req.Header.Get(subjectHeader); sub != "" {
				req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.AuthClaims{Subject: sub}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/v1/me", h.GetMe)
	r.Get("/api/v1/submissions", h.ListSubmissions)
	r.Get("/api/v1/submissions/me", h.GetMySubmission)
	r.Put("/api/v1/submissions/me", h.PutMySubmission)
	r.Get("/api/v1/submissions/{id}", h.GetSubmission)
	r.Get("/api/v1/submissions/{id}/download", h.DownloadSubmission)
	r.Post("/api/v1/submissions/{id}/review", h.ReviewSubmission)
	r.Get("/api/v1/users", h.ListUsers)
	r.Post("/api/v1/users", h.RegisterUser)
	r.Get("/api/v1/users/{id}", h.GetUser)
	r.Delete("/api/v1/users/{id}", h.DeleteUser)

	return &testEnv{router: r, users: users}
}

func (e *testEnv) do(t *testing.T, method, path, subject string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if subject != "" {
		req.Header.Set(subjectHeader, subject)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// upload отправляет файл студента через multipart.
func (e *testEnv) upload(t *testing.T, subject, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile ошибка: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()
	return e.do(t, http.MethodPut, "/api/v1/submissions/me", subject, &buf, mw.FormDataContentType())
}

func (e *testEnv) mustUpload(t *testing.T, subject, name, content string) submissionResponse {
	t.Helper()
	w := e.upload(t, subject, name, content)
	if w.Code != http.StatusOK {
		t.Fatalf("Загрузка: статус %d, тело %s", w.Code, w.Body.String())
	}
	var resp submissionResponse
	decode(t, w, &resp)
	return resp
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Ошибка декодирования ответа: %v (тело %q)", err, w.Body.String())
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Ожидался статус %d, получен %d (тело %s)", status, w.Code, w.Body.String())
	}
	var body errorBody
	decode(t, w, &body)
	if body.Error.Code != code {
		t.Errorf("Ожидался код %s, получен %s", code, body.Error.Code)
	}
}

// --- Идентификация ---

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/me", "student-alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", w.Code)
	}
	var me userResponse
	decode(t, w, &me)
	if me.ID != "student-alice" || me.Role != "STUDENT" {
		t.Errorf("Неожиданный пользователь: %+v", me)
	}
}

func TestActor_Errors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("без claims", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/me", "", nil, "")
		assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
	})
	t.Run("незарегистрированный субъект", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/me", "stranger", nil, "")
		assertError(t, w, http.StatusForbidden, "FORBIDDEN")
	})
}

// --- Работы ---

func TestPutMySubmission(t *testing.T) {
	env := newTestEnv(t)

	resp := env.mustUpload(t, "student-alice", "report.pdf", "hello")
	if resp.Status != "PENDING" || !resp.HasFile {
		t.Errorf("Ожидалась PENDING с файлом, получено %+v", resp)
	}
	if resp.FileName == nil || *resp.FileName != "report.pdf" {
		t.Errorf("Неожиданное имя файла: %v", resp.FileName)
	}
	if resp.FileSize == nil || *resp.FileSize != 5 {
		t.Errorf("Неожиданный размер: %v", resp.FileSize)
	}

	w := env.do(t, http.MethodGet, "/api/v1/submissions/me", "student-alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", w.Code)
	}
	var mine submissionResponse
	decode(t, w, &mine)
	if mine.ID != resp.ID {
		t.Errorf("ID не совпадает: %s != %s", mine.ID, resp.ID)
	}
}

func TestPutMySubmission_Errors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("администратор", func(t *testing.T) {
		w := env.upload(t, "admin-1", "a.txt", "x")
		assertError(t, w, http.StatusForbidden, "FORBIDDEN")
	})
	t.Run("пустой файл", func(t *testing.T) {
		w := env.upload(t, "student-alice", "a.txt", "")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("превышение размера", func(t *testing.T) {
		w := env.upload(t, "student-alice", "big.bin", strings.Repeat("x", testMaxFileSize+1))
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("не multipart", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/v1/submissions/me", "student-alice",
			strings.NewReader("{}"), "application/json")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("нет поля file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("comment", "без файла")
		_ = mw.Close()
		w := env.do(t, http.MethodPut, "/api/v1/submissions/me", "student-alice", &buf, mw.FormDataContentType())
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
}

func TestGetMySubmission_NotUploaded(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/submissions/me", "student-bob", nil, "")
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestListSubmissions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "a.txt", "alice")
	env.mustUpload(t, "student-bob", "b.txt", "bob")

	review := env.do(t, http.MethodPost, "/api/v1/submissions/"+alice.ID+"/review", "admin-1",
		strings.NewReader(`{"decision":"APPROVE"}`), "application/json")
	if review.Code != http.StatusOK {
		t.Fatalf("Проверка: статус %d, тело %s", review.Code, review.Body.String())
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"все", "", 2},
		{"approved", "?status=APPROVED", 1},
		{"pending в нижнем регистре", "?status=pending", 1},
		{"rejected", "?status=REJECTED", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/submissions"+tt.query, "admin-1", nil, "")
			if w.Code != http.StatusOK {
				t.Fatalf("Ожидался 200, получен %d", w.Code)
			}
			var list submissionListResponse
			decode(t, w, &list)
			if list.Total != tt.want || len(list.Items) != tt.want {
				t.Errorf("Ожидалось %d работ, получено %d", tt.want, list.Total)
			}
		})
	}

	t.Run("неизвестный статус", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/submissions?status=ARCHIVED", "admin-1", nil, "")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("студент", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/submissions", "student-alice", nil, "")
		assertError(t, w, http.StatusForbidden, "FORBIDDEN")
	})
}

func TestGetSubmission_Access(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "a.txt", "alice")

	tests := []struct {
		name    string
		subject string
		id      string
		status  int
	}{
		{"владелец", "student-alice", alice.ID, http.StatusOK},
		{"администратор", "admin-1", alice.ID, http.StatusOK},
		{"чужой студент", "student-bob", alice.ID, http.StatusForbidden},
		{"несуществующая", "admin-1", "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/submissions/"+tt.id, tt.subject, nil, "")
			if w.Code != tt.status {
				t.Errorf("Ожидался %d, получен %d (тело %s)", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestDownloadSubmission(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "отчёт.txt", "содержимое")

	w := env.do(t, http.MethodGet, "/api/v1/submissions/"+alice.ID+"/download", "admin-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d (тело %s)", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "содержимое" {
		t.Errorf("Неожиданное содержимое: %q", got)
	}
	if got := w.Header().Get("X-Checksum-SHA256"); alice.Checksum == nil || got != *alice.Checksum {
		t.Errorf("Неожиданный X-Checksum-SHA256: %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment") {
		t.Errorf("Неожиданный Content-Disposition: %q", got)
	}

	forbidden := env.do(t, http.MethodGet, "/api/v1/submissions/"+alice.ID+"/download", "student-bob", nil, "")
	assertError(t, forbidden, http.StatusForbidden, "FORBIDDEN")
}

func TestReviewSubmission(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "a.txt", "alice")
	path := "/api/v1/submissions/" + alice.ID + "/review"

	t.Run("студент с неверным решением", func(t *testing.T) {
		w := env.do(t, http.MethodPost, path, "student-bob", strings.NewReader(`{"decision":"ARCHIVE"}`), "application/json")
		assertError(t, w, http.StatusForbidden, "FORBIDDEN")
	})
	t.Run("неверное решение", func(t *testing.T) {
		w := env.do(t, http.MethodPost, path, "admin-1", strings.NewReader(`{"decision":"ARCHIVE"}`), "application/json")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("невалидный JSON", func(t *testing.T) {
		w := env.do(t, http.MethodPost, path, "admin-1", strings.NewReader(`{`), "application/json")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})
	t.Run("reject без отзыва", func(t *testing.T) {
		w := env.do(t, http.MethodPost, path, "admin-1", strings.NewReader(`{"decision":"REJECT"}`), "application/json")
		assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
	})

	w := env.do(t, http.MethodPost, path, "admin-1",
		strings.NewReader(`{"decision":"REQUEST_CHANGES","feedback":"Добавьте выводы"}`), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d (тело %s)", w.Code, w.Body.String())
	}
	var resp submissionResponse
	decode(t, w, &resp)
	if resp.Status != "CHANGES_REQUESTED" || resp.Feedback == nil || *resp.Feedback != "Добавьте выводы" {
		t.Errorf("Неожиданный результат проверки: %+v", resp)
	}
	if resp.ReviewedBy == nil || *resp.ReviewedBy != "admin-1" {
		t.Errorf("Ожидался reviewed_by admin-1, получено %v", resp.ReviewedBy)
	}

	again := env.do(t, http.MethodPost, path, "admin-1", strings.NewReader(`{"decision":"APPROVE"}`), "application/json")
	assertError(t, again, http.StatusConflict, "INVALID_TRANSITION")
}

func TestPutMySubmission_ApprovedIsFinal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "a.txt", "alice")
	env.do(t, http.MethodPost, "/api/v1/submissions/"+alice.ID+"/review", "admin-1",
		strings.NewReader(`{"decision":"APPROVE"}`), "application/json")

	w := env.upload(t, "student-alice", "b.txt", "again")
	assertError(t, w, http.StatusConflict, "INVALID_TRANSITION")
}

// --- Пользователи ---

func TestRegisterUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/users", "admin-1",
		strings.NewReader(`{"id":"student-carol","name":"Carol","email":"carol@example.com"}`), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("Ожидался 201, получен %d (тело %s)", w.Code, w.Body.String())
	}
	var u userResponse
	decode(t, w, &u)
	if u.ID != "student-carol" || u.Role != "STUDENT" {
		t.Errorf("Неожиданный пользователь: %+v", u)
	}

	tests := []struct {
		name    string
		subject string
		body    string
		status  int
		code    string
	}{
		{"дубликат email", "admin-1", `{"name":"Carol 2","email":"carol@example.com"}`, http.StatusConflict, "CONFLICT"},
		{"некорректный email", "admin-1", `{"name":"Dave","email":"dave"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"неизвестная роль", "admin-1", `{"name":"Dave","email":"dave@example.com","role":"TEACHER"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"студент", "student-alice", `{"name":"Dave","email":"dave@example.com"}`, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/users", tt.subject, strings.NewReader(tt.body), "application/json")
			assertError(t, w, tt.status, tt.code)
		})
	}
}

func TestListAndGetUsers(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/users", "admin-1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", w.Code)
	}
	var list userListResponse
	decode(t, w, &list)
	if list.Total != 3 {
		t.Errorf("Ожидалось 3 пользователя, получено %d", list.Total)
	}

	got := env.do(t, http.MethodGet, "/api/v1/users/student-bob", "admin-1", nil, "")
	if got.Code != http.StatusOK {
		t.Errorf("Ожидался 200, получен %d", got.Code)
	}

	missing := env.do(t, http.MethodGet, "/api/v1/users/nobody", "admin-1", nil, "")
	assertError(t, missing, http.StatusNotFound, "NOT_FOUND")

	student := env.do(t, http.MethodGet, "/api/v1/users", "student-bob", nil, "")
	assertError(t, student, http.StatusForbidden, "FORBIDDEN")
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.mustUpload(t, "student-alice", "a.txt", "alice")

	w := env.do(t, http.MethodDelete, "/api/v1/users/student-alice", "admin-1", nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Ожидался 204, получен %d (тело %s)", w.Code, w.Body.String())
	}

	gone := env.do(t, http.MethodGet, "/api/v1/submissions/"+alice.ID, "admin-1", nil, "")
	assertError(t, gone, http.StatusNotFound, "NOT_FOUND")

	self := env.do(t, http.MethodDelete, "/api/v1/users/admin-1", "admin-1", nil, "")
	assertError(t, self, http.StatusBadRequest, "VALIDATION_ERROR")

	missing := env.do(t, http.MethodDelete, "/api/v1/users/student-alice", "admin-1", nil, "")
	assertError(t, missing, http.StatusNotFound, "NOT_FOUND")
}
