package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cinelog/internal/scheduler"
	"cinelog/internal/types"
)

// --- Mocks ---

type mockRunner struct {
	statuses  []scheduler.TaskStatus
	runErr    error
	runCalls  []string
	statCalls int
}

func (m *mockRunner) Status() []scheduler.TaskStatus {
	m.statCalls++
	return m.statuses
}

func (m *mockRunner) RunNow(name string) error {
	m.runCalls = append(m.runCalls, name)
	return m.runErr
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func newTestServer(runner *mockRunner, db *mockPinger) *Server {
	return NewServer(ServerConfig{
		Runner: runner,
		DB:     db,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// --- Tests ---

func TestHealthz_Healthy(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %q, want ok", resp["status"])
	}
}

func TestHealthz_DatabaseDown(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeInternalDB) {
		t.Errorf("error code = %q, want %s", resp.Error.Code, types.ErrCodeInternalDB)
	}
	// The underlying driver error must not reach the client.
	if resp.Error.Message != "database unreachable" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestTasks_ReturnsRunnerSnapshot(t *testing.T) {
	lastRun := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	runner := &mockRunner{
		statuses: []scheduler.TaskStatus{
			{
				Name:        scheduler.TaskStreamingAvailability,
				NextFire:    time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC),
				LastRun:     &lastRun,
				LastCreated: 4,
			},
			{
				Name:      scheduler.TaskWatchReminder,
				Running:   true,
				NextFire:  time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC),
				LastError: "scan failed",
			},
		},
	}
	srv := newTestServer(runner, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data []scheduler.TaskStatus `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("tasks = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].Name != scheduler.TaskStreamingAvailability || resp.Data[0].LastCreated != 4 {
		t.Errorf("first task = %+v", resp.Data[0])
	}
	if !resp.Data[1].Running || resp.Data[1].LastError != "scan failed" {
		t.Errorf("second task = %+v", resp.Data[1])
	}
}

func TestRunTask_Accepted(t *testing.T) {
	runner := &mockRunner{}
	srv := newTestServer(runner, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/tasks/watch_reminder/run", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(runner.runCalls) != 1 || runner.runCalls[0] != "watch_reminder" {
		t.Errorf("run calls = %v", runner.runCalls)
	}
}

func TestRunTask_UnknownTask(t *testing.T) {
	runner := &mockRunner{
		runErr: types.NewAppError(types.ErrCodeNotFoundTask, `unknown task "nope"`, nil),
	}
	srv := newTestServer(runner, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/tasks/nope/run", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeNotFoundTask) {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestRunTask_AlreadyRunning(t *testing.T) {
	runner := &mockRunner{
		runErr: types.NewAppError(types.ErrCodeConflictTaskRunning, "task is already running", nil),
	}
	srv := newTestServer(runner, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/tasks/watch_reminder/run", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRunTask_GenericErrorHidesDetails(t *testing.T) {
	runner := &mockRunner{runErr: errors.New("secret internal detail")}
	srv := newTestServer(runner, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/tasks/watch_reminder/run", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Message != "an unexpected error occurred" {
		t.Errorf("message = %q, internal details must not leak", resp.Error.Message)
	}
}
