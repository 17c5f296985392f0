package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/mocks"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/persistence/file"
	"github.com/dukex/opflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testApps = []web.AppInfo{
	{ID: "daily", Reset: models.DailyReset},
	{ID: "weekly", Reset: models.WeeklyReset},
}

func setupTestApp(t *testing.T) (*fiber.App, *execution.Context, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	execCtx := execution.New(execution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	return newApp(execCtx, store), execCtx, store
}

func newApp(execCtx *execution.Context, store persistence.Persistence) *fiber.App {
	handlers := web.NewAPIHandlers(execCtx, store, testApps, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	handlers.Register(app)

	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func TestAPIHandlers_Control(t *testing.T) {
	app, execCtx, _ := setupTestApp(t)

	resp, body := do(t, app, http.MethodPost, "/control/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var control web.ControlResponse
	require.NoError(t, json.Unmarshal(body, &control))
	assert.False(t, control.Running)
	assert.True(t, control.Changed)
	assert.False(t, execCtx.IsRunning())

	_, body = do(t, app, http.MethodPost, "/control/pause", nil)
	require.NoError(t, json.Unmarshal(body, &control))
	assert.False(t, control.Changed)

	_, body = do(t, app, http.MethodPost, "/control/toggle", nil)
	require.NoError(t, json.Unmarshal(body, &control))
	assert.True(t, control.Running)
	assert.True(t, execCtx.IsRunning())

	_, body = do(t, app, http.MethodPost, "/control/resume", nil)
	require.NoError(t, json.Unmarshal(body, &control))
	assert.True(t, control.Running)
	assert.False(t, control.Changed)
}

func TestAPIHandlers_Status(t *testing.T) {
	app, execCtx, store := setupTestApp(t)

	record := models.NewAppRunRecord("daily", models.DailyReset, time.Now())
	record.Update(models.RunStatusSuccess, time.Now())
	require.NoError(t, store.RunRecordRepository().Save(context.Background(), record))

	resp, body := do(t, app, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status web.StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))

	assert.Equal(t, execCtx.RunID(), status.RunID)
	assert.True(t, status.Running)
	require.Len(t, status.Apps, 2)
	assert.Equal(t, models.RunStatusSuccess, status.Apps[0].Status)
	assert.NotNil(t, status.Apps[0].UpdatedAt)
	assert.Equal(t, models.RunStatusWait, status.Apps[1].Status)
	assert.Nil(t, status.Apps[1].UpdatedAt)
}

func TestAPIHandlers_Records(t *testing.T) {
	app, _, store := setupTestApp(t)

	resp, _ := do(t, app, http.MethodGet, "/records/daily", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, app, http.MethodPut, "/records/daily/status", web.UpdateRecordRequest{Status: models.RunStatusSuccess})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var record models.AppRunRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, models.DailyReset, record.Reset)

	stored, err := store.RunRecordRepository().Get(context.Background(), "daily")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, stored.Status)

	resp, body = do(t, app, http.MethodGet, "/records", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Records    []models.AppRunRecord `json:"records"`
		TotalCount int                   `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.TotalCount)

	resp, _ = do(t, app, http.MethodPut, "/records/daily/status", web.UpdateRecordRequest{Status: models.RunStatusWait})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err = store.RunRecordRepository().Get(context.Background(), "daily")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWait, stored.Status)

	resp, _ = do(t, app, http.MethodDelete, "/records/daily", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, app, http.MethodDelete, "/records/daily", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_UpdateRecordStatus_Invalid(t *testing.T) {
	app, _, _ := setupTestApp(t)

	tests := []struct {
		name           string
		path           string
		body           any
		expectedStatus int
	}{
		{"running is not settable", "/records/daily/status", web.UpdateRecordRequest{Status: models.RunStatusRunning}, http.StatusBadRequest},
		{"missing status", "/records/daily/status", map[string]string{}, http.StatusBadRequest},
		{"unknown application", "/records/other/status", web.UpdateRecordRequest{Status: models.RunStatusWait}, http.StatusNotFound},
		{"invalid key", "/records/a:b/status", web.UpdateRecordRequest{Status: models.RunStatusWait}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, app, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
		})
	}

	req := httptest.NewRequest(http.MethodPut, "/records/daily/status", bytes.NewBufferString("{"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestAPIHandlers_Operations(t *testing.T) {
	app, _, store := setupTestApp(t)
	repo := store.OperationRecordRepository()

	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"open_mail", "claim", "close"} {
		require.NoError(t, repo.Save(context.Background(), &models.OperationRecord{
			ID:         "op-" + name,
			RunID:      "run-1",
			Name:       name,
			Success:    true,
			Rounds:     1,
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	resp, body := do(t, app, http.MethodGet, "/operations?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recent struct {
		Operations []models.OperationRecord `json:"operations"`
		Limit      int                      `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(body, &recent))
	assert.Equal(t, 2, recent.Limit)
	require.Len(t, recent.Operations, 2)
	assert.Equal(t, "close", recent.Operations[0].Name)

	resp, body = do(t, app, http.MethodGet, "/runs/run-1/operations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run struct {
		RunID      string                   `json:"run_id"`
		Operations []models.OperationRecord `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, "run-1", run.RunID)
	require.Len(t, run.Operations, 3)
	assert.Equal(t, "open_mail", run.Operations[0].Name)

	resp, _ = do(t, app, http.MethodGet, "/operations?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, body := do(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(assert.AnError)

	resp, _ = do(t, newApp(execution.New(), store), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
