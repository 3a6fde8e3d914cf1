package tasks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandhub/backend/internal/middleware"
	"github.com/errandhub/backend/internal/models"
)

func newTestMux(t *testing.T, f *fixture) *http.ServeMux {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	h := NewHandler(f.lc, v, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tasks", h.CreateTask)
	mux.HandleFunc("GET /api/v1/tasks", h.ListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/accept", h.AcceptTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/start", h.StartTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/complete", h.CompleteTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", h.CancelTask)
	return mux
}

func do(mux http.Handler, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	return task
}

func TestHandler_FullFlow(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)
	req := f.user(5000, models.RoleRequester)
	run := f.user(1800, models.RoleRunner)

	rec := do(mux, req, http.MethodPost, "/api/v1/tasks",
		`{"title":"Buy milk","reward_amount":2000,"pickup_location":{"address":"Jl. Sudirman 1","lat":-6.2,"lng":106.8}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decodeTask(t, rec)
	assert.Equal(t, int64(1800), task.RunnerAmount)
	base := "/api/v1/tasks/" + task.ID.String()

	rec = do(mux, run, http.MethodPost, base+"/accept", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(mux, run, http.MethodPost, base+"/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(mux, run, http.MethodPost, base+"/complete", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(mux, req, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.TaskStatusCompleted, decodeTask(t, rec).Status)

	rec = do(mux, req, http.MethodPost, base+"/cancel", `{"reason":"too late"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_TRANSITION")

	rec = do(mux, req, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TaskStatusCompleted, decodeTask(t, rec).Status)
}

func TestHandler_CreateRejectsSchemaViolations(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)
	req := f.user(5000, models.RoleRequester)

	for _, body := range []string{
		`{"title":"ab","reward_amount":2000}`,
		`{"title":"Buy milk"}`,
		`{"title":"Buy milk","reward_amount":"2000"}`,
		`{"title":"Buy milk","reward_amount":2000,"tip":5}`,
		`not json`,
	} {
		rec := do(mux, req, http.MethodPost, "/api/v1/tasks", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, int64(5000), f.wallet(t, req).Balance)
}

func TestHandler_CreateInsufficientFunds(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)
	req := f.user(1500, models.RoleRequester)

	rec := do(mux, req, http.MethodPost, "/api/v1/tasks", `{"title":"Buy milk","reward_amount":1800}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_FUNDS")
}

func TestHandler_Unauthenticated(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)

	rec := do(mux, uuid.Nil, http.MethodPost, "/api/v1/tasks", `{"title":"Buy milk","reward_amount":500}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(mux, uuid.Nil, http.MethodPost, "/api/v1/tasks/"+uuid.NewString()+"/accept", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_BadIDAndMissingTask(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)
	user := f.user(0, models.RoleBoth)

	rec := do(mux, user, http.MethodGet, "/api/v1/tasks/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(mux, user, http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListByRole(t *testing.T) {
	f := newFixture(t, true)
	mux := newTestMux(t, f)
	a := f.user(5000, models.RoleBoth)
	b := f.user(5000, models.RoleBoth)

	for _, u := range []uuid.UUID{a, b} {
		rec := do(mux, u, http.MethodPost, "/api/v1/tasks", `{"title":"Errand","reward_amount":500}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(mux, a, http.MethodGet, "/api/v1/tasks?role=requester", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Tasks []models.Task `json:"tasks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.Tasks, 1)
	assert.Equal(t, a, out.Tasks[0].RequesterID)

	rec = do(mux, a, http.MethodGet, "/api/v1/tasks?role=admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
