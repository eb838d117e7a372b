package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/mailer"
	"github.com/harlequingg/taskd/internal/service"
)

type testServer struct {
	*httptest.Server
	app *application
	ctx context.Context
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := data.Open(ctx, data.InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var cfg config
	cfg.env = "testing"
	cfg.jwt.secret = "test-secret"
	cfg.jwt.ttl = time.Hour
	cfg.cors.trustedOrigins = []string{"https://app.example.com"}

	app := newApplication(cfg, store, mailer.Noop{}, zap.NewNop().Sugar(), service.WithHashCost(bcrypt.MinCost))
	ts := httptest.NewServer(app.routes(ctx))
	t.Cleanup(ts.Close)
	t.Cleanup(app.tasks.Wait)
	return &testServer{Server: ts, app: app, ctx: ctx}
}

type response struct {
	status int
	header http.Header
	body   map[string]any
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(js)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	out := response{status: res.StatusCode, header: res.Header}
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

// register creates a user and returns its id and a bearer token.
func (ts *testServer) register(t *testing.T, username, password string) (int64, string) {
	t.Helper()

	res := ts.do(t, http.MethodPost, "/v1/users", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	id := int64(res.body["user"].(map[string]any)["id"].(float64))

	res = ts.do(t, http.MethodPost, "/v1/tokens/authentication", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	token := res.body["authentication_token"].(map[string]any)["token"].(string)
	return id, token
}

func taskField(res response, field string) any {
	return res.body["task"].(map[string]any)[field]
}

func TestHealthcheck(t *testing.T) {
	ts := newTestServer(t)

	res := ts.do(t, http.MethodGet, "/v1/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "available", res.body["status"])
	assert.Equal(t, version, res.body["version"])
	assert.NotEmpty(t, res.header.Get("X-Request-Id"))
}

func TestTaskLifecycle(t *testing.T) {
	ts := newTestServer(t)

	alexID, alex := ts.register(t, "alex", "adelina")
	badBoyID, badBoy := ts.register(t, "alex badBoy", "adelina")

	res := ts.do(t, http.MethodPost, "/v1/tasks", alex, map[string]any{"message": "Sample", "assignee_id": alexID})
	require.Equal(t, http.StatusCreated, res.status, res.body)
	taskID := int64(taskField(res, "id").(float64))
	taskPath := fmt.Sprintf("/v1/tasks/%d", taskID)
	assert.Equal(t, taskPath, res.header.Get("Location"))
	assert.Equal(t, float64(alexID), taskField(res, "creator_id"))

	t.Run("anonymous cannot delete", func(t *testing.T) {
		res := ts.do(t, http.MethodDelete, taskPath, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)

		res = ts.do(t, http.MethodGet, taskPath, "", nil)
		assert.Equal(t, http.StatusOK, res.status)
	})

	t.Run("anonymous cannot reassign", func(t *testing.T) {
		res := ts.do(t, http.MethodPut, taskPath, "", map[string]any{"message": "Sample", "assignee_id": badBoyID})
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("someone else than owner cannot delete", func(t *testing.T) {
		res := ts.do(t, http.MethodDelete, taskPath, badBoy, nil)
		assert.Equal(t, http.StatusForbidden, res.status)

		res = ts.do(t, http.MethodGet, taskPath, "", nil)
		assert.Equal(t, http.StatusOK, res.status)
	})

	t.Run("someone else than creator or owner cannot reassign", func(t *testing.T) {
		res := ts.do(t, http.MethodPut, taskPath, badBoy, map[string]any{"message": "Sample", "assignee_id": badBoyID})
		assert.Equal(t, http.StatusForbidden, res.status)

		res = ts.do(t, http.MethodGet, taskPath, "", nil)
		assert.Equal(t, float64(alexID), taskField(res, "assignee_id"))
	})

	t.Run("creator reassigns, new owner hands it back", func(t *testing.T) {
		res := ts.do(t, http.MethodPut, taskPath, alex, map[string]any{"message": "Sample", "assignee_id": badBoyID})
		require.Equal(t, http.StatusOK, res.status, res.body)
		assert.Equal(t, float64(badBoyID), taskField(res, "assignee_id"))

		res = ts.do(t, http.MethodPut, taskPath, badBoy, map[string]any{"message": "Sample", "assignee_id": alexID})
		require.Equal(t, http.StatusOK, res.status, res.body)
		assert.Equal(t, float64(alexID), taskField(res, "assignee_id"))
	})

	t.Run("list by assignee", func(t *testing.T) {
		res := ts.do(t, http.MethodGet, fmt.Sprintf("/v1/tasks?assignee_id=%d", alexID), "", nil)
		require.Equal(t, http.StatusOK, res.status)
		assert.Len(t, res.body["tasks"], 1)

		res = ts.do(t, http.MethodGet, fmt.Sprintf("/v1/tasks?assignee_id=%d", badBoyID), "", nil)
		require.Equal(t, http.StatusOK, res.status)
		assert.Len(t, res.body["tasks"], 0)
	})

	t.Run("owner deletes", func(t *testing.T) {
		res := ts.do(t, http.MethodDelete, taskPath, alex, nil)
		assert.Equal(t, http.StatusOK, res.status)

		res = ts.do(t, http.MethodGet, taskPath, "", nil)
		assert.Equal(t, http.StatusNotFound, res.status)
	})
}

func TestCreateTask(t *testing.T) {
	ts := newTestServer(t)
	alexID, alex := ts.register(t, "alex", "adelina")

	tests := []struct {
		name   string
		token  string
		body   any
		status int
	}{
		{"anonymous", "", map[string]any{"message": "Sample", "assignee_id": alexID}, http.StatusUnauthorized},
		{"empty message", alex, map[string]any{"message": "", "assignee_id": alexID}, http.StatusUnprocessableEntity},
		{"unknown assignee", alex, map[string]any{"message": "Sample", "assignee_id": 999}, http.StatusUnprocessableEntity},
		{"unknown field", alex, map[string]any{"message": "Sample", "owner": alexID}, http.StatusBadRequest},
		{"wrong type", alex, map[string]any{"message": "Sample", "assignee_id": "alex"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ts.do(t, http.MethodPost, "/v1/tasks", tt.token, tt.body)
			assert.Equal(t, tt.status, res.status, res.body)
		})
	}
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t)
	_, alex := ts.register(t, "alex", "adelina")

	t.Run("wrong password", func(t *testing.T) {
		res := ts.do(t, http.MethodPost, "/v1/tokens/authentication", "", map[string]string{"username": "alex", "password": "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("duplicate username", func(t *testing.T) {
		res := ts.do(t, http.MethodPost, "/v1/users", "", map[string]string{"username": "alex", "password": "adelina"})
		assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	})

	t.Run("current user", func(t *testing.T) {
		res := ts.do(t, http.MethodGet, "/v1/users/me", alex, nil)
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "alex", res.body["user"].(map[string]any)["username"])
		_, leaked := res.body["user"].(map[string]any)["password_hash"]
		assert.False(t, leaked)
	})

	t.Run("current user requires a token", func(t *testing.T) {
		res := ts.do(t, http.MethodGet, "/v1/users/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("garbage token", func(t *testing.T) {
		res := ts.do(t, http.MethodGet, "/v1/healthcheck", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)
		assert.Equal(t, "Bearer", res.header.Get("WWW-Authenticate"))
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := *ts.app
		other.config.jwt.secret = "another-secret"
		token, _, err := other.issueToken(&data.User{ID: 1}, time.Now())
		require.NoError(t, err)

		res := ts.do(t, http.MethodGet, "/v1/users/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("expired token", func(t *testing.T) {
		token, _, err := ts.app.issueToken(&data.User{ID: 1}, time.Now().Add(-2*time.Hour))
		require.NoError(t, err)

		res := ts.do(t, http.MethodGet, "/v1/users/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})

	t.Run("token for a user that does not exist", func(t *testing.T) {
		token, _, err := ts.app.issueToken(&data.User{ID: 404}, time.Now())
		require.NoError(t, err)

		res := ts.do(t, http.MethodGet, "/v1/users/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, res.status)
	})
}

func TestParseToken(t *testing.T) {
	app := &application{}
	app.config.jwt.secret = "test-secret"
	app.config.jwt.ttl = time.Minute

	token, expiry, err := app.issueToken(&data.User{ID: 7}, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiry, 5*time.Second)

	id, err := app.parseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/v1/tasks/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)

	res, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "https://app.example.com", res.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	res2, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer res2.Body.Close()
	assert.Empty(t, res2.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t)
	ts.app.config.limiter.enabled = true
	ts.app.config.limiter.maxRequestPerSecond = 0.001
	ts.app.config.limiter.burst = 2
	limited := httptest.NewServer(ts.app.routes(ts.ctx))
	t.Cleanup(limited.Close)

	var statuses []int
	for range 3 {
		res, err := limited.Client().Get(limited.URL + "/v1/healthcheck")
		require.NoError(t, err)
		res.Body.Close()
		statuses = append(statuses, res.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}
