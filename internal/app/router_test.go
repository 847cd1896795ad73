package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/auth"
	"github.com/odyssey-erp/odyssey-gateway/internal/observability"
	"github.com/odyssey-erp/odyssey-gateway/internal/platform/db"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac"
	"github.com/odyssey-erp/odyssey-gateway/internal/rbac/rbactest"
	"github.com/odyssey-erp/odyssey-gateway/internal/roles"
	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

type fixedState db.State

func (s fixedState) State() db.State { return db.State(s) }

func newTestServer(t *testing.T, state db.State) (*httptest.Server, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := shared.NewSessionManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "gateway_session", "secret", time.Hour, false)
	t.Cleanup(func() { _ = sessions.Close() })
	csrf := shared.NewCSRFManager("csrfsecret")
	metrics := observability.NewMetrics()

	svc := rbactest.New().Service()
	mw := rbac.Middleware{Gate: rbac.NewGate(svc, metrics)}

	router := NewRouter(RouterParams{
		SessionManager: sessions,
		CSRFManager:    csrf,
		Database:       fixedState(state),
		AuthHandler:    auth.NewHandler(nil, nil, sessions, csrf, mw, 0),
		RolesHandler:   roles.NewHandler(nil, svc, mw),
		Metrics:        metrics,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, metrics
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func TestHealthzReportsConnectionState(t *testing.T) {
	cases := []struct {
		state db.State
		code  int
	}{
		{db.StateUninitialized, http.StatusOK},
		{db.StateReady, http.StatusOK},
		{db.StateError, http.StatusServiceUnavailable},
		{db.StateClosed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			srv, _ := newTestServer(t, tc.state)
			res, err := http.Get(srv.URL + "/healthz")
			require.NoError(t, err)
			defer res.Body.Close()
			assert.Equal(t, tc.code, res.StatusCode)

			var body healthResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.Equal(t, tc.state.String(), body.Database)
		})
	}
}

func TestUnsafeRequestsRequireCSRFToken(t *testing.T) {
	srv, _ := newTestServer(t, db.StateReady)
	client := newClient(t)

	res, err := client.Post(srv.URL+"/api/v1/roles/", "application/json", strings.NewReader(`{"name":"Editor"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "application/problem+json", res.Header.Get("Content-Type"))

	res, err = client.Get(srv.URL + "/api/v1/auth/csrf")
	require.NoError(t, err)
	var issued struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&issued))
	res.Body.Close()
	require.NotEmpty(t, issued.Token)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/roles/", strings.NewReader(`{"name":"Editor"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.CSRFHeader, issued.Token)
	res, err = client.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "token accepted, caller still anonymous")
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, db.StateReady)

	res, err := http.Get(srv.URL + "/api/v1/auth/csrf")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "DENY", res.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	srv, _ := newTestServer(t, db.StateReady)

	res, err := http.Get(srv.URL + "/api/v1/roles/")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gateway_http_requests_total{code="401",route="/api/v1/roles"} 1`)
	assert.Contains(t, string(body), `gateway_authorization_decisions_total{decision="unauthenticated"} 1`)
}

func TestUnknownRoutesReturnProblems(t *testing.T) {
	srv, _ := newTestServer(t, db.StateReady)

	cases := []struct {
		method string
		path   string
		status int
		title  string
	}{
		{http.MethodGet, "/nope", http.StatusNotFound, "Not Found"},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound, "Not Found"},
		{http.MethodPost, "/healthz", http.StatusMethodNotAllowed, "Method Not Allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			require.NoError(t, err)
			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			assert.Equal(t, "application/problem+json", res.Header.Get("Content-Type"))
			var problem struct {
				Title  string `json:"title"`
				Status int    `json:"status"`
			}
			require.NoError(t, json.NewDecoder(res.Body).Decode(&problem))
			assert.Equal(t, tc.title, problem.Title)
			assert.Equal(t, tc.status, problem.Status)
		})
	}
}
