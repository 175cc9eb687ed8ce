package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/gonotify/internal/auth"
	"github.com/Tyrowin/gonotify/internal/config"
	"github.com/Tyrowin/gonotify/internal/notify"
	"github.com/Tyrowin/gonotify/internal/testhelpers"
	"github.com/Tyrowin/gonotify/internal/users"
)

const testSecret = "test-secret-key-0123456789"

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	client   *http.Client
	cfg      *config.Config
	sessions *auth.Authority
	registry *notify.Registry
}

func newTestEnv(t *testing.T, opts ...func(*config.Config, *Deps)) *testEnv {
	t.Helper()

	cfg := config.NewConfig()
	cfg.CookieSecure = false
	cfg.LoginRateLimit = config.RateLimitConfig{PerSecond: 1000, Burst: 1000}

	d := Deps{
		Config:   cfg,
		Users:    users.NewService(users.NewMemoryRepo(nil), users.NewBcryptHasher(bcrypt.MinCost)),
		Sessions: auth.NewAuthority([]byte(testSecret)),
		Registry: notify.NewRegistry(),
	}
	for _, opt := range opts {
		opt(cfg, &d)
	}

	srv := NewServer(d)
	ts := testhelpers.CreateTestServer(t, srv.Handler())

	return &testEnv{
		srv:      srv,
		ts:       ts,
		client:   testhelpers.NewHTTPClient(),
		cfg:      cfg,
		sessions: d.Sessions,
		registry: d.Registry,
	}
}

func (e *testEnv) url(path string) string {
	return e.ts.URL + path
}

func (e *testEnv) register(t *testing.T, email, password string) *http.Response {
	t.Helper()
	resp, _ := testhelpers.PostJSON(t, e.client, e.url("/register"),
		map[string]string{"email": email, "password": password})
	return resp
}

// login returns the session cookie for an existing account.
func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	resp, _ := testhelpers.PostJSON(t, e.client, e.url("/login"),
		map[string]string{"email": email, "password": password})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	cookie := testhelpers.FindCookie(resp, auth.CookieName)
	require.NotNil(t, cookie, "login must set the session cookie")
	return cookie
}

func (e *testEnv) signUp(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	testhelpers.AssertStatusCode(t, e.register(t, email, password), http.StatusOK)
	return e.login(t, email, password)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	resp, body := testhelpers.PostJSON(t, env.client, env.url("/register"),
		map[string]string{"email": "alice@example.com", "password": "pw1"})

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")
	got := testhelpers.DecodeJSON(t, body)
	assert.Equal(t, "User registered successfully", got["message"])
	assert.Equal(t, "alice@example.com", got["email"])
	assert.Nil(t, testhelpers.FindCookie(resp, auth.CookieName), "registration does not log in")
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)

	resp, body := testhelpers.PostJSON(t, env.client, env.url("/register"),
		map[string]string{"email": "alice@example.com", "password": "other"})

	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
	got := testhelpers.DecodeJSON(t, body)
	assert.Equal(t, "Email already registered", got["detail"])
	assert.Equal(t, "validation", got["type"])

	// The original password still works.
	env.login(t, "alice@example.com", "pw1")
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid email", body: `{"email":"not-an-email","password":"pw"}`},
		{name: "empty password", body: `{"email":"bob@example.com","password":""}`},
		{name: "malformed json", body: `{"email":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := testhelpers.MakeRequest(t, env.client, http.MethodPost, env.url("/register"), strings.NewReader(tt.body))
			testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
			assert.NotEmpty(t, testhelpers.DecodeJSON(t, body)["detail"])
		})
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)

	resp, body := testhelpers.PostJSON(t, env.client, env.url("/login"),
		map[string]string{"email": "alice@example.com", "password": "pw1"})

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "Login successful", testhelpers.DecodeJSON(t, body)["message"])

	cookie := testhelpers.FindCookie(resp, auth.CookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(env.cfg.SessionTTL.Seconds()), cookie.MaxAge)

	identity, err := env.sessions.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", identity)
}

func TestLoginSecureCookie(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.CookieSecure = true
	})
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)

	resp, _ := testhelpers.PostJSON(t, env.client, env.url("/login"),
		map[string]string{"email": "alice@example.com", "password": "pw1"})

	cookie := testhelpers.FindCookie(resp, auth.CookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)

	for _, tc := range []struct{ name, email, password string }{
		{"wrong password", "alice@example.com", "wrong"},
		{"unknown user", "ghost@example.com", "x"},
		{"identity is case-sensitive", "ALICE@example.com", "pw1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := testhelpers.PostJSON(t, env.client, env.url("/login"),
				map[string]string{"email": tc.email, "password": tc.password})

			testhelpers.AssertStatusCode(t, resp, http.StatusUnauthorized)
			assert.Equal(t, "Invalid credentials", testhelpers.DecodeJSON(t, body)["detail"])
			assert.Nil(t, testhelpers.FindCookie(resp, auth.CookieName))
		})
	}
}

func TestLoginAcceptsFormEncoding(t *testing.T) {
	env := newTestEnv(t)
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)

	resp, err := env.client.Post(env.url("/login"), "application/x-www-form-urlencoded",
		strings.NewReader("email=alice%40example.com&password=pw1"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.NotNil(t, testhelpers.FindCookie(resp, auth.CookieName))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "alice@example.com", "pw1")

	resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodPost, env.url("/logout"), nil, cookie)

	testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	cleared := testhelpers.FindCookie(resp, auth.CookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogoutWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodPost, env.url("/logout"), nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestRootRedirects(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/"), nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	cookie := env.signUp(t, "alice@example.com", "pw1")
	resp, _ = testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/"), nil, cookie)
	testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
	assert.Equal(t, "/welcome", resp.Header.Get("Location"))
}

func TestWelcomePage(t *testing.T) {
	env := newTestEnv(t)

	t.Run("without session", func(t *testing.T) {
		resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/welcome"), nil)
		testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("tampered session", func(t *testing.T) {
		bad := &http.Cookie{Name: auth.CookieName, Value: "not.a.token"}
		resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/welcome"), nil, bad)
		testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
	})

	t.Run("session for unknown account", func(t *testing.T) {
		token, err := env.sessions.Issue("ghost@example.com", 0)
		require.NoError(t, err)
		cookie := &http.Cookie{Name: auth.CookieName, Value: token}

		resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/welcome"), nil, cookie)
		testhelpers.AssertStatusCode(t, resp, http.StatusSeeOther)
		assert.Equal(t, "/login", resp.Header.Get("Location"))
	})

	t.Run("signed in", func(t *testing.T) {
		cookie := env.signUp(t, "alice@example.com", "pw1")
		resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/welcome"), nil, cookie)
		testhelpers.AssertStatusCode(t, resp, http.StatusOK)
		testhelpers.AssertContentType(t, resp, "text/html")
		assert.Contains(t, string(body), "welcome.js")
	})
}

func TestPublicPages(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/login", "/register"} {
		t.Run(path, func(t *testing.T) {
			resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url(path), nil)
			testhelpers.AssertStatusCode(t, resp, http.StatusOK)
			testhelpers.AssertContentType(t, resp, "text/html")
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		})
	}

	resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/static/style.css"), nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/css")
}

func TestHello(t *testing.T) {
	env := newTestEnv(t)

	resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/hello"), nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.JSONEq(t, `{"message":"Hello World"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHealthEndpoints(t *testing.T) {
	failing := errors.New("database unreachable")
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.HealthChecks = []HealthCheck{
			{Name: "ok", Check: func(context.Context) error { return nil }},
			{Name: "postgres", Check: func(context.Context) error { return failing }},
		}
	})

	resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/health"), nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, "GoNotify server is running!", string(body))

	resp, body = testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/health/ready"), nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusServiceUnavailable)
	got := testhelpers.DecodeJSON(t, body)
	assert.Equal(t, "postgres", got["failed_check"])
	assert.Equal(t, "database unreachable", got["error"])
}

func TestReadinessHealthy(t *testing.T) {
	env := newTestEnv(t)

	resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/health/ready"), nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	got := testhelpers.DecodeJSON(t, body)
	assert.Equal(t, "ready", got["status"])
	assert.EqualValues(t, 0, got["connections"])
}

func TestUnknownRouteUsesErrorShape(t *testing.T) {
	env := newTestEnv(t)

	resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/nope"), nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusNotFound)
	got := testhelpers.DecodeJSON(t, body)
	assert.Equal(t, "not_found", got["type"])
	assert.NotEmpty(t, got["detail"])
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config, _ *Deps) {
		cfg.LoginRateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 1}
	})

	creds := map[string]string{"email": "alice@example.com", "password": "pw1"}

	resp, _ := testhelpers.PostJSON(t, env.client, env.url("/login"), creds)
	testhelpers.AssertStatusCode(t, resp, http.StatusUnauthorized)

	resp, body := testhelpers.PostJSON(t, env.client, env.url("/login"), creds)
	testhelpers.AssertStatusCode(t, resp, http.StatusTooManyRequests)
	assert.Equal(t, "rate_limited", testhelpers.DecodeJSON(t, body)["type"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	testhelpers.AssertStatusCode(t, env.register(t, "alice@example.com", "pw1"), http.StatusOK)
	env.signUp(t, "bob@example.com", "pw2")

	resp, body := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/metrics"), nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	text := string(body)
	assert.Contains(t, text, `gonotify_auth_registrations_total{result="success"} 2`)
	assert.Contains(t, text, `gonotify_auth_login_attempts_total{result="success"} 1`)
	assert.Contains(t, text, "gonotify_http_requests_total")
}
