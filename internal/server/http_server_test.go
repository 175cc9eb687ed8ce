package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/gonotify/internal/testhelpers"
)

func TestCreateServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := CreateServer(":9999", handler)

	assert.Equal(t, ":9999", srv.Addr)
	assert.Equal(t, handler, srv.Handler)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
	assert.Equal(t, 15*time.Second, srv.ReadTimeout)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	assert.Equal(t, 60*time.Second, srv.IdleTimeout)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/hello"},
		{http.MethodDelete, "/health"},
		{http.MethodGet, "/logout"},
		{http.MethodPut, "/register"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, body := testhelpers.MakeRequest(t, env.client, tc.method, env.url(tc.path), nil)
			testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
			assert.Equal(t, "validation", testhelpers.DecodeJSON(t, body)["type"])
		})
	}
}

func TestNotificationsWithoutUpgradeHeaders(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signUp(t, "alice@example.com", "pw1")

	resp, _ := testhelpers.MakeRequest(t, env.client, http.MethodGet, env.url("/ws/notifications"), nil, cookie)

	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
	assert.Equal(t, 0, env.registry.Len())
}
