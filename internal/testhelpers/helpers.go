// Package testhelpers provides shared helpers for HTTP and WebSocket tests.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the browser origin the default configuration allows.
const TestOrigin = "http://localhost:8080"

// CreateTestServer starts handler on a loopback listener and closes it when
// the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// NewHTTPClient returns a client that does not follow redirects, so tests
// can assert on 303 responses directly.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// MakeRequest sends a request with optional cookies and returns the response
// with its body fully read.
func MakeRequest(t *testing.T, client *http.Client, method, url string, body io.Reader, cookies ...*http.Cookie) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

// PostJSON marshals payload and posts it to url.
func PostJSON(t *testing.T, client *http.Client, url string, payload any, cookies ...*http.Cookie) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return MakeRequest(t, client, http.MethodPost, url, bytes.NewReader(data), cookies...)
}

// DecodeJSON unmarshals body into a generic map.
func DecodeJSON(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

// AssertStatusCode checks if the response has the expected status code
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode, "unexpected status code")
}

// AssertContentType checks if the response has the expected content type
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), expected),
		"content type %q does not start with %q", resp.Header.Get("Content-Type"), expected)
}

// FindCookie returns the cookie called name from resp, or nil.
func FindCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// WebSocketURL turns an httptest server URL into a ws:// URL for path.
func WebSocketURL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// ConnectWebSocket dials url with the given Origin and session cookies. The
// handshake response is returned even on failure so callers can inspect the
// status code.
func ConnectWebSocket(url, origin string, cookies ...*http.Cookie) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	if len(cookies) > 0 {
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		header.Set("Cookie", strings.Join(parts, "; "))
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ReceiveText reads the next text frame within timeout.
func ReceiveText(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DrainUntilClosed discards frames until the connection fails and returns
// that error, typically a *websocket.CloseError.
func DrainUntilClosed(conn *websocket.Conn, timeout time.Duration) error {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// CloseWebSocket sends a normal close frame and closes the connection.
func CloseWebSocket(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msgAndArgs...)
}
