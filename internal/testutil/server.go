package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// Capture records one request seen by the mock server.
type Capture struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string
	Timestamp   time.Time
}

// APIMethod returns the Bot API method name from the request path
// (the part after "/bot<token>/").
func (c Capture) APIMethod() string {
	idx := strings.LastIndex(c.Path, "/")
	if idx < 0 {
		return c.Path
	}
	return c.Path[idx+1:]
}

// MockAPIServer provides a mock Bot API server for testing. Handlers
// are registered per path, so rotation tests can route different bot
// tokens to different behaviors.
type MockAPIServer struct {
	*httptest.Server
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	captures []Capture
}

// NewMockServer creates a mock Bot API server.
// The server is automatically closed when the test completes.
func NewMockServer(t *testing.T) *MockAPIServer {
	t.Helper()

	m := &MockAPIServer{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		captures: make([]Capture, 0),
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockAPIServer) handle(w http.ResponseWriter, r *http.Request) {
	// Read body once for capture
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	m.mu.Lock()
	m.captures = append(m.captures, Capture{
		Method:      r.Method,
		Path:        r.URL.Path,
		Body:        body,
		ContentType: r.Header.Get("Content-Type"),
		Timestamp:   time.Now(),
	})

	handler, exists := m.handlers["POST:"+r.URL.Path]
	m.mu.Unlock()

	if exists {
		handler(w, r)
		return
	}

	// Default success response, shaped for the method so unstubbed
	// calls still parse
	switch r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:] {
	case "getMe":
		ReplyBot(w)
	case "sendMediaGroup":
		ReplyAlbum(w, 1, 2)
	default:
		ReplyMessage(w, 1)
	}
}

// On registers a handler for a POST request to path.
func (m *MockAPIServer) On(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers["POST:"+path] = handler
}

// OnBot registers a handler for an API method of a specific bot token.
func (m *MockAPIServer) OnBot(token, method string, handler http.HandlerFunc) {
	m.On("/bot"+token+"/"+method, handler)
}

// Captures returns all captured requests.
func (m *MockAPIServer) Captures() []Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Capture{}, m.captures...)
}

// CapturesOf returns the captured requests for one API method,
// regardless of bot token.
func (m *MockAPIServer) CapturesOf(method string) []Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Capture
	for _, c := range m.captures {
		if c.APIMethod() == method {
			out = append(out, c)
		}
	}
	return out
}

// CaptureCount returns the total number of captured requests.
func (m *MockAPIServer) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

// ResetCaptures clears only captures, keeping handlers.
func (m *MockAPIServer) ResetCaptures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures = m.captures[:0]
}

// BaseURL returns the server's base URL.
// Use this as the API base URL when creating clients.
func (m *MockAPIServer) BaseURL() string {
	return m.Server.URL
}
