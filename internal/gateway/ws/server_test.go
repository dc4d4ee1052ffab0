package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/router"
	"github.com/jkaninda/rubani/internal/tools/factory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSelector always reports no tool match.
type stubSelector struct{}

func (stubSelector) Select(ctx context.Context, query string, defs []llm.ToolDefinition) (*router.Selection, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	rt := router.New(stubSelector{}, discardLogger())
	s := NewServer(&factory.Factory{Logger: discardLogger()}, rt, nil,
		map[string]string{"secret-key": "octofan"}, nil, discardLogger())

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(ts.URL, "http", "ws", 1)
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"rubani-chat-v1"},
	})
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}
	return conn
}

func TestChatRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "secret-key")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := json.Marshal(ChatRequest{Query: "What does WebApp deploy?"})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		t.Fatalf("writing query: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}

	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Answer != router.NoMatchResponse {
		t.Errorf("answer = %q, want no-match fallback", resp.Answer)
	}
	if resp.Tool != "" {
		t.Errorf("tool = %q, want empty for no match", resp.Tool)
	}
	if len(resp.CorrelationID) != 16 {
		t.Errorf("correlation ID = %q, want 16 hex chars", resp.CorrelationID)
	}
}

func TestChatEmptyQuery(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "secret-key")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := json.Marshal(ChatRequest{Query: "   "})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		t.Fatalf("writing query: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}

	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Error != "query is required" {
		t.Errorf("error = %q, want query is required", resp.Error)
	}
}

func TestRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRejectsWrongToken(t *testing.T) {
	ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := strings.Replace(ts.URL, "http", "ws", 1) + "?token=wrong"
	_, _, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("expected dial to fail with a wrong token")
	}
}
