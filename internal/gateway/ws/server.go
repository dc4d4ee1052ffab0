// Package ws implements the WebSocket chat endpoint. Clients connect once,
// send queries as JSON messages, and receive progress notes while the answer
// is being prepared, then the answer itself.
package ws

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/ratelimit"
	"github.com/jkaninda/rubani/internal/router"
	"github.com/jkaninda/rubani/internal/storage"
	"github.com/jkaninda/rubani/internal/tools"
	"github.com/jkaninda/rubani/internal/tools/factory"
)

// ChatRequest is a single query sent by the client.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is a message sent to the client. Either Note is set (a
// progress update) or Answer is (the final response for the query).
type ChatResponse struct {
	Answer        string `json:"answer,omitempty"`
	Note          string `json:"note,omitempty"`
	Tool          string `json:"tool,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// Server is the WebSocket chat server.
type Server struct {
	factory *factory.Factory
	router  *router.Router
	store   storage.Store
	apiKeys map[string]string // API key → username, shared with the HTTP gateway.
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	octopusDefaults config.OctopusConfig
}

// NewServer creates a WebSocket chat server.
func NewServer(f *factory.Factory, rt *router.Router, store storage.Store, apiKeys map[string]string, rl *ratelimit.Limiter, logger *slog.Logger) *Server {
	return &Server{
		factory: f,
		router:  rt,
		store:   store,
		apiKeys: apiKeys,
		limiter: rl,
		logger:  logger,
	}
}

// WithOctopusDefaults sets the fallback Octopus credentials used when the
// caller has no stored record.
func (s *Server) WithOctopusDefaults(oc config.OctopusConfig) *Server {
	s.octopusDefaults = oc
	return s
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	username := s.authenticate(r)
	if username == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{"rubani-chat-v1"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn, username)
}

// authenticate resolves the API key from the token query parameter or the
// Authorization header and returns the mapped username, or "".
func (s *Server) authenticate(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return ""
	}

	for key, name := range s.apiKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return name
		}
	}
	return ""
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn, username string) {
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	s.logger.Info("chat client connected", slog.String("username", username))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Info("chat client disconnected", slog.String("username", username))
			} else {
				s.logger.Warn("chat connection error",
					slog.String("username", username),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.write(ctx, conn, ChatResponse{Error: "invalid message"})
			continue
		}

		s.handleQuery(ctx, conn, username, req.Query)
	}
}

// handleQuery runs one query through the routing pipeline, streaming
// progress notes to the client before the final answer.
func (s *Server) handleQuery(ctx context.Context, conn *websocket.Conn, username, query string) {
	correlationID := newCorrelationID()

	if s.limiter != nil {
		if err := s.limiter.Allow(username); err != nil {
			s.write(ctx, conn, ChatResponse{Error: "rate limit exceeded", CorrelationID: correlationID})
			return
		}
	}

	if strings.TrimSpace(query) == "" {
		s.write(ctx, conn, ChatResponse{Error: "query is required", CorrelationID: correlationID})
		return
	}

	s.logger.Info("ws query",
		slog.String("username", username),
		slog.String("correlation_id", correlationID),
	)

	octopusURL, octopusKey, err := s.resolveCredentials(ctx, username)
	if err != nil {
		s.logger.Error("credential lookup failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		s.write(ctx, conn, ChatResponse{Error: "processing failed", CorrelationID: correlationID})
		return
	}

	freq := factory.Request{
		Query:         query,
		OctopusURL:    octopusURL,
		OctopusAPIKey: octopusKey,
		QueryLog: func(message string) {
			s.write(ctx, conn, ChatResponse{Note: message, CorrelationID: correlationID})
		},
	}

	action, err := s.router.Route(ctx, query, func() *tools.Registry {
		return s.factory.Registry(freq)
	})
	if err != nil {
		if errors.Is(err, router.ErrInvalidArgument) {
			s.write(ctx, conn, ChatResponse{Error: "query is required", CorrelationID: correlationID})
			return
		}
		s.logger.Error("tool selection failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		s.write(ctx, conn, ChatResponse{Error: "processing failed", CorrelationID: correlationID})
		return
	}

	answer, err := action.Invoke(ctx)
	if err != nil {
		s.logger.Error("tool invocation failed",
			slog.String("correlation_id", correlationID),
			slog.String("tool", action.Tool),
			slog.String("error", err.Error()),
		)
		s.write(ctx, conn, ChatResponse{Error: "processing failed", CorrelationID: correlationID})
		return
	}

	s.write(ctx, conn, ChatResponse{
		Answer:        answer,
		Tool:          action.Tool,
		CorrelationID: correlationID,
	})
}

func (s *Server) resolveCredentials(ctx context.Context, username string) (string, string, error) {
	if s.store != nil {
		user, err := s.store.Users().Get(ctx, username)
		if err == nil {
			return user.OctopusURL, user.APIKey, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", "", err
		}
	}
	return s.octopusDefaults.URL, s.octopusDefaults.APIKey, nil
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, resp ChatResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
