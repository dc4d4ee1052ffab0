// Package httpapi implements the HTTP API gateway for rubani.
//
// Security:
//   - API key authentication on every request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/jkaninda/rubani/internal/authz"
	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/observability"
	"github.com/jkaninda/rubani/internal/ratelimit"
	"github.com/jkaninda/rubani/internal/reducer"
	"github.com/jkaninda/rubani/internal/router"
	"github.com/jkaninda/rubani/internal/storage"
	"github.com/jkaninda/rubani/internal/tools"
	"github.com/jkaninda/rubani/internal/tools/factory"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string // e.g., ":8080"
	EnableDocs     bool
	APIKeys        map[string]string // API key → username mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz endpoint.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config  Config
	factory *factory.Factory
	router  *router.Router
	store   storage.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	octopusDefaults config.OctopusConfig // Fallback credentials for callers with no stored record.
	admin           config.AdminConfig
	tokenTTL        time.Duration
	started         time.Time

	// Extra handlers mounted on the HTTP mux (e.g., the WebSocket chat endpoint).
	extraRoutes []extraRoute

	okapi *okapi.Okapi
	group *okapi.Group
}

// extraRoute stores an additional handler to be mounted on the HTTP mux.
type extraRoute struct {
	pattern string
	handler http.Handler
}

// NewGateway creates an HTTP API gateway.
func NewGateway(cfg Config, f *factory.Factory, rt *router.Router, store storage.Store, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:   cfg,
		factory:  f,
		router:   rt,
		store:    store,
		limiter:  rl,
		logger:   logger,
		tokenTTL: 15 * time.Minute,
		okapi:    okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// WithOctopusDefaults sets the fallback Octopus credentials used when the
// caller has no stored record.
func (g *Gateway) WithOctopusDefaults(oc config.OctopusConfig) *Gateway {
	g.octopusDefaults = oc
	return g
}

// WithAdmin sets the admin allow-list configuration for privileged endpoints.
func (g *Gateway) WithAdmin(ac config.AdminConfig) *Gateway {
	g.admin = ac
	return g
}

// WithTokenTTL sets the login token lifetime.
func (g *Gateway) WithTokenTTL(ttl time.Duration) *Gateway {
	if ttl > 0 {
		g.tokenTTL = ttl
	}
	return g
}

// WithHandler mounts an additional handler on the HTTP mux at the given pattern.
// Useful for adding the WebSocket chat endpoint alongside the API routes.
func (g *Gateway) WithHandler(pattern string, handler http.Handler) *Gateway {
	g.extraRoutes = append(g.extraRoutes, extraRoute{pattern: pattern, handler: handler})
	return g
}

func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "rubani",
			Version: "v0.0.1",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	g.started = time.Now()

	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.Use(observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer))
	}

	// Authenticated /api/v1 group.
	g.group = g.okapi.Group("/api/v1", g.authenticate)

	g.group.Post("/query", g.handleQuery,
		okapi.DocSummary("Answer a question about an Octopus Deploy space"),
		okapi.DocTags("Query"),
		okapi.DocRequestBody(QueryRequest{}),
		okapi.DocResponse(QueryResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)

	// Login flow: issue a one-time token, then redeem it to attach
	// Octopus credentials to the caller.
	g.group.Post("/login", g.handleLoginBegin,
		okapi.DocSummary("Begin a login, issuing a one-time token"),
		okapi.DocTags("Login"),
		okapi.DocRequestBody(LoginRequest{}),
		okapi.DocResponse(http.StatusCreated, LoginResponse{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)
	g.group.Post("/login/{token}", g.handleLoginComplete,
		okapi.DocSummary("Redeem a login token and store Octopus credentials"),
		okapi.DocTags("Login"),
		okapi.DocPathParam("token", "string", "Login token (UUID)"),
		okapi.DocRequestBody(LoginCompleteRequest{}),
		okapi.DocResponse(UserResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// Admin endpoints. Authorization is checked per call against the
	// allow-list, not at route registration.
	g.group.Get("/users/{username}", g.handleUserGet,
		okapi.DocSummary("Get a stored user record (admin only)"),
		okapi.DocTags("Users"),
		okapi.DocPathParam("username", "string", "Service username"),
		okapi.DocResponse(UserResponse{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	g.group.Delete("/users/{username}", g.handleUserDelete,
		okapi.DocSummary("Delete a stored user record (admin only)"),
		okapi.DocTags("Users"),
		okapi.DocPathParam("username", "string", "Service username"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)
	g.group.Get("/admin/stats", g.handleAdminStats,
		okapi.DocSummary("Service statistics (admin only)"),
		okapi.DocTags("Admin"),
		okapi.DocResponse(StatsResponse{}),
		okapi.DocResponse(http.StatusForbidden, ErrorBody{}),
	)

	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Extra handlers (e.g., the WebSocket chat endpoint).
	for _, er := range g.extraRoutes {
		g.okapi.HandleStd("GET", er.pattern, er.handler.ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))

	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Query ---

// QueryRequest is the JSON body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON response for POST /api/v1/query.
type QueryResponse struct {
	Answer        string `json:"answer"`
	Tool          string `json:"tool,omitempty"` // Empty when no tool matched.
	CorrelationID string `json:"correlation_id"`
}

func (g *Gateway) handleQuery(c *okapi.Context) error {
	username := c.GetString("username")

	if g.limiter != nil {
		if err := g.limiter.Allow(username); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("query is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.AbortBadRequest("query is required")
	}

	correlationID := newCorrelationID()

	g.logger.Info("http query",
		slog.String("username", username),
		slog.String("correlation_id", correlationID),
	)

	octopusURL, octopusKey, err := g.resolveCredentials(c.Context(), username)
	if err != nil {
		g.logger.Error("credential lookup failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		c.Set(observability.QueryOutcomeContextKey, observability.OutcomeError)
		return c.AbortInternalServerError("processing failed")
	}

	freq := factory.Request{
		Query:         req.Query,
		OctopusURL:    octopusURL,
		OctopusAPIKey: octopusKey,
		QueryLog: func(message string) {
			g.logger.Debug("query progress",
				slog.String("correlation_id", correlationID),
				slog.String("note", message),
			)
		},
	}
	if g.config.Metrics != nil {
		freq.OnTruncation = g.config.Metrics.ContextTruncatedPercent.Observe
	}

	start := time.Now()
	selectCtx, endSpan := observability.StartSpan(c.Context(), g.config.Tracer, "query.select_tool")
	action, err := g.router.Route(selectCtx, req.Query, func() *tools.Registry {
		return g.factory.Registry(freq)
	})
	endSpan()
	if g.config.Metrics != nil {
		g.config.Metrics.SelectionDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, router.ErrInvalidArgument) {
			return c.AbortBadRequest("query is required")
		}
		g.logger.Error("tool selection failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		c.Set(observability.QueryOutcomeContextKey, observability.OutcomeError)
		return c.AbortInternalServerError("processing failed")
	}

	answer, err := action.Invoke(c.Context())
	if err != nil {
		g.logger.Error("tool invocation failed",
			slog.String("correlation_id", correlationID),
			slog.String("tool", action.Tool),
			slog.String("error", err.Error()),
		)
		c.Set(observability.QueryOutcomeContextKey, observability.OutcomeError)
		return c.AbortInternalServerError("processing failed")
	}

	c.Set(observability.QueryOutcomeContextKey, queryOutcome(action, answer))

	return c.OK(QueryResponse{
		Answer:        answer,
		Tool:          action.Tool,
		CorrelationID: correlationID,
	})
}

// resolveCredentials returns the Octopus server and API key for a caller:
// their stored record when one exists, otherwise the configured defaults.
func (g *Gateway) resolveCredentials(ctx context.Context, username string) (string, string, error) {
	if g.store != nil {
		user, err := g.store.Users().Get(ctx, username)
		if err == nil {
			return user.OctopusURL, user.APIKey, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", "", err
		}
	}
	return g.octopusDefaults.URL, g.octopusDefaults.APIKey, nil
}

// --- Login ---

// LoginRequest is the JSON body for POST /api/v1/login. Credentials may be
// staged here or supplied at the completion step.
type LoginRequest struct {
	OctopusURL string `json:"octopus_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
}

// LoginResponse is the JSON response carrying the one-time token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (g *Gateway) handleLoginBegin(c *okapi.Context) error {
	username := c.GetString("username")

	if g.limiter != nil {
		if err := g.limiter.Allow(username); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req LoginRequest
	_ = c.Bind(&req) // Body is optional.

	if g.store == nil {
		return c.AbortServiceUnavailable("login is not available without storage")
	}

	token := &storage.LoginToken{
		ID:         uuid.New(),
		Username:   username,
		Endpoint:   req.OctopusURL,
		Credential: req.APIKey,
		ExpiresAt:  time.Now().UTC().Add(g.tokenTTL),
	}
	if err := g.store.LoginTokens().Create(c.Context(), token); err != nil {
		g.logger.Error("login token creation failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("login failed")
	}

	g.logger.Info("login token issued",
		slog.String("username", username),
		slog.String("token_id", token.ID.String()),
	)

	return c.JSON(http.StatusCreated, LoginResponse{
		Token:     token.ID.String(),
		ExpiresAt: token.ExpiresAt,
	})
}

// LoginCompleteRequest is the JSON body for POST /api/v1/login/{token}.
// Values here override anything staged at the begin step.
type LoginCompleteRequest struct {
	OctopusURL string `json:"octopus_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
}

// UserResponse is the JSON representation of a stored user record. The API
// key is masked.
type UserResponse struct {
	Username   string `json:"username"`
	OctopusURL string `json:"octopus_url"`
	APIKey     string `json:"api_key,omitempty"`
}

func (g *Gateway) handleLoginComplete(c *okapi.Context) error {
	id, err := uuid.Parse(c.Param("token"))
	if err != nil {
		return c.AbortBadRequest("invalid login token")
	}

	var req LoginCompleteRequest
	_ = c.Bind(&req) // Body is optional when credentials were staged.

	if g.store == nil {
		return c.AbortServiceUnavailable("login is not available without storage")
	}

	token, err := g.store.LoginTokens().Redeem(c.Context(), id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "login token not found or expired"})
		}
		g.logger.Error("login token redemption failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("login failed")
	}

	octopusURL := req.OctopusURL
	if octopusURL == "" {
		octopusURL = token.Endpoint
	}
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = token.Credential
	}
	if octopusURL == "" || apiKey == "" {
		return c.AbortBadRequest("octopus_url and api_key are required")
	}

	user := &storage.User{
		Partition:  storage.ServicePartition,
		Username:   token.Username,
		OctopusURL: octopusURL,
		APIKey:     apiKey,
	}
	if err := g.store.Users().Save(c.Context(), user); err != nil {
		g.logger.Error("user save failed", slog.String("error", err.Error()))
		return c.AbortInternalServerError("login failed")
	}

	g.logger.Info("login completed", slog.String("username", token.Username))

	return c.OK(UserResponse{
		Username:   user.Username,
		OctopusURL: user.OctopusURL,
		APIKey:     maskKey(user.APIKey),
	})
}

// --- Admin ---

func (g *Gateway) handleUserGet(c *okapi.Context) error {
	username := c.Param("username")

	user, err := authz.GuardedCall(g.principal(c), g.allowList(), g.logger, func() (*storage.User, error) {
		return g.store.Users().Get(c.Context(), username)
	})
	if err != nil {
		if errors.Is(err, authz.ErrNotAuthorized) {
			return c.AbortForbidden("admin access required")
		}
		if errors.Is(err, storage.ErrNotFound) {
			return c.JSON(http.StatusNotFound, okapi.M{"error": "user not found"})
		}
		return c.AbortInternalServerError("lookup failed")
	}

	return c.OK(UserResponse{
		Username:   user.Username,
		OctopusURL: user.OctopusURL,
		APIKey:     maskKey(user.APIKey),
	})
}

func (g *Gateway) handleUserDelete(c *okapi.Context) error {
	username := c.Param("username")

	_, err := authz.GuardedCall(g.principal(c), g.allowList(), g.logger, func() (struct{}, error) {
		return struct{}{}, g.store.Users().Delete(c.Context(), username)
	})
	if err != nil {
		if errors.Is(err, authz.ErrNotAuthorized) {
			return c.AbortForbidden("admin access required")
		}
		return c.AbortInternalServerError("deletion failed")
	}

	g.logger.Info("user deleted",
		slog.String("username", username),
		slog.String("deleted_by", c.GetString("username")),
	)

	return c.OK(map[string]string{"status": "deleted"})
}

// StatsResponse is the JSON response for GET /api/v1/admin/stats.
type StatsResponse struct {
	Users         int64 `json:"users"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func (g *Gateway) handleAdminStats(c *okapi.Context) error {
	stats, err := authz.GuardedCall(g.principal(c), g.allowList(), g.logger, func() (StatsResponse, error) {
		count, err := g.store.Users().Count(c.Context())
		if err != nil {
			return StatsResponse{}, err
		}
		return StatsResponse{
			Users:         count,
			UptimeSeconds: int64(time.Since(g.started).Seconds()),
		}, nil
	})
	if err != nil {
		if errors.Is(err, authz.ErrNotAuthorized) {
			return c.AbortForbidden("admin access required")
		}
		return c.AbortInternalServerError("stats failed")
	}

	return c.OK(stats)
}

// principal returns the authenticated caller's identity for the admin gate.
func (g *Gateway) principal(c *okapi.Context) authz.PrincipalFunc {
	return func() (string, error) {
		who := c.GetString("username")
		if who == "" {
			return "", errors.New("no authenticated principal")
		}
		return who, nil
	}
}

// allowList sources the admin list: the static config list when set,
// otherwise the configured environment variable, re-read on every check.
func (g *Gateway) allowList() authz.AllowListFunc {
	return func() (string, error) {
		if len(g.admin.Users) > 0 {
			raw, err := json.Marshal(g.admin.Users)
			return string(raw), err
		}
		return os.Getenv(g.admin.AllowListEnv()), nil
	}
}

// --- Health ---

// HealthResponse is the JSON response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped username on the
// request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		username := ""
		for key, name := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				username = name
			}
		}
		if username == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("username", username)
		return next(c)
	}
}

// --- Helpers ---

// queryOutcome classifies a completed query for metrics.
func queryOutcome(action *router.MatchedAction, answer string) string {
	switch {
	case !action.Matched():
		return observability.OutcomeNoMatch
	case answer == reducer.RefusalResponse:
		return observability.OutcomeRefused
	default:
		return observability.OutcomeMatched
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
