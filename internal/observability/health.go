package observability

import (
	"context"
	"log/slog"
	"time"
)

// Readiness checks share one deadline so a hung database ping cannot stall
// the probe.
const healthCheckTimeout = 3 * time.Second

// HealthStatus is the body served on /healthz and /readyz.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Error message on failure.
}

// HealthChecker answers liveness and readiness probes. Liveness is
// unconditional; readiness runs the registered dependency checks (the
// database ping is registered at startup).
type HealthChecker struct {
	names  []string
	checks map[string]func(ctx context.Context) error
	logger *slog.Logger
}

// NewHealthChecker creates a checker with no dependencies registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]func(ctx context.Context) error),
		logger: logger,
	}
}

// AddCheck registers a named readiness check. Not safe to call after the
// gateway starts serving.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// CheckHealth reports liveness. A running process is alive.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered check and degrades the aggregate status
// when any of them fails. Individual results are always reported so the
// probe names the broken dependency.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.names) == 0 {
		return HealthStatus{Status: "ok"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.names)),
	}
	for _, name := range h.names {
		err := h.checks[name](checkCtx)
		if err == nil {
			status.Checks[name] = CheckResult{Status: "ok"}
			continue
		}
		status.Status = "degraded"
		status.Checks[name] = CheckResult{Status: "fail", Message: err.Error()}
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return status
}
