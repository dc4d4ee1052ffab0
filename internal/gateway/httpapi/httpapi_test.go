package httpapi

import (
	"testing"

	"github.com/jkaninda/rubani/internal/config"
	"github.com/jkaninda/rubani/internal/observability"
	"github.com/jkaninda/rubani/internal/reducer"
	"github.com/jkaninda/rubani/internal/router"
	"github.com/jkaninda/rubani/internal/tools"
)

func TestQueryOutcome(t *testing.T) {
	matched := &router.MatchedAction{Tool: "answer_general_query", Arguments: tools.Args{}}
	unmatched := &router.MatchedAction{Arguments: tools.Args{}}

	tests := []struct {
		name   string
		action *router.MatchedAction
		answer string
		want   string
	}{
		{"matched", matched, "The project deploys to three environments.", observability.OutcomeMatched},
		{"no match", unmatched, router.NoMatchResponse, observability.OutcomeNoMatch},
		{"refused", matched, reducer.RefusalResponse, observability.OutcomeRefused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := queryOutcome(tt.action, tt.answer); got != tt.want {
				t.Errorf("queryOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("API-ABCDEFGH12345678"); got != "API-****5678" {
		t.Errorf("maskKey() = %q", got)
	}
	if got := maskKey("short"); got != "********" {
		t.Errorf("maskKey() short = %q, want fully masked", got)
	}
	if got := maskKey(""); got != "********" {
		t.Errorf("maskKey() empty = %q, want fully masked", got)
	}
}

func TestNewCorrelationID(t *testing.T) {
	a := newCorrelationID()
	b := newCorrelationID()
	if len(a) != 16 {
		t.Errorf("correlation ID length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("correlation IDs should be unique")
	}
}

func TestAllowListPrefersStaticUsers(t *testing.T) {
	g := &Gateway{admin: config.AdminConfig{Users: []string{"octoadmin"}}}

	raw, err := g.allowList()()
	if err != nil {
		t.Fatalf("allowList: %v", err)
	}
	if raw != `["octoadmin"]` {
		t.Errorf("allow list = %q, want JSON array", raw)
	}
}

func TestAllowListFallsBackToEnv(t *testing.T) {
	t.Setenv("RUBANI_ADMIN_USERS", `["ops"]`)
	g := &Gateway{admin: config.AdminConfig{}}

	raw, err := g.allowList()()
	if err != nil {
		t.Fatalf("allowList: %v", err)
	}
	if raw != `["ops"]` {
		t.Errorf("allow list = %q, want env value", raw)
	}
}
