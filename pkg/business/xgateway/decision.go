package xgateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leftonspace/CampoTech-sub005/pkg/business/xusage"
	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xbreaker"
)

// Reason classifies why an operation degraded or was blocked.
type Reason string

const (
	// ReasonBudgetExceeded blocks the operation on a hard spend limit.
	ReasonBudgetExceeded Reason = "budget_exceeded"
	// ReasonCircuitOpen blocks the operation while the dependency cools off.
	ReasonCircuitOpen Reason = "circuit_open"
	// ReasonConfigMissing blocks an organization without the required
	// credentials or configuration for the dependency.
	ReasonConfigMissing Reason = "config_missing"
	// ReasonServiceUnavailable marks an operation that degraded after
	// exhausting its attempts against the dependency.
	ReasonServiceUnavailable Reason = "service_unavailable"
)

// Decision is the transient outcome of the fallback pre-check. Message
// and SuggestedActions are derived purely from Reason, so notification
// and UI layers never re-derive "why".
type Decision struct {
	ShouldFallback   bool
	Reason           Reason
	Message          string
	SuggestedActions []string
	// RetryAfter is how long until the block may lift; only set for
	// circuit-open decisions.
	RetryAfter time.Duration
}

// Sentinel errors.
var (
	// ErrNilContext signals a nil context.
	ErrNilContext = errors.New("xgateway: context cannot be nil")

	// ErrEmptyOrg signals a missing organization ID.
	ErrEmptyOrg = errors.New("xgateway: organization id cannot be empty")
)

// BudgetChecker answers whether an organization may spend right now.
// *xusage.Tracker satisfies it.
type BudgetChecker interface {
	BudgetStatus(ctx context.Context, orgID string) (xusage.BudgetStatus, error)
}

// CircuitReader exposes a breaker snapshot. *xbreaker.Breaker satisfies it.
type CircuitReader interface {
	Status() xbreaker.Status
}

// CredentialChecker reports whether an organization holds the
// configuration the dependency requires (API keys, account IDs).
type CredentialChecker interface {
	HasCredentials(ctx context.Context, orgID string) (bool, error)
}

// StaticCredentials is a CredentialChecker backed by a fixed set of
// configured organizations.
type StaticCredentials map[string]bool

// HasCredentials implements CredentialChecker.
func (s StaticCredentials) HasCredentials(_ context.Context, orgID string) (bool, error) {
	return s[orgID], nil
}

// Engine runs the ordered, read-only fallback pre-check:
// budget, then circuit, then configuration. Each check short-circuits
// the rest; none mutates circuit, budget, or record state.
type Engine struct {
	service     string
	budget      BudgetChecker
	circuit     CircuitReader
	credentials CredentialChecker
	clock       func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithBudgetChecker enables the budget check.
func WithBudgetChecker(b BudgetChecker) EngineOption {
	return func(e *Engine) { e.budget = b }
}

// WithCircuitReader enables the circuit check.
func WithCircuitReader(c CircuitReader) EngineOption {
	return func(e *Engine) { e.circuit = c }
}

// WithCredentialChecker enables the configuration check.
func WithCredentialChecker(c CredentialChecker) EngineOption {
	return func(e *Engine) { e.credentials = c }
}

// WithEngineClock overrides time.Now, for retry-after tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

// NewEngine builds a decision engine for the named service. Checks whose
// collaborator is absent are skipped.
func NewEngine(service string, opts ...EngineOption) *Engine {
	e := &Engine{
		service: service,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShouldFallback runs the pre-check pipeline for one organization.
//
// Collaborator failures fail open: a broken budget lookup must not block
// every operation, so the check is skipped and the next one runs.
func (e *Engine) ShouldFallback(ctx context.Context, orgID string) (Decision, error) {
	if ctx == nil {
		return Decision{}, ErrNilContext
	}
	if orgID == "" {
		return Decision{}, ErrEmptyOrg
	}

	if e.budget != nil {
		st, err := e.budget.BudgetStatus(ctx, orgID)
		if err == nil && !st.CanProceed {
			return e.decide(ReasonBudgetExceeded, 0, st.BlockedReason), nil
		}
	}

	if e.circuit != nil {
		st := e.circuit.Status()
		if st.State == xbreaker.StateOpen {
			var retryAfter time.Duration
			if !st.NextRetryAt.IsZero() {
				if d := st.NextRetryAt.Sub(e.clock()); d > 0 {
					retryAfter = d
				}
			}
			return e.decide(ReasonCircuitOpen, retryAfter, ""), nil
		}
	}

	if e.credentials != nil {
		ok, err := e.credentials.HasCredentials(ctx, orgID)
		if err == nil && !ok {
			return e.decide(ReasonConfigMissing, 0, ""), nil
		}
	}

	return Decision{ShouldFallback: false}, nil
}

func (e *Engine) decide(reason Reason, retryAfter time.Duration, detail string) Decision {
	msg := reasonMessage(e.service, reason)
	if detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, detail)
	}
	return Decision{
		ShouldFallback:   true,
		Reason:           reason,
		Message:          msg,
		SuggestedActions: suggestedActions(reason),
		RetryAfter:       retryAfter,
	}
}

func reasonMessage(service string, reason Reason) string {
	switch reason {
	case ReasonBudgetExceeded:
		return fmt.Sprintf("%s usage is paused: the spending limit for this period has been reached", service)
	case ReasonCircuitOpen:
		return fmt.Sprintf("%s is temporarily unavailable and requests are paused while it recovers", service)
	case ReasonConfigMissing:
		return fmt.Sprintf("%s is not configured for this organization", service)
	case ReasonServiceUnavailable:
		return fmt.Sprintf("%s did not respond after several attempts", service)
	default:
		return fmt.Sprintf("%s request could not be completed", service)
	}
}

func suggestedActions(reason Reason) []string {
	switch reason {
	case ReasonBudgetExceeded:
		return []string{
			"Review this period's usage in the billing dashboard",
			"Raise the spending limit or wait for the window to reset",
		}
	case ReasonCircuitOpen:
		return []string{
			"Wait for the provider to recover; requests resume automatically",
			"Use the manual process for anything urgent",
		}
	case ReasonConfigMissing:
		return []string{
			"Connect the integration in organization settings",
			"Verify the API credentials are current",
		}
	case ReasonServiceUnavailable:
		return []string{
			"Retry in a few minutes",
			"Use the manual process for anything urgent",
			"Check the provider status page if the problem persists",
		}
	default:
		return []string{"Contact support if the problem persists"}
	}
}
