package xgateway

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/leftonspace/CampoTech-sub005/pkg/business/xfallback"
	"github.com/leftonspace/CampoTech-sub005/pkg/business/xusage"
	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xlog"
	"github.com/leftonspace/CampoTech-sub005/pkg/observability/xmetrics"
	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xbreaker"
	"github.com/leftonspace/CampoTech-sub005/pkg/resilience/xretry"
)

// DefaultTimeout is the hard per-operation wall-clock bound.
const DefaultTimeout = 30 * time.Second

// Facade sentinel errors.
var (
	// ErrNilFacade signals a nil facade.
	ErrNilFacade = errors.New("xgateway: facade cannot be nil")

	// ErrNilCall signals a request without an operation callback.
	ErrNilCall = errors.New("xgateway: request call cannot be nil")
)

// Request describes one attempt at a logical operation, such as
// "create a payment link for this invoice".
type Request[T any] struct {
	OrgID string
	// Operation names the logical operation for records and telemetry.
	Operation string
	// Ref correlates any fallback record with the business object the
	// call concerns (invoice ID, conversation ID). Optional.
	Ref string
	// Details feeds operator-facing context into fallback records.
	Details map[string]string
	// Call performs the underlying dependency call.
	Call func(ctx context.Context) (T, error)
	// Usage, when set, is recorded against the organization's budget
	// after a successful call.
	Usage *xusage.Event
}

// Fallback is the degraded-path payload callers hand to notification and
// UI layers instead of a raw error.
type Fallback struct {
	Reason           Reason
	Message          string
	SuggestedActions []string
	RetryAfter       time.Duration
	// Record is the durable trail of this degraded event, nil when the
	// facade has no record store.
	Record  *xfallback.Record
	Durable bool
}

// Outcome is the result of Execute. Exactly one of Value (Degraded
// false) or Fallback (Degraded true) is meaningful.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Fallback *Fallback
	// Usage is the priced usage record for a successful call, when the
	// request carried a usage event.
	Usage *xusage.Result
}

// Facade is the externally-consumed surface wrapping one dependency:
// fallback pre-check, circuit-gated retries under a hard timeout, usage
// recording, and structured degradation. One facade per dependency,
// constructed at startup and shared across requests.
type Facade struct {
	service      string
	breaker      *xbreaker.Breaker
	retry        *xretry.Executor
	engine       *Engine
	tracker      *xusage.Tracker
	records      *xfallback.Store
	logger       xlog.Logger
	observer     xmetrics.Observer
	timeout      time.Duration
	autoFallback bool
	clock        func() time.Time

	latency   latencyRing
	successes atomic.Uint64
	failures  atomic.Uint64
}

// FacadeOption customizes a Facade.
type FacadeOption func(*Facade)

// WithBreaker sets the circuit breaker gating calls.
func WithBreaker(b *xbreaker.Breaker) FacadeOption {
	return func(f *Facade) { f.breaker = b }
}

// WithRetry sets the retry executor.
func WithRetry(e *xretry.Executor) FacadeOption {
	return func(f *Facade) {
		if e != nil {
			f.retry = e
		}
	}
}

// WithEngine sets the fallback decision engine for the pre-check.
func WithEngine(e *Engine) FacadeOption {
	return func(f *Facade) { f.engine = e }
}

// WithUsageTracker enables usage recording on successful calls.
func WithUsageTracker(t *xusage.Tracker) FacadeOption {
	return func(f *Facade) { f.tracker = t }
}

// WithRecordStore enables durable fallback records on degraded paths.
func WithRecordStore(s *xfallback.Store) FacadeOption {
	return func(f *Facade) { f.records = s }
}

// WithTimeout sets the hard per-operation timeout.
func WithTimeout(d time.Duration) FacadeOption {
	return func(f *Facade) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithAutoFallback controls degradation on exhausted failures: enabled,
// callers get a Fallback payload; disabled, they get the classified
// error. Enabled by default.
func WithAutoFallback(enabled bool) FacadeOption {
	return func(f *Facade) { f.autoFallback = enabled }
}

// WithFacadeLogger sets the facade's logger.
func WithFacadeLogger(l xlog.Logger) FacadeOption {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFacadeObserver sets the metrics observer.
func WithFacadeObserver(o xmetrics.Observer) FacadeOption {
	return func(f *Facade) {
		if o != nil {
			f.observer = o
		}
	}
}

// WithFacadeClock overrides time.Now, for latency tests.
func WithFacadeClock(now func() time.Time) FacadeOption {
	return func(f *Facade) {
		if now != nil {
			f.clock = now
		}
	}
}

// NewFacade builds a facade for the named dependency.
func NewFacade(service string, opts ...FacadeOption) *Facade {
	f := &Facade{
		service:      service,
		retry:        xretry.NewExecutor(),
		logger:       xlog.Nop(),
		observer:     xmetrics.NoopObserver{},
		timeout:      DefaultTimeout,
		autoFallback: true,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Service returns the dependency name.
func (f *Facade) Service() string {
	return f.service
}

// Execute runs one operation through the full resilience pipeline.
//
// A blocked pre-check or an absorbed exhausted failure is not an error:
// the outcome is Degraded with a Fallback payload. An error return means
// either invalid input or, with auto-fallback disabled, the classified
// failure of the underlying call.
func Execute[T any](ctx context.Context, f *Facade, req Request[T]) (Outcome[T], error) {
	var zero Outcome[T]
	if f == nil {
		return zero, ErrNilFacade
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if req.Call == nil {
		return zero, ErrNilCall
	}
	if req.OrgID == "" {
		return zero, ErrEmptyOrg
	}

	ctx, span := xmetrics.Start(ctx, f.observer, xmetrics.SpanOptions{
		Component: "gateway",
		Operation: req.Operation,
		Attrs: []xmetrics.Attr{
			xmetrics.String("service", f.service),
			xmetrics.String("org_id", req.OrgID),
		},
	})

	// Pre-check: skip the network call entirely when it is known to be
	// blocked.
	if f.engine != nil {
		decision, err := f.engine.ShouldFallback(ctx, req.OrgID)
		if err != nil {
			span.End(xmetrics.Result{Status: xmetrics.StatusError, Err: err})
			return zero, err
		}
		if decision.ShouldFallback {
			out := degradeOutcome[T](ctx, f, req.OrgID, req.Operation, req.Ref, req.Details, decision)
			span.End(xmetrics.Result{Status: xmetrics.StatusDegraded,
				Attrs: []xmetrics.Attr{xmetrics.String("reason", string(decision.Reason))}})
			return out, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := f.clock()
	value, err := xretry.DoWithResult(callCtx, f.retry, f.admission(), req.Call)
	if err == nil {
		f.latency.add(f.clock().Sub(start))
		f.successes.Add(1)

		out := Outcome[T]{Value: value}
		if f.tracker != nil && req.Usage != nil {
			usage, uerr := f.tracker.Record(ctx, *req.Usage)
			if uerr != nil {
				f.logger.Warn(ctx, "usage recording failed",
					slog.String("service", f.service),
					slog.String("org_id", req.OrgID),
					slog.Any("error", uerr))
			} else {
				out.Usage = &usage
			}
		}
		span.End(xmetrics.Result{Status: xmetrics.StatusOK})
		return out, nil
	}

	f.failures.Add(1)

	if !f.autoFallback {
		span.End(xmetrics.Result{Status: xmetrics.StatusError, Err: err})
		return zero, err
	}

	decision := f.decisionForError(err)
	f.logger.Warn(ctx, "operation degraded to fallback",
		slog.String("service", f.service),
		slog.String("org_id", req.OrgID),
		slog.String("operation", req.Operation),
		slog.String("reason", string(decision.Reason)),
		slog.Any("error", err),
	)
	out := degradeOutcome[T](ctx, f, req.OrgID, req.Operation, req.Ref, req.Details, decision)
	span.End(xmetrics.Result{Status: xmetrics.StatusDegraded,
		Attrs: []xmetrics.Attr{xmetrics.String("reason", string(decision.Reason))}})
	return out, nil
}

// admission exposes the breaker to the retry layer, tolerating a facade
// built without one.
func (f *Facade) admission() xretry.AdmissionControl {
	if f.breaker == nil {
		return nil
	}
	return f.breaker
}

// decisionForError maps an exhausted failure onto a fallback decision.
func (f *Facade) decisionForError(err error) Decision {
	var oe *xbreaker.OpenError
	if errors.As(err, &oe) {
		var retryAfter time.Duration
		if !oe.RetryAt.IsZero() {
			if d := oe.RetryAt.Sub(f.clock()); d > 0 {
				retryAfter = d
			}
		}
		return Decision{
			ShouldFallback:   true,
			Reason:           ReasonCircuitOpen,
			Message:          reasonMessage(f.service, ReasonCircuitOpen),
			SuggestedActions: suggestedActions(ReasonCircuitOpen),
			RetryAfter:       retryAfter,
		}
	}
	return Decision{
		ShouldFallback:   true,
		Reason:           ReasonServiceUnavailable,
		Message:          reasonMessage(f.service, ReasonServiceUnavailable),
		SuggestedActions: suggestedActions(ReasonServiceUnavailable),
	}
}

// degradeOutcome builds the fallback payload, cutting a durable record
// of the degraded event when a record store is configured.
func degradeOutcome[T any](ctx context.Context, f *Facade, orgID, operation, ref string, details map[string]string, decision Decision) Outcome[T] {
	fb := &Fallback{
		Reason:           decision.Reason,
		Message:          decision.Message,
		SuggestedActions: decision.SuggestedActions,
		RetryAfter:       decision.RetryAfter,
	}
	if f.records != nil {
		res, err := f.records.Create(ctx, xfallback.CreateParams{
			OrgID:     orgID,
			Service:   f.service,
			Operation: operation,
			Ref:       ref,
			Reason:    string(decision.Reason),
			Details:   details,
		})
		if err != nil {
			f.logger.Error(ctx, "fallback record creation failed",
				slog.String("service", f.service),
				slog.String("org_id", orgID),
				slog.Any("error", err))
		} else {
			fb.Record = &res.Record
			fb.Durable = res.Durable
		}
	}
	return Outcome[T]{Degraded: true, Fallback: fb}
}
