// Package dispatch routes named invocations to bound operations. It is the
// layer the transports talk to: it resolves operation names, mints
// correlation tokens, opens spans, and hands asynchronous calls to the
// tracker and the completion notifier.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/oriys/halo/internal/calltracker"
	"github.com/oriys/halo/internal/invoker"
	"github.com/oriys/halo/internal/logging"
	"github.com/oriys/halo/internal/metrics"
	"github.com/oriys/halo/internal/notify"
	"github.com/oriys/halo/internal/observability"
	"github.com/oriys/halo/internal/operation"
	"github.com/oriys/halo/internal/telemetry"
)

var (
	// ErrUnknownOperation is returned when no operation is bound under the
	// requested name.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrOperationDisabled is returned when the operation exists but is
	// administratively disabled.
	ErrOperationDisabled = errors.New("operation disabled")

	// ErrUnknownToken is returned when a call token is not tracked.
	ErrUnknownToken = errors.New("unknown call token")
)

// Settings overrides runtime behavior for a single operation.
type Settings struct {
	// Disabled rejects dispatches to the operation.
	Disabled bool
	// EmitCancelled overrides the global telemetry policy when set.
	EmitCancelled *bool
}

// Result is a finished invocation plus the correlation token it ran under.
type Result struct {
	invoker.Outcome
	Correlation string
}

// CallStatus is a point-in-time view of an asynchronous call.
type CallStatus struct {
	Token       string           `json:"token"`
	Operation   string           `json:"operation"`
	Correlation string           `json:"correlation"`
	Settled     bool             `json:"settled"`
	Outcome     *invoker.Outcome `json:"outcome,omitempty"`
}

// Info describes a bound operation for listing and introspection.
type Info struct {
	Name          string `json:"name"`
	Inputs        int    `json:"inputs"`
	Outputs       int    `json:"outputs"`
	Return        string `json:"return"`
	Disabled      bool   `json:"disabled"`
	EmitCancelled bool   `json:"emit_cancelled"`
}

// runtime is the per-operation state the dispatcher adds on top of the
// registry: the bound target and the invoker built under the current policy.
type runtime struct {
	target any
	iv     *invoker.Invoker
}

// Dispatcher holds the operation registry and the shared call machinery.
type Dispatcher struct {
	mu       sync.RWMutex
	registry *operation.Registry
	runtimes map[string]*runtime
	policy   telemetry.Policy
	settings map[string]Settings

	collector telemetry.Collector
	tracker   *calltracker.Tracker
	notifier  notify.Notifier
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCollector sets the telemetry collector shared by all bindings.
func WithCollector(c telemetry.Collector) Option {
	return func(d *Dispatcher) { d.collector = c }
}

// WithPolicy sets the global telemetry policy.
func WithPolicy(p telemetry.Policy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithTracker sets the pending-call tracker.
func WithTracker(t *calltracker.Tracker) Option {
	return func(d *Dispatcher) { d.tracker = t }
}

// WithNotifier sets the completion notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithSettings sets per-operation overrides, keyed by operation name.
func WithSettings(s map[string]Settings) Option {
	return func(d *Dispatcher) { d.settings = s }
}

// New creates a Dispatcher. Without options it tracks calls in-memory with
// default TTLs and notifies nobody.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: operation.NewRegistry(),
		runtimes: make(map[string]*runtime),
		settings: make(map[string]Settings),
		logger:   logging.Op(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.settings == nil {
		d.settings = make(map[string]Settings)
	}
	if d.tracker == nil {
		d.tracker = calltracker.New(0, 0)
	}
	if d.notifier == nil {
		d.notifier = notify.NewNoopNotifier()
	}
	return d
}

// Register binds an operation to a target instance. The target may be nil;
// dispatches to a nil target fail at invocation time, not here.
func (d *Dispatcher) Register(op *operation.Operation, target any) error {
	if op == nil {
		return errors.New("nil operation")
	}
	name := op.Name()

	d.mu.Lock()
	if err := d.registry.Register(op); err != nil {
		d.mu.Unlock()
		return err
	}
	d.runtimes[name] = &runtime{
		target: target,
		iv:     d.buildInvoker(op),
	}
	n := d.registry.Len()
	d.mu.Unlock()

	metrics.SetRegisteredOperations(n)
	d.signal(notify.TopicRegistry)
	d.logger.Debug("operation registered", "operation", name, "inputs", op.Signature().Inputs, "return", op.Signature().Return.String())
	return nil
}

// buildInvoker constructs the invoker for op under the current policy.
// Callers hold d.mu.
func (d *Dispatcher) buildInvoker(op *operation.Operation) *invoker.Invoker {
	opts := []invoker.Option{invoker.WithPolicy(d.effectivePolicy(op.Name()))}
	if d.collector != nil {
		opts = append(opts, invoker.WithCollector(d.collector))
	}
	return invoker.New(op, opts...)
}

func (d *Dispatcher) effectivePolicy(name string) telemetry.Policy {
	p := d.policy
	if s, ok := d.settings[name]; ok && s.EmitCancelled != nil {
		p.EmitCancelled = *s.EmitCancelled
	}
	return p
}

func (d *Dispatcher) resolve(name string) (*operation.Operation, *runtime, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	op, ok := d.registry.Lookup(name)
	if !ok {
		return nil, nil, fmt.Errorf("operation %q: %w", name, ErrUnknownOperation)
	}
	if d.settings[name].Disabled {
		return nil, nil, fmt.Errorf("operation %q: %w", name, ErrOperationDisabled)
	}
	return op, d.runtimes[name], nil
}

// Dispatch resolves name and runs the invocation to completion. An empty
// corr mints a fresh correlation token. The returned error covers routing
// only; invocation failures are inside the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, inputs []any, corr string) (Result, error) {
	op, rt, err := d.resolve(name)
	if err != nil {
		return Result{}, err
	}
	if corr == "" {
		corr = uuid.NewString()
	}

	ctx, span := observability.StartSpan(ctx, "halo.dispatch",
		observability.AttrOperationName.String(name),
		observability.AttrCorrelation.String(corr),
		observability.AttrReturnKind.String(op.Signature().Return.String()),
	)
	defer span.End()

	out := rt.iv.Invoke(ctx, rt.target, inputs, corr)

	span.SetAttributes(
		observability.AttrOutcome.String(out.Status.String()),
		observability.AttrDurationMs.Int64(out.Duration.Milliseconds()),
	)
	if out.Status == invoker.StatusFailed {
		observability.SetSpanError(span, out.Err)
	} else {
		observability.SetSpanOK(span)
	}

	return Result{Outcome: out, Correlation: corr}, nil
}

// Begin starts an asynchronous invocation and returns its call token. The
// result stays retrievable via Status, Await and End until the tracker
// evicts it.
func (d *Dispatcher) Begin(ctx context.Context, name string, inputs []any, corr string) (string, error) {
	_, rt, err := d.resolve(name)
	if err != nil {
		return "", err
	}
	if d.tracker.Full() {
		return "", calltracker.ErrFull
	}

	token := uuid.NewString()
	if corr == "" {
		corr = token
	}

	ctx, span := observability.StartSpan(ctx, "halo.begin",
		observability.AttrOperationName.String(name),
		observability.AttrCorrelation.String(corr),
		observability.AttrCallToken.String(token),
	)

	onComplete := func(call *invoker.PendingCall) {
		if out, ok := call.Outcome(); ok {
			span.SetAttributes(
				observability.AttrOutcome.String(out.Status.String()),
				observability.AttrDurationMs.Int64(out.Duration.Milliseconds()),
			)
			if out.Status == invoker.StatusFailed {
				observability.SetSpanError(span, out.Err)
			} else {
				observability.SetSpanOK(span)
			}
		}
		span.End()
		d.signal(notify.TopicCompletions)
	}

	call := rt.iv.Begin(ctx, rt.target, inputs, corr, onComplete, token)
	if err := d.tracker.Put(token, name, corr, call); err != nil {
		return "", err
	}
	return token, nil
}

// Status returns the current state of a tracked call without blocking.
func (d *Dispatcher) Status(token string) (CallStatus, error) {
	e, ok := d.tracker.Get(token)
	if !ok {
		return CallStatus{}, fmt.Errorf("call %q: %w", token, ErrUnknownToken)
	}
	st := CallStatus{
		Token:       e.Token,
		Operation:   e.Operation,
		Correlation: e.Correlation,
	}
	if out, ok := e.Call.Outcome(); ok {
		st.Settled = true
		st.Outcome = &out
	}
	return st, nil
}

// Await blocks until the call settles or ctx is done. The invocation keeps
// running when ctx expires first; only the wait is abandoned.
func (d *Dispatcher) Await(ctx context.Context, token string) (CallStatus, error) {
	e, ok := d.tracker.Get(token)
	if !ok {
		return CallStatus{}, fmt.Errorf("call %q: %w", token, ErrUnknownToken)
	}
	select {
	case <-e.Call.Done():
	case <-ctx.Done():
		return CallStatus{}, ctx.Err()
	}
	return d.Status(token)
}

// End waits for the call and unpacks its outcome the way a synchronous
// invocation would surface it. Ending the same token again returns the same
// values; entries are evicted by TTL, not by End.
func (d *Dispatcher) End(ctx context.Context, token string) (any, []any, error) {
	e, ok := d.tracker.Get(token)
	if !ok {
		return nil, nil, fmt.Errorf("call %q: %w", token, ErrUnknownToken)
	}
	select {
	case <-e.Call.Done():
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	return invoker.End(e.Call)
}

// Operations lists the bound operations sorted by name.
func (d *Dispatcher) Operations() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := d.registry.Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		out = append(out, d.info(name))
	}
	return out
}

// Operation returns the description of one bound operation.
func (d *Dispatcher) Operation(name string) (Info, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.registry.Lookup(name); !ok {
		return Info{}, false
	}
	return d.info(name), true
}

// info builds the Info for a bound name. Callers hold d.mu.
func (d *Dispatcher) info(name string) Info {
	op, _ := d.registry.Lookup(name)
	sig := op.Signature()
	return Info{
		Name:          name,
		Inputs:        sig.Inputs,
		Outputs:       sig.Outputs,
		Return:        sig.Return.String(),
		Disabled:      d.settings[name].Disabled,
		EmitCancelled: d.effectivePolicy(name).EmitCancelled,
	}
}

// Policy returns the global telemetry policy.
func (d *Dispatcher) Policy() telemetry.Policy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.policy
}

// SetPolicy replaces the global telemetry policy and rebinds every
// operation under it. Per-operation overrides keep precedence.
func (d *Dispatcher) SetPolicy(p telemetry.Policy) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.policy = p
	for name, rt := range d.runtimes {
		if op, ok := d.registry.Lookup(name); ok {
			rt.iv = d.buildInvoker(op)
		}
	}
}

// SetDisabled flips the disabled flag for one operation.
func (d *Dispatcher) SetDisabled(name string, disabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.registry.Lookup(name); !ok {
		return fmt.Errorf("operation %q: %w", name, ErrUnknownOperation)
	}
	s := d.settings[name]
	s.Disabled = disabled
	d.settings[name] = s
	return nil
}

// PendingCalls lists the tracked calls.
func (d *Dispatcher) PendingCalls() []calltracker.Entry {
	return d.tracker.List()
}

func (d *Dispatcher) signal(topic notify.Topic) {
	if err := d.notifier.Notify(context.Background(), topic); err != nil {
		metrics.RecordNotificationFailure()
		d.logger.Warn("notify failed", "topic", string(topic), "error", err)
	}
}
