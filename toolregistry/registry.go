// Package toolregistry implements the Tool Registry: it resolves tools by
// name, validates parameters against a declared JSON
// Schema, executes handlers under a per-tool timeout with retry/backoff,
// and captures the result as an Observation.
//
// Tool invocation is the only place side effects happen in the engine;
// handlers must be pure with respect to the core's in-memory state, with
// all mutation flowing back through the returned Result.
package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GeneticxCln/Autonomous-AI--sub000/core"
	"github.com/GeneticxCln/Autonomous-AI--sub000/resilience"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Result is what a tool handler returns.
type Result struct {
	Success       bool
	Score         *float64 // optional, in [-1,1]; derived +1/-1 if nil
	Signals       map[string]float64
	PayloadBytes  int
	FallbackFired bool
	Err           *core.ToolError
}

// Handler is a registered tool's implementation. It must be idempotent
// under retry with the same parameters, or the registration's
// RetryPolicy.NonIdempotent must be set to disable retry.
type Handler func(ctx context.Context, params map[string]interface{}) (*Result, error)

// RetryPolicy configures retry/backoff and the per-call timeout for one
// registered tool.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Timeout        time.Duration
	NonIdempotent  bool // disables retry even on transient errors
	CircuitBreaker *resilience.CircuitBreaker
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Timeout: 10 * time.Second}
}

type registration struct {
	name    string
	handler Handler
	schema  *jsonschema.Schema
	policy  RetryPolicy
}

// Registry resolves tools by name and invokes them with schema validation,
// retry/backoff, and observation capture.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registration

	now    func() time.Time
	logger core.Logger
}

func New(logger core.Logger) *Registry {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("toolregistry")
	}
	return &Registry{tools: make(map[string]*registration), now: time.Now, logger: logger}
}

// Register adds a tool under name with the given JSON Schema (map form,
// e.g. {"type":"object","required":["query"],"properties":{...}}) and
// retry policy. name must be unique.
func (r *Registry) Register(name string, handler Handler, paramSchema map[string]interface{}, policy RetryPolicy) error {
	if name == "" || handler == nil {
		return core.NewFrameworkError("toolregistry.Register", "tool", core.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return core.NewFrameworkErrorWithID("toolregistry.Register", "tool", name, core.ErrAlreadyRegistered)
	}

	compiled, err := compileSchema(name, paramSchema)
	if err != nil {
		return core.NewFrameworkErrorWithID("toolregistry.Register", "tool", name, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}

	if policy.MaxAttempts <= 0 {
		def := DefaultRetryPolicy()
		policy.MaxAttempts, policy.BaseDelay, policy.MaxDelay = def.MaxAttempts, def.BaseDelay, def.MaxDelay
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryPolicy().Timeout
	}

	r.tools[name] = &registration{name: name, handler: handler, schema: compiled, policy: policy}
	r.logger.Info("tool registered", map[string]interface{}{"tool_name": name})
	return nil
}

// Names returns the set of currently registered tool names.
func (r *Registry) Names() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.tools))
	for name := range r.tools {
		out[name] = true
	}
	return out
}

// Invoke validates params, runs the handler under the tool's timeout and
// retry policy, and returns the captured Observation.
// goalID/actionID are carried through for Observation correlation.
func (r *Registry) Invoke(ctx context.Context, actionID, goalID, name string, params map[string]interface{}) (*core.Observation, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewFrameworkErrorWithID("toolregistry.Invoke", "tool", name, core.ErrToolNotFound)
	}

	if err := validateParams(reg.schema, params); err != nil {
		return nil, core.NewFrameworkErrorWithID("toolregistry.Invoke", "tool", name, fmt.Errorf("%w: %v", core.ErrInvalidInput, err))
	}

	start := r.now()
	var attempts int
	var result *Result
	var lastErr error

	retryCfg := &resilience.RetryConfig{MaxAttempts: reg.policy.MaxAttempts, BaseDelay: reg.policy.BaseDelay, MaxDelay: reg.policy.MaxDelay, JitterEnabled: true}
	if reg.policy.NonIdempotent {
		retryCfg.MaxAttempts = 1
	}

	shouldRetry := func(err error) bool {
		var toolErr *core.ToolError
		if asToolError(err, &toolErr) {
			return toolErr.Classify() != core.ErrToolPermanent
		}
		return true // network-like/unclassified errors are treated as transient
	}

	run := func() error {
		tctx, cancel := context.WithTimeout(ctx, reg.policy.Timeout)
		defer cancel()
		res, err := reg.handler(tctx, params)
		result = res
		return err
	}

	if reg.policy.CircuitBreaker != nil {
		attempts, lastErr = resilience.RetryWithCircuitBreaker(ctx, retryCfg, reg.policy.CircuitBreaker, shouldRetry, run)
	} else {
		attempts, lastErr = resilience.Retry(ctx, retryCfg, shouldRetry, run)
	}

	latency := r.now().Sub(start)
	obs := &core.Observation{
		ActionID:   actionID,
		GoalID:     goalID,
		LatencyMS:  latency.Milliseconds(),
		ProducedAt: r.now(),
	}

	if lastErr != nil {
		obs.Success = false
		obs.Score = -1
		obs.Summary = lastErr.Error()
		r.logger.ErrorWithContext(ctx, "tool invocation failed", map[string]interface{}{
			"tool_name": name, "attempts": attempts, "error": lastErr.Error(),
		})
		return obs, lastErr
	}

	if result == nil {
		result = &Result{Success: true}
	}
	obs.Success = result.Success
	obs.Signals = result.Signals
	obs.PayloadBytes = result.PayloadBytes
	if result.Score != nil {
		obs.Score = *result.Score
	} else if result.Success {
		obs.Score = 1
	} else {
		obs.Score = -1
	}

	r.logger.InfoWithContext(ctx, "tool invoked", map[string]interface{}{
		"tool_name": name, "attempts": attempts, "latency_ms": obs.LatencyMS, "success": obs.Success,
	})
	return obs, nil
}

func asToolError(err error, target **core.ToolError) bool {
	te, ok := err.(*core.ToolError)
	if ok {
		*target = te
	}
	return ok
}

func compileSchema(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	resourceURL := "mem://tools/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceURL)
}

func validateParams(schema *jsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return schema.Validate(params)
}
