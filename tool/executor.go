package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/google/uuid"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/hitl"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/permission"
	"github.com/agentflow/core/runctx"
)

// ResultKind classifies how a tool invocation concluded.
type ResultKind string

const (
	KindOK           ResultKind = "ok"
	KindUnknownTool  ResultKind = "unknown tool"
	KindBadArguments ResultKind = "bad arguments"
	KindDenied       ResultKind = "denied"
	KindAborted      ResultKind = "aborted"
	KindToolError    ResultKind = "tool error"
	KindNeedsConsent ResultKind = "needs_consent"
)

// Result is the outcome of one tool invocation.
type Result struct {
	ToolCallID     string
	ToolName       string
	Kind           ResultKind
	Content        string
	ContentForUser string
	Err            error
	Retryable      bool
	FromCache      bool
	Duration       time.Duration
	// Suspension is set when Kind == KindNeedsConsent; the caller (step
	// executor / agent runner) must stop driving the loop and persist
	// this as suspended state rather than treat it as a tool failure.
	Suspension *hitl.SuspendExecution
}

// Classifier decides whether a tool-raised error should be retried.
// Retryability is pluggable rather than centrally specified, defaulting
// to always non-retryable.
type Classifier func(err error) (retryable bool)

func defaultClassifier(error) bool { return false }

// Events is the minimal emitter the executor needs; implemented by the
// agent/step layer's event.Factory adapter, kept as an interface here
// to avoid tool depending on event's ExecutionContext stamping logic.
type Events interface {
	ToolCallStarted(toolCallID, toolName string, args map[string]any)
	ToolCallCompleted(toolCallID string, duration time.Duration)
	ToolCallFailed(toolCallID string, err error, retryable bool)
	InteractionRequested(req *hitl.InteractionRequest)
	ExecutionSuspended(interactionRequestID string)
}

// Executor invokes registered tools, enforcing permission checks,
// per-call abort signalling, and a deterministic result cache for pure
// tools.
type Executor struct {
	tools      Map
	perm       *permission.Manager
	classifier Classifier

	// ConcurrencyLimit bounds execute_batch fan-out; 0 means unbounded.
	ConcurrencyLimit int64

	cacheMu sync.Mutex
	cache   map[string]Result

	// keyMu gives single-writer-per-key semantics so concurrent calls
	// sharing a cache key don't duplicate work.
	keyMu      map[string]*sync.Mutex
	keyMuGuard sync.Mutex
}

// NewExecutor constructs an Executor over tools, using perm for
// permission checks. A nil classifier defaults to always non-retryable.
func NewExecutor(tools Map, perm *permission.Manager, classifier Classifier) *Executor {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Executor{
		tools:      tools,
		perm:       perm,
		classifier: classifier,
		cache:      make(map[string]Result),
		keyMu:      make(map[string]*sync.Mutex),
	}
}

func canonicalize(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b, _ := json.Marshal(orderedMap(args, keys))
	return string(b)
}

// orderedMap renders args as a slice of [key, value] pairs in sorted
// key order so json.Marshal produces a stable byte sequence regardless
// of Go map iteration order.
func orderedMap(args map[string]any, keys []string) []any {
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, []any{k, args[k]})
	}
	return out
}

func cacheKey(toolName string, args map[string]any) string {
	return toolName + "\x00" + canonicalize(args)
}

// summarizeArgs renders a short, deterministic string used to build the
// permission-manager resource pattern `tool_name(argument_pattern)`.
func summarizeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ",")
}

// Permission returns the permission.Manager this executor consults,
// so a caller holding only the executor (the resume engine) can record
// a human's consent decision before re-invoking a pending call.
func (e *Executor) Permission() *permission.Manager { return e.perm }

// ResourceFor builds the same permission-manager resource string
// Execute computes internally, for callers (the resume engine) that
// need to record a human's consent decision for a pending tool call
// before re-invoking it.
func ResourceFor(toolName string, args map[string]any) string {
	return permission.Resource(toolName, summarizeArgs(args))
}

func (e *Executor) lockFor(key string) *sync.Mutex {
	e.keyMuGuard.Lock()
	defer e.keyMuGuard.Unlock()
	m, ok := e.keyMu[key]
	if !ok {
		m = &sync.Mutex{}
		e.keyMu[key] = m
	}
	return m
}

func validateArguments(def Definition, args map[string]any) error {
	if def.Schema == nil {
		return nil
	}
	b, err := json.Marshal(def.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceName := "mem://" + def.Name + ".schema.json"
	if err := c.AddResource(resourceName, strings.NewReader(string(b))); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	instanceBytes, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var instance any
	if err := json.Unmarshal(instanceBytes, &instance); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	return sch.Validate(instance)
}

// Execute invokes one tool call end to end: resolve, parse arguments,
// validate against schema, check permission, consult the cache, invoke
// the tool body, and materialize a Result. When the permission decision
// is NeedsConsent, no tool body runs; the result carries a Suspension
// the caller must act on instead of treating it as an ordinary
// failure.
func (e *Executor) Execute(ctx context.Context, ectx *runctx.ExecutionContext, events Events, userID string, tc model.ToolCall) Result {
	started := time.Now()

	t, ok := e.tools[tc.Name]
	if !ok {
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindUnknownTool, Content: fmt.Sprintf("unknown tool %q", tc.Name), Err: errs.ErrUnknownTool}
		events.ToolCallFailed(tc.ID, res.Err, false)
		return res
	}
	def := t.Definition()

	var args map[string]any
	if tc.ArgumentsJSON == "" {
		args = map[string]any{}
	} else if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &args); err != nil {
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindBadArguments, Content: fmt.Sprintf("bad arguments: %v", err), Err: errs.ErrBadArguments}
		events.ToolCallFailed(tc.ID, res.Err, false)
		return res
	}
	if err := validateArguments(def, args); err != nil {
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindBadArguments, Content: fmt.Sprintf("bad arguments: %v", err), Err: fmt.Errorf("%w: %v", errs.ErrBadArguments, err)}
		events.ToolCallFailed(tc.ID, res.Err, false)
		return res
	}

	events.ToolCallStarted(tc.ID, tc.Name, args)

	resource := permission.Resource(tc.Name, summarizeArgs(args))
	decision := e.perm.Decide(userID, resource, def.DefaultPolicyAllow)
	switch decision {
	case permission.Deny:
		slog.Warn("tool executor: call denied by permission policy", "tool", tc.Name, "resource", resource)
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindDenied, Content: "permission denied", Err: errs.ErrDenied}
		events.ToolCallFailed(tc.ID, res.Err, false)
		return res
	case permission.NeedsConsent:
		req := &hitl.InteractionRequest{
			ID:       uuid.NewString(),
			Kind:     hitl.KindConfirm,
			Resource: resource,
			Prompt:   fmt.Sprintf("Approve %s?", resource),
			Payload:  map[string]any{"tool": tc.Name, "arguments": args},
		}
		susp := &hitl.SuspendExecution{Request: req, PendingToolCall: tc, RunID: ectx.RunID, SessionID: ectx.SessionID}
		events.InteractionRequested(req)
		events.ExecutionSuspended(req.ID)
		return Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindNeedsConsent, Suspension: susp, Err: susp}
	}

	key := cacheKey(tc.Name, args)
	if def.Pure {
		mu := e.lockFor(key)
		mu.Lock()
		defer mu.Unlock()
		e.cacheMu.Lock()
		if cached, ok := e.cache[key]; ok {
			e.cacheMu.Unlock()
			cached.FromCache = true
			cached.ToolCallID = tc.ID
			events.ToolCallCompleted(tc.ID, 0)
			return cached
		}
		e.cacheMu.Unlock()
	}

	if ectx.Abort.Aborted() {
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindAborted, Content: "aborted", Err: errs.ErrAborted}
		events.ToolCallFailed(tc.ID, res.Err, false)
		return res
	}

	var content, contentForUser string
	var err error
	if aware, ok := t.(ExecutionAware); ok {
		content, contentForUser, err = aware.ExecuteWithContext(ectx.Abort.Context(), ectx, args)
	} else {
		content, contentForUser, err = t.Execute(ectx.Abort.Context(), args)
	}
	duration := time.Since(started)

	if err != nil {
		if ectx.Abort.Aborted() {
			res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindAborted, Content: "aborted", Err: errs.ErrAborted, Duration: duration}
			events.ToolCallFailed(tc.ID, res.Err, false)
			return res
		}
		retryable := e.classifier(err)
		slog.Warn("tool executor: call raised an error", "tool", tc.Name, "retryable", retryable, "error", err)
		res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindToolError, Content: fmt.Sprintf("tool error: %v", err), Err: err, Retryable: retryable, Duration: duration}
		events.ToolCallFailed(tc.ID, err, retryable)
		return res
	}

	res := Result{ToolCallID: tc.ID, ToolName: tc.Name, Kind: KindOK, Content: content, ContentForUser: contentForUser, Duration: duration}
	if def.Pure {
		e.cacheMu.Lock()
		e.cache[key] = res
		e.cacheMu.Unlock()
	}
	events.ToolCallCompleted(tc.ID, duration)
	return res
}

// ExecuteBatch runs calls concurrently up to ConcurrencyLimit (0 =
// unbounded), returning results ordered to match the input tool_calls
// order -- not completion order -- so downstream tool-step sequencing
// stays deterministic.
func (e *Executor) ExecuteBatch(ctx context.Context, ectx *runctx.ExecutionContext, events Events, userID string, calls []model.ToolCall) []Result {
	results := make([]Result, len(calls))
	var sem *semaphore.Weighted
	if e.ConcurrencyLimit > 0 {
		sem = semaphore.NewWeighted(e.ConcurrencyLimit)
	}
	var wg sync.WaitGroup
	for i, tc := range calls {
		i, tc := i, tc
		if sem != nil {
			_ = sem.Acquire(ctx, 1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			results[i] = e.Execute(ctx, ectx, events, userID, tc)
		}()
	}
	wg.Wait()
	return results
}
