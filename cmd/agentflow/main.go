// Command agentflow is a minimal CLI: load a config directory, build
// the component container, and run one turn of a named agent on the
// input given as command-line arguments (standard input when none).
//
// Usage:
//
//	agentflow -config ./config -agent assistant "hello there"
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/agentflow/core/agent"
	"github.com/agentflow/core/config"
	"github.com/agentflow/core/container"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/observability"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/tool"
	"github.com/agentflow/core/wire"
	"github.com/google/uuid"
)

func main() {
	configDir := flag.String("config", "./config", "path to the component config directory")
	agentName := flag.String("agent", "", "name of the agent component to run")
	flag.Parse()

	input := strings.Join(flag.Args(), " ")
	if input == "" {
		input = readStdin()
	}

	if err := run(*configDir, *agentName, input); err != nil {
		slog.Error("agentflow: run failed", "error", err)
		os.Exit(1)
	}
}

func readStdin() string {
	scanner := bufio.NewScanner(os.Stdin)
	var sb strings.Builder
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func run(configDir, agentName, input string) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}

	result, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, loadErr := range result.Errors {
		slog.Warn("agentflow: skipped invalid component", "error", loadErr)
	}
	if len(result.Components) == 0 {
		return fmt.Errorf("no components found under %s", configDir)
	}

	c := container.New()
	store := session.NewMemStore()
	recorder, err := observability.NewRecorder(observability.NewMemoryStore(), nil, nil, nil)
	if err != nil {
		return fmt.Errorf("build observability recorder: %w", err)
	}
	registerBuilders(c, store, recorder)

	ctx := context.Background()
	if err := c.BuildAll(ctx, result.Components); err != nil {
		return fmt.Errorf("build container: %w", err)
	}

	if agentName == "" {
		agentName = firstAgentName(result.Components)
	}
	if agentName == "" {
		return fmt.Errorf("no agent component found; pass -agent")
	}

	val, ok := c.Get(config.Key{Type: config.TypeAgent, Name: agentName})
	if !ok {
		return fmt.Errorf("agent %q not built (missing or failed dependency)", agentName)
	}
	a, ok := val.(runnable.Runnable)
	if !ok {
		return fmt.Errorf("agent %q builder did not produce a runnable.Runnable", agentName)
	}

	ectx := &runctx.ExecutionContext{
		RunID: uuid.NewString(),
		Wire:  wire.New(32),
		Abort: runctx.NewAbortSignal(ctx),
	}
	go drainWire(ectx.Wire)

	out, err := a.Run(ctx, input, ectx)
	if err != nil {
		return fmt.Errorf("run agent %q: %w", agentName, err)
	}
	fmt.Println(out.Response)
	return nil
}

func firstAgentName(components []*config.Component) string {
	for _, c := range components {
		if c.Type == config.TypeAgent {
			return c.Name
		}
	}
	return ""
}

// drainWire discards events on w so Run doesn't block once its buffer
// fills; a real transport would forward these as SSE frames instead.
func drainWire(w *wire.Wire) {
	for range w.Read() {
	}
}

// registerBuilders wires the trivial in-process collaborators this CLI
// ships with: an echo-only model (for trying the runtime without a
// real provider) and the echo/fail demo tools. A real deployment
// registers its own model/tool builders for concrete providers before
// calling container.BuildAll.
func registerBuilders(c *container.Container, store session.Store, recorder *observability.Recorder) {
	c.RegisterBuilder(config.TypeModel, func(_ context.Context, cc *config.Component, _ map[string]any) (any, error) {
		provider, _ := cc.Params["provider"].(string)
		if provider != "" && provider != "echo" {
			return nil, fmt.Errorf("model %q: provider %q has no builder wired in this CLI; register one before BuildAll", cc.Name, provider)
		}
		return &echoModel{name: cc.Name}, nil
	})

	c.RegisterBuilder(config.TypeTool, func(_ context.Context, cc *config.Component, _ map[string]any) (any, error) {
		switch cc.Name {
		case "echo":
			return tool.Echo{}, nil
		case "fail":
			return tool.Fail{}, nil
		default:
			return nil, fmt.Errorf("tool %q: no concrete tool body wired in this CLI", cc.Name)
		}
	})

	c.RegisterBuilder(config.TypeAgent, func(_ context.Context, cc *config.Component, deps map[string]any) (any, error) {
		var p config.AgentParams
		if m, ok := cc.Params["model"].(string); ok {
			p.Model = m
		}
		llm, _ := deps[p.Model].(model.LLM)
		if llm == nil {
			return nil, fmt.Errorf("agent %q: model dependency %q not built", cc.Name, p.Model)
		}

		tools := tool.Map{}
		if raw, ok := cc.Params["tools"].([]any); ok {
			for _, t := range raw {
				name, _ := t.(string)
				if inst, ok := deps[name].(tool.Tool); ok {
					tools[name] = inst
				}
			}
		}

		systemPrompt, _ := cc.Params["system_prompt"].(string)
		maxSteps := 10
		if v, ok := cc.Params["max_steps"]; ok {
			if f, ok := v.(int); ok {
				maxSteps = f
			}
		}

		return agent.New(cc.Name, agent.Config{
			Name:         cc.Name,
			LLM:          llm,
			Tools:        tools,
			SystemPrompt: systemPrompt,
			MaxSteps:     maxSteps,
			Recorder:     recorder,
		}, store), nil
	})
}

// echoModel is a trivial model.LLM that streams its last user message
// back verbatim, with no tool calls -- enough to exercise the runtime
// end to end without a real provider.
type echoModel struct{ name string }

func (m *echoModel) Name() string { return m.name }

func (m *echoModel) Stream(ctx context.Context, req model.Request) (<-chan model.Chunk, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	ch := make(chan model.Chunk, 1)
	go func() {
		defer close(ch)
		select {
		case ch <- model.Chunk{ContentDelta: last, Usage: &model.Usage{InputTokens: len(last), OutputTokens: len(last)}}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
