package tool

import (
	"context"
	"fmt"
)

// Echo is a trivial, pure tool used by the scenario tests: it returns
// its "text" argument verbatim. It exists only to exercise the
// executor end to end without a real external collaborator.
type Echo struct{}

func (Echo) Definition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes the given text back.",
		Schema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"text": map[string]any{"type": "string"}},
			"required":             []any{"text"},
			"additionalProperties": false,
		},
		Pure: true,
	}
}

func (Echo) Execute(ctx context.Context, args map[string]any) (string, string, error) {
	text, _ := args["text"].(string)
	return text, "", nil
}

// Fail is a trivial tool that always errors, used to exercise the
// retryable-classification and tool_call_failed paths in tests.
type Fail struct {
	Message string
}

func (f Fail) Definition() Definition {
	return Definition{Name: "fail", Description: "Always fails.", Schema: map[string]any{"type": "object"}}
}

func (f Fail) Execute(ctx context.Context, args map[string]any) (string, string, error) {
	msg := f.Message
	if msg == "" {
		msg = "intentional failure"
	}
	return "", "", fmt.Errorf("%s", msg)
}
