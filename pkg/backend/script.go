package backend

import (
	"context"
	"sync"
)

// ScriptBackend returns a fixed sequence of outputs for local runs and
// tests. Once the script is exhausted it keeps returning the default
// final answer so a stage always terminates.
type ScriptBackend struct {
	mu       sync.Mutex
	outputs  []string
	next     int
	fallback string
	// Requests records every request seen, for test assertions.
	Requests []Request
}

// NewScriptBackend creates a script backend that plays outputs in order.
func NewScriptBackend(outputs ...string) *ScriptBackend {
	return &ScriptBackend{
		outputs:  outputs,
		fallback: `{"final": "script exhausted", "status": "completed"}`,
	}
}

// WithFallback overrides the output returned once the script is exhausted.
func (b *ScriptBackend) WithFallback(output string) *ScriptBackend {
	b.fallback = output
	return b
}

// Name returns the backend identifier.
func (b *ScriptBackend) Name() string {
	return "script"
}

// Models returns the list of supported script models.
func (b *ScriptBackend) Models() []string {
	return []string{"script-1"}
}

// Complete plays the next scripted output.
func (b *ScriptBackend) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Requests = append(b.Requests, req)
	if b.next < len(b.outputs) {
		output := b.outputs[b.next]
		b.next++
		return output, nil
	}
	return b.fallback, nil
}
