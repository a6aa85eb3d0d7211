// Package backend reaches the reasoning services that drive pipeline
// roles. A backend is a plain request/response surface: role instructions
// plus a transcript in, raw output text out. Everything the output means
// is decided elsewhere, by the protocol parser.
package backend

import "context"

// Turn is one entry in a conversation transcript.
type Turn struct {
	// Role is "user" for orchestrator observations and "assistant" for
	// prior model output.
	Role    string
	Content string
}

// Request carries one backend exchange.
type Request struct {
	// System is the role's instruction prompt.
	System string
	// Turns is the running transcript, oldest first.
	Turns []Turn
	// Model selects the provider model; empty picks the backend default.
	Model string
	// MaxTokens bounds the completion; 0 picks the backend default.
	MaxTokens int
}

// Backend is the interface for reasoning providers.
type Backend interface {
	// Complete sends the request and returns the raw output text.
	Complete(ctx context.Context, req Request) (string, error)

	// Name returns the backend identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

const defaultMaxTokens = 4096

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func pickModel(req Request, models []string) string {
	if req.Model != "" {
		return req.Model
	}
	if len(models) > 0 {
		return models[0]
	}
	return ""
}
