// Package llm provides the engine's LLM service contract (§6.4): a
// single "complete" operation behind a container.Factory so the
// service container can register it as a lazily-created singleton
// that degrades gracefully when no API key is configured. The
// concrete implementation is backed by anthropic-sdk-go, grounded on
// the pack's goa-ai Anthropic model client.
package llm

import "context"

// Service is the engine-facing LLM contract analysers call through.
// Implementations must be safe for concurrent use once cached by the
// service container.
type Service interface {
	// Complete sends prompt to the model and returns its text response.
	Complete(ctx context.Context, prompt string) (string, error)
	// Spent returns the running total cost, in US dollars, of every
	// Complete call so far. Satisfies executor.CostTracker.
	Spent() float64
}
