// Package llmclient is the collaborator contract for the stage workers' LLM
// calls. It defines a single opaque Complete operation, fixed generation
// parameters, and a tolerant parser for the provider's JSON contract, with no
// retry policy of its own — the stage workers own retry/degrade decisions.
package llmclient

import (
	"context"
)

// GenerationParams are the fixed sampling parameters used for every call.
var GenerationParams = struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}{
	Temperature:     0.1,
	TopP:            0.95,
	TopK:            40,
	MaxOutputTokens: 2048,
}

// Client submits a single prompt and returns the raw text response. Any
// transport or provider error is returned as-is; callers degrade rather than
// retry.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
