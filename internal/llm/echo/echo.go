// Package echo provides a deterministic fixed-response LLM backend,
// used for tests and for the seed round-trip scenario where no
// mutation should occur.
package echo

import (
	"context"

	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/registry"
)

func init() {
	llm.Registry.Register("echo", New)
}

// Echo is an LLM backend that always returns the same configured
// response, ignoring the prompt entirely.
type Echo struct {
	response string
}

// New builds an Echo backend from config. The "response" key sets
// the fixed body; it defaults to an empty structured-diffs patch,
// i.e. a no-op edit.
func New(cfg registry.Config) (llm.Client, error) {
	return &Echo{
		response: registry.GetString(cfg, "response", `{"diffs": []}`),
	}, nil
}

// Call ignores prompt and ctx and returns the configured response.
func (e *Echo) Call(_ context.Context, _ string) (string, error) {
	return e.response, nil
}
