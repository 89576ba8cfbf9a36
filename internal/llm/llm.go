// Package llm defines the Client seam the engine calls on every
// generation and the registry pluggable backends register into.
package llm

import (
	"context"

	"github.com/openevolve-go/openevolve/internal/registry"
)

// Client is the single capability the engine needs from a language
// model backend: turn an assembled prompt into a raw response body,
// which the patch package then classifies as structured diffs or a
// unified diff.
type Client interface {
	Call(ctx context.Context, prompt string) (string, error)
}

// Registry holds named backend constructors. Backend packages
// register themselves in init(); cmd/openevolve blank-imports the
// backends it wants compiled in.
var Registry = registry.New[Client]("llm")
