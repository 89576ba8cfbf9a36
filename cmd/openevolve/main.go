// Command openevolve drives iterative, LLM-guided program evolution
// against a single target file: run, resume, inspect, and list past
// candidates from an embedded Store.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	_ "github.com/openevolve-go/openevolve/internal/llm/bedrock"
	_ "github.com/openevolve-go/openevolve/internal/llm/echo"
	_ "github.com/openevolve-go/openevolve/internal/llm/openai"
	_ "github.com/openevolve-go/openevolve/internal/llm/replicate"
)

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("openevolve"),
		kong.Description("OpenEvolve - iterative, LLM-guided program evolution"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Exit(func(code int) {
			if code != 0 {
				os.Exit(2)
			}
			os.Exit(0)
		}),
	)
	err := ctx.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
