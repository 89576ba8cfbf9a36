package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// CLI is the OpenEvolve command-line interface.
var CLI struct {
	Debug bool `help:"Enable debug logging." short:"d" env:"OPENEVOLVE_DEBUG"`

	Run        RunCmd        `cmd:"" help:"Start a new evolution run."`
	Resume     ResumeCmd     `cmd:"" help:"Continue an existing run from its latest generation."`
	List       ListCmd       `cmd:"" help:"List runs, or candidates within a run."`
	Show       ShowCmd       `cmd:"" help:"Show full detail for one candidate."`
	Version    VersionCmd    `cmd:"" help:"Print version information."`
	Help       HelpCmd       `cmd:"" hidden:"" default:"1"`
	Completion CompletionCmd `cmd:"" help:"Generate shell completion scripts."`
}

const version = "0.1.0"

// VersionCmd prints version information.
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("openevolve %s\n", version)
	return nil
}

// HelpCmd prints help.
type HelpCmd struct{}

func (h *HelpCmd) Run(ctx *kong.Context) error {
	// Print top-level help (application help), not help for the implicit Help command.
	appCtx := *ctx
	if len(appCtx.Path) > 1 {
		appCtx.Path = appCtx.Path[:1]
	}
	return appCtx.PrintUsage(false)
}

// CompletionCmd generates shell completion scripts.
type CompletionCmd struct {
	Shell string `arg:"" enum:"bash,zsh,fish" help:"Shell type (bash, zsh, fish)."`
}

func (c *CompletionCmd) Run() error {
	switch c.Shell {
	case "bash":
		fmt.Println("# Bash completion for openevolve")
		fmt.Println("# Add to ~/.bashrc:")
		fmt.Println("# eval \"$(openevolve completion bash)\"")
	case "zsh":
		fmt.Println("# Zsh completion for openevolve")
		fmt.Println("# Add to ~/.zshrc:")
		fmt.Println("# eval \"$(openevolve completion zsh)\"")
	case "fish":
		fmt.Println("# Fish completion for openevolve")
		fmt.Println("# Run: openevolve completion fish | source")
	}
	return nil
}
