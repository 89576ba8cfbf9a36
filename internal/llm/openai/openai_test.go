package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/registry"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(registry.Config{"api_key": "sk-test"})
	require.Error(t, err)
	var cfgErr *errs.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNew_RequiresAPIKeyWhenEnvUnset(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New(registry.Config{"model": "gpt-4o-mini"})
	require.Error(t, err)
}

func TestNew_SucceedsWithExplicitAPIKey(t *testing.T) {
	c, err := New(registry.Config{"model": "gpt-4o-mini", "api_key": "sk-test"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestNew_FallsBackToEnvAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	c, err := New(registry.Config{"model": "gpt-4o-mini"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestNew_RegisteredUnderLLMRegistry(t *testing.T) {
	factory, ok := llm.Registry.Get("openai")
	require.True(t, ok)
	c, err := factory(registry.Config{"model": "gpt-4o-mini", "api_key": "sk-test"})
	require.NoError(t, err)
	require.NotNil(t, c)
}
