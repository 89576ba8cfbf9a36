package replicate

import (
	"testing"

	"github.com/stretchr/testify/require"

	replicatego "github.com/replicate/replicate-go"

	"github.com/openevolve-go/openevolve/internal/errs"
	"github.com/openevolve-go/openevolve/internal/llm"
	"github.com/openevolve-go/openevolve/internal/registry"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(registry.Config{"api_key": "r8_test"})
	require.Error(t, err)
	var cfgErr *errs.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNew_RequiresAPIKeyWhenEnvUnset(t *testing.T) {
	t.Setenv(envVarName, "")
	_, err := New(registry.Config{"model": "meta/meta-llama-3-8b"})
	require.Error(t, err)
}

func TestNew_SucceedsWithExplicitAPIKey(t *testing.T) {
	c, err := New(registry.Config{"model": "meta/meta-llama-3-8b", "api_key": "r8_test"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestNew_DefaultsSeedToNine(t *testing.T) {
	c, err := New(registry.Config{"model": "meta/meta-llama-3-8b", "api_key": "r8_test"})
	require.NoError(t, err)
	require.Equal(t, 9, c.(*Client).seed)
}

func TestNew_RegisteredUnderLLMRegistry(t *testing.T) {
	factory, ok := llm.Registry.Get("replicate")
	require.True(t, ok)
	c, err := factory(registry.Config{"model": "meta/meta-llama-3-8b", "api_key": "r8_test"})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestExtractText_HandlesStringSliceAndAnySliceShapes(t *testing.T) {
	require.Equal(t, "hello", extractText(replicatego.PredictionOutput("hello")))
	require.Equal(t, "helloworld", extractText(replicatego.PredictionOutput([]string{"hello", "world"})))
	require.Equal(t, "helloworld", extractText(replicatego.PredictionOutput([]any{"hello", "world"})))
}
