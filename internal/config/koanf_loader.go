package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openevolve-go/openevolve/internal/errs"
)

// envPrefix is the environment variable prefix recognised by the
// loader: OPENEVOLVE_ARCHIVE__CAPACITY -> archive.capacity.
const envPrefix = "OPENEVOLVE_"

// Load builds a Config with precedence CLI overrides > environment
// variables > YAML config file > struct defaults. configPath may be
// empty to skip the file layer. overrides holds CLI-flag-derived
// values already in dotted-key form (e.g. "seed", "llm.model");
// pass nil when there are none.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, &errs.ConfigError{Msg: fmt.Sprintf("load config file %s: %v", configPath, err)}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil)
	if err != nil {
		return nil, &errs.ConfigError{Msg: "load environment variables: " + err.Error()}
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return nil, &errs.ConfigError{Msg: "apply CLI overrides: " + err.Error()}
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, &errs.ConfigError{Msg: "unmarshal config: " + err.Error()}
	}

	if err := validateStruct(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
