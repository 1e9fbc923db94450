package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

// Load reads a CUE or JSON configuration file and validates it against the schema.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse unifies src with the #Config schema, applies defaults and decodes the result.
// filename is used for error positions only.
func Parse(src []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}

	unified := def.Unify(value)
	if err := unified.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &cfg, nil
}

// Default returns the schema defaults with a default stimulus section.
func Default() *Config {
	cfg, err := Parse([]byte("stimulus: {}"), "default.cue")
	if err != nil {
		// The embedded schema is fixed at build time.
		panic(fmt.Sprintf("config: default configuration is invalid: %v", err))
	}
	return cfg
}
