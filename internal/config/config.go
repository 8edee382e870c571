// Package config loads the optional .cfncheck.toml project file.
package config

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/drone/envsubst"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	"github.com/cfncheck/cfncheck/internal/validator"
)

// FileName is looked up in the working directory and its parents.
const FileName = ".cfncheck.toml"

type Config struct {
	// Spec lists extra specification documents merged over the built-in one.
	// Relative paths are resolved against the config file's directory.
	Spec       []string               `toml:"spec"`
	Format     string                 `toml:"format"`
	LogLevel   string                 `toml:"log_level"`
	Disable    []string               `toml:"disable"`
	Parameters map[string]string      `toml:"parameters"`
	Ignore     []validator.IgnoreRule `toml:"ignore"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

func Default() *Config {
	return &Config{Format: "text", LogLevel: "info", Parameters: map[string]string{}}
}

// Load reads path, expanding ${VAR} references from the environment before
// decoding. Unknown keys are an error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	expanded, err := envsubst.EvalEnv(string(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "expanding environment in config %s", path)
	}

	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if cfg.Parameters == nil {
		cfg.Parameters = map[string]string{}
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}

	cfg.Path = path
	dir := filepath.Dir(path)
	for i, s := range cfg.Spec {
		if !filepath.IsAbs(s) {
			cfg.Spec[i] = filepath.Join(dir, s)
		}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return errors.Errorf("format must be text or json, got %q", c.Format)
	}
	for _, r := range c.Disable {
		if !known(r) {
			return errors.Errorf("unknown rule %q in disable", r)
		}
	}
	for _, ig := range c.Ignore {
		for _, r := range ig.Rules {
			if !known(r) {
				return errors.Errorf("unknown rule %q in ignore for %s", r, ig.Path)
			}
		}
	}
	return nil
}

func known(rule string) bool {
	for _, r := range validator.Rules {
		if r == rule {
			return true
		}
	}
	return false
}

// Find walks up from dir looking for FileName. It returns "" when there is
// none.
func Find(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Resolve loads the config at path, or the nearest one above dir when path
// is empty, or the defaults when there is none.
func Resolve(path, dir string) (*Config, error) {
	if path == "" {
		path = Find(dir)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Options converts the config into lint options.
func (c *Config) Options() validator.Options {
	params := make(map[string]string, len(c.Parameters))
	for k, v := range c.Parameters {
		params[k] = v
	}
	return validator.Options{
		Parameters:    params,
		Ignore:        append([]validator.IgnoreRule(nil), c.Ignore...),
		DisabledRules: append([]string(nil), c.Disable...),
	}
}

// Starter is the file written by "cfncheck init".
const Starter = `# cfncheck project configuration.

# Extra resource specification documents, merged over the built-in one.
spec = []

# Output format: text or json.
format = "text"

# debug, info, warn or error.
log_level = "info"

# Rule ids to turn off everywhere.
disable = []

# Runtime parameter values. ${VAR} expands from the environment.
[parameters]
# Environment = "${DEPLOY_ENV}"

# [[ignore]]
# path = "Resources.LegacyBucket.*"
# rules = ["invalid-property"]
`
