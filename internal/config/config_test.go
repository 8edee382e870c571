package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfncheck/cfncheck/internal/validator"
)

func write(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CFNCHECK_TEST_ENV", "prod")
	dir := t.TempDir()
	path := write(t, dir, `
spec = ["extra.json", "/abs/other.json"]
format = "json"
log_level = "debug"
disable = ["duplicate-key"]

[parameters]
Environment = "${CFNCHECK_TEST_ENV}"

[[ignore]]
path = "Resources.Legacy.*"
rules = ["invalid-property"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, []string{filepath.Join(dir, "extra.json"), "/abs/other.json"}, cfg.Spec)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, map[string]string{"Environment": "prod"}, cfg.Parameters)

	opts := cfg.Options()
	assert.Equal(t, []string{validator.RuleDuplicateKey}, opts.DisabledRules)
	assert.Equal(t, []validator.IgnoreRule{{Path: "Resources.Legacy.*", Rules: []string{"invalid-property"}}}, opts.Ignore)
	assert.Equal(t, "prod", opts.Parameters["Environment"])
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "colour = \"red\"\n",
		"bad format":     "format = \"xml\"\n",
		"unknown rule":   "disable = [\"nope\"]\n",
		"bad ignore":     "[[ignore]]\npath = \"Resources\"\nrules = [\"nope\"]\n",
		"invalid syntax": "format = \n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, t.TempDir(), content))
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := Resolve("", nested)
	require.NoError(t, err)
	assert.Equal(t, "text", cfg.Format)

	path := write(t, root, "format = \"json\"\n")
	assert.Equal(t, path, Find(nested))
	cfg, err = Resolve("", nested)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
}

func TestStarterLoads(t *testing.T) {
	cfg, err := Load(write(t, t.TempDir(), Starter))
	require.NoError(t, err)
	assert.Equal(t, Default().Format, cfg.Format)
	assert.Empty(t, cfg.Ignore)
}
