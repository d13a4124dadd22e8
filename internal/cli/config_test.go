package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile_ExplicitPath(t *testing.T) {
	// Create temp file
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "custom.yaml")
	err := os.WriteFile(tmpFile, []byte("schema: test.yaml"), 0o644)
	require.NoError(t, err)

	path, err := findConfigFile(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, tmpFile, path)
}

func TestFindConfigFile_ExplicitPathNotFound(t *testing.T) {
	_, err := findConfigFile("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestFindConfigFile_AutoDiscovery(t *testing.T) {
	// Create directory structure with .git and rebind.yaml
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	configPath := filepath.Join(root, "rebind.yaml")
	err = os.WriteFile(configPath, []byte("schema: test.yaml"), 0o644)
	require.NoError(t, err)

	// Create nested directory
	nested := filepath.Join(root, "deep", "nested")
	err = os.MkdirAll(nested, 0o755)
	require.NoError(t, err)

	// Change to nested directory
	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(nested)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(configPath)
	actualPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, expectedPath, actualPath)
}

func TestFindConfigFile_PrefersYamlOverYml(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	// Create both files
	yamlPath := filepath.Join(root, "rebind.yaml")
	ymlPath := filepath.Join(root, "rebind.yml")
	err = os.WriteFile(yamlPath, []byte("schema: yaml.yaml"), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(ymlPath, []byte("schema: yml.yaml"), 0o644)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(yamlPath)
	actualPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, expectedPath, actualPath) // Should prefer .yaml
}

func TestFindConfigFile_StopsAtGitRoot(t *testing.T) {
	// Config above .git should not be found
	root := t.TempDir()
	err := os.WriteFile(filepath.Join(root, "rebind.yaml"), []byte("schema: above.yaml"), 0o644)
	require.NoError(t, err)

	project := filepath.Join(root, "project")
	err = os.MkdirAll(project, 0o755)
	require.NoError(t, err)
	err = os.Mkdir(filepath.Join(project, ".git"), 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(project)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)
	assert.Empty(t, path) // Should not find config above .git
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Create directory with .git but no config
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	cfg, configPath, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, configPath)

	// Check defaults
	assert.Equal(t, "rebac.yaml", cfg.Schema)
	assert.Equal(t, "localhost:50051", cfg.SpiceDB.Endpoint)
	assert.False(t, cfg.SpiceDB.Insecure)
}

func TestLoadConfig_FromFile(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	configPath := filepath.Join(root, "rebind.yaml")
	err = os.WriteFile(configPath, []byte(`
schema: custom/rebac.yaml
spicedb:
  endpoint: spicedb.internal:50051
  token: sometoken
  insecure: true
`), 0o644)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	cfg, foundPath, err := LoadConfig("")
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	expectedPath, _ := filepath.EvalSymlinks(configPath)
	actualPath, _ := filepath.EvalSymlinks(foundPath)
	assert.Equal(t, expectedPath, actualPath)

	assert.Equal(t, "custom/rebac.yaml", cfg.Schema)
	assert.Equal(t, "spicedb.internal:50051", cfg.SpiceDB.Endpoint)
	assert.Equal(t, "sometoken", cfg.SpiceDB.Token)
	assert.True(t, cfg.SpiceDB.Insecure)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	configPath := filepath.Join(root, "rebind.yaml")
	err = os.WriteFile(configPath, []byte("schema: file.yaml"), 0o644)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	// Set env var
	t.Setenv("REBIND_SCHEMA", "env.yaml")

	cfg, _, err := LoadConfig("")
	require.NoError(t, err)

	// Env should override file
	assert.Equal(t, "env.yaml", cfg.Schema)
}

func TestLoadConfig_NestedEnvVars(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(root)
	require.NoError(t, err)

	// Set nested env vars
	t.Setenv("REBIND_SPICEDB_ENDPOINT", "envhost:50052")
	t.Setenv("REBIND_SPICEDB_TOKEN", "envtoken")

	cfg, _, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "envhost:50052", cfg.SpiceDB.Endpoint)
	assert.Equal(t, "envtoken", cfg.SpiceDB.Token)
}

func TestResolvedSchema(t *testing.T) {
	cfg := &Config{Schema: "top-level.yaml"}

	// Override takes precedence
	assert.Equal(t, "flag.yaml", cfg.ResolvedSchema("flag.yaml"))

	// Falls back to config value
	assert.Equal(t, "top-level.yaml", cfg.ResolvedSchema(""))
}
