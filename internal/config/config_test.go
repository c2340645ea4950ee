package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(WithConfigPath(filepath.Join(dir, "missing.yaml")), WithEnv(noEnv))
	require.NoError(t, err)

	assert.Equal(t, ModeNone, cfg.CredentialMode)
	assert.True(t, cfg.InterceptOnPaste)
	assert.True(t, cfg.InterceptOnDrop)
	assert.True(t, cfg.ShowProgress)
	assert.True(t, cfg.FallbackOnFailure)
	assert.Equal(t, DropFirst, cfg.DropPolicy)
	assert.Equal(t, 60, cfg.UploadTimeoutSeconds)
	assert.Equal(t, int64(1<<20), cfg.MaxResponseBytes)
	assert.Equal(t, []string{KeyEndpointURL}, cfg.MissingFields())
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint_url: https://img.example/upload
credential_mode: repository
access_token: from-file
account_id: alice
show_progress: false
`), 0o600))

	cfg, err := Load(WithConfigPath(path), WithEnv(envMap(map[string]string{
		"PASTEUP_ACCESS_TOKEN":        "from-env",
		"PASTEUP_FALLBACK_ON_FAILURE": "false",
		"PASTEUP_ALLOWED_ORIGINS":     "app://a, http://b",
	})))
	require.NoError(t, err)

	assert.Equal(t, "https://img.example/upload", cfg.EndpointURL)
	assert.Equal(t, ModeRepository, cfg.CredentialMode)
	assert.Equal(t, "from-env", cfg.AccessToken)
	assert.False(t, cfg.ShowProgress)
	assert.False(t, cfg.FallbackOnFailure)
	assert.Equal(t, []string{"app://a", "http://b"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"repository"}, cfg.MissingFields())
}

func TestLoadExpandsHomeInVaultDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(
		WithConfigPath(filepath.Join(dir, "none.yaml")),
		WithEnv(envMap(map[string]string{"PASTEUP_VAULT_DIR": "~/vault"})),
		WithHomeDir(func() (string, error) { return "/home/test", nil }),
	)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/test", "vault"), cfg.VaultDir)
}

func TestDefaultPathUnderHome(t *testing.T) {
	path, err := ResolvePath(WithEnv(noEnv), WithHomeDir(func() (string, error) { return "/home/test", nil }))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/test", ".pasteup", "config.yaml"), path)
}

func TestMissingFieldsPerMode(t *testing.T) {
	cfg := Defaults()
	cfg.EndpointURL = "https://img.example"

	cfg.CredentialMode = ModeNone
	assert.Empty(t, cfg.MissingFields())

	cfg.CredentialMode = ModeToken
	assert.Equal(t, []string{KeyAccessToken}, cfg.MissingFields())

	cfg.CredentialMode = ModeCredits
	cfg.AccessToken = "  "
	assert.Equal(t, []string{KeyAccessToken}, cfg.MissingFields())

	cfg.CredentialMode = ModeRepository
	cfg.AccessToken = "tok"
	assert.Equal(t, []string{KeyAccountID, KeyRepository}, cfg.MissingFields())
}

func TestSaveFieldsPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("custom_theme: dark\nremaining_uploads: 5\n"), 0o600))

	store := NewFileStore(WithConfigPath(path), WithEnv(noEnv))
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RemainingUploads)

	require.NoError(t, store.SaveFields(map[string]any{KeyRemainingUploads: cfg.RemainingUploads - 1}))
	require.Error(t, store.SaveFields(map[string]any{"nope": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "custom_theme: dark")

	reloaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.RemainingUploads)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveFieldsKeepsEnvironmentValuesOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint_url: https://img.example/upload\ncredential_mode: credits\nremaining_uploads: 3\n"), 0o600))
	env := func(key string) (string, bool) {
		switch key {
		case "PASTEUP_ACCESS_TOKEN":
			return "env-secret-token-123", true
		case "PASTEUP_VAULT_DIR":
			return "/tmp/other-vault", true
		}
		return "", false
	}
	store := NewFileStore(WithConfigPath(path), WithEnv(env))

	cfg, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "env-secret-token-123", cfg.AccessToken)
	require.NoError(t, store.SaveFields(map[string]any{KeyRemainingUploads: cfg.RemainingUploads - 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "env-secret-token-123")
	assert.NotContains(t, string(data), "vault_dir")
	assert.NotContains(t, string(data), "upload_timeout_seconds")
	assert.Contains(t, string(data), "remaining_uploads: 2")
}

func TestWithFieldsAppliesFileKeys(t *testing.T) {
	cfg := Defaults()
	cfg.AccessToken = "tok"

	updated, err := cfg.WithFields(map[string]any{KeyRemainingUploads: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.RemainingUploads)
	assert.Equal(t, "tok", updated.AccessToken)

	_, err = cfg.WithFields(map[string]any{"nope": true})
	assert.Error(t, err)
}

func TestSetValidatesKeysAndValues(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(WithConfigPath(filepath.Join(dir, "config.yaml")), WithEnv(noEnv))

	require.Error(t, store.Set("nope", "1"))
	require.Error(t, store.Set(KeyShowProgress, "maybe"))
	require.Error(t, store.Set(KeyCredentialMode, "oauth"))

	require.NoError(t, store.Set(KeyCredentialMode, "Credits"))
	require.NoError(t, store.Set(KeyRemainingUploads, "12"))
	require.NoError(t, store.Set(KeyDropPolicy, "all"))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ModeCredits, cfg.CredentialMode)
	assert.Equal(t, 12, cfg.RemainingUploads)
	assert.Equal(t, DropAll, cfg.DropPolicy)
	assert.True(t, cfg.TracksCredits())
}

func TestRedactedHidesToken(t *testing.T) {
	cfg := Defaults()
	cfg.AccessToken = "abcd1234efgh5678"
	assert.Equal(t, "abcd...5678", cfg.Redacted().AccessToken)
	cfg.AccessToken = "short"
	assert.Equal(t, "***", cfg.Redacted().AccessToken)
}
