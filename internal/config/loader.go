package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PASTEUP_ENDPOINT_URL.
const EnvPrefix = "PASTEUP_"

// EnvLookup resolves environment variables.
type EnvLookup func(string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Option customises configuration loading.
type Option func(*loadOptions)

type loadOptions struct {
	configPath string
	envLookup  EnvLookup
	homeDir    func() (string, error)
}

// WithConfigPath forces the loader to read configuration from the provided path.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithHomeDir overrides the home directory resolver.
func WithHomeDir(fn func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = fn
	}
}

func resolveOptions(opts []Option) loadOptions {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.envLookup == nil {
		options.envLookup = func(string) (string, bool) { return "", false }
	}
	if options.homeDir == nil {
		options.homeDir = os.UserHomeDir
	}
	return options
}

// ResolvePath returns the configuration file path the loader would read.
func ResolvePath(opts ...Option) (string, error) {
	options := resolveOptions(opts)
	return options.path()
}

func (o loadOptions) path() (string, error) {
	if path := strings.TrimSpace(o.configPath); path != "" {
		return expandHome(path, o.homeDir)
	}
	if value, ok := o.envLookup(EnvPrefix + "CONFIG"); ok && strings.TrimSpace(value) != "" {
		return expandHome(strings.TrimSpace(value), o.homeDir)
	}
	home, err := o.homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".pasteup", "config.yaml"), nil
}

// Load reads defaults, then the YAML file when present, then PASTEUP_*
// environment overrides.
func Load(opts ...Option) (UploadConfig, error) {
	options := resolveOptions(opts)
	path, err := options.path()
	if err != nil {
		return UploadConfig{}, err
	}

	v := newViper()
	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return UploadConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return UploadConfig{}, fmt.Errorf("stat config %s: %w", path, statErr)
	}

	for _, key := range Keys() {
		if value, ok := options.envLookup(EnvPrefix + strings.ToUpper(key)); ok {
			v.Set(key, envValue(key, value))
		}
	}

	var cfg UploadConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return UploadConfig{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.VaultDir, err = expandHome(cfg.VaultDir, options.homeDir)
	if err != nil {
		return UploadConfig{}, err
	}
	normalize(&cfg)
	return cfg, nil
}

// Keys lists every recognised configuration key in file order.
func Keys() []string {
	keys := make([]string, 0, len(defaultValues()))
	for _, entry := range defaultValues() {
		keys = append(keys, entry.key)
	}
	return keys
}

type keyDefault struct {
	key   string
	value any
}

func defaultValues() []keyDefault {
	d := Defaults()
	return []keyDefault{
		{KeyEndpointURL, d.EndpointURL},
		{KeyCredentialMode, string(d.CredentialMode)},
		{KeyAccessToken, d.AccessToken},
		{KeyAccountID, d.AccountID},
		{KeyRepository, d.Repository},
		{KeyRemainingUploads, d.RemainingUploads},
		{KeyInterceptOnPaste, d.InterceptOnPaste},
		{KeyInterceptOnDrop, d.InterceptOnDrop},
		{KeyShowProgress, d.ShowProgress},
		{KeyFallbackOnFailure, d.FallbackOnFailure},
		{KeyDropPolicy, string(d.DropPolicy)},
		{"vault_dir", d.VaultDir},
		{"attachment_folder", d.AttachmentFolder},
		{"public_base_url", d.PublicBaseURL},
		{"upload_timeout_seconds", d.UploadTimeoutSeconds},
		{"max_response_bytes", d.MaxResponseBytes},
		{"id_strategy", d.IDStrategy},
		{"log_level", d.LogLevel},
		{"log_format", d.LogFormat},
		{"metrics_enabled", d.MetricsEnabled},
		{"tracing_enabled", d.TracingEnabled},
		{"tracing_exporter", d.TracingExporter},
		{"otlp_endpoint", d.OTLPEndpoint},
		{"zipkin_endpoint", d.ZipkinEndpoint},
		{"tracing_sample_rate", d.TracingSampleRate},
		{"server_host", d.ServerHost},
		{"server_port", d.ServerPort},
		{"allowed_origins", d.AllowedOrigins},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for _, entry := range defaultValues() {
		v.SetDefault(entry.key, entry.value)
	}
	return v
}

// IsKnownKey reports whether key names a configuration field.
func IsKnownKey(key string) bool {
	for _, known := range Keys() {
		if known == key {
			return true
		}
	}
	return false
}

func envValue(key, raw string) any {
	if key == "allowed_origins" {
		return splitList(raw)
	}
	return strings.TrimSpace(raw)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func expandHome(path string, homeDir func() (string, error)) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
