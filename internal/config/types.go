package config

import (
	"strings"
	"time"
)

// CredentialMode selects which credential fields an endpoint requires.
type CredentialMode string

const (
	// ModeNone posts only the image.
	ModeNone CredentialMode = "none"
	// ModeToken adds an access token.
	ModeToken CredentialMode = "token"
	// ModeRepository adds an access token, account and target repository.
	ModeRepository CredentialMode = "repository"
	// ModeCredits adds an access token and tracks a remaining-uploads counter.
	ModeCredits CredentialMode = "credits"
)

// DropPolicy decides how many images of a multi-file drop are uploaded.
type DropPolicy string

const (
	// DropFirst uploads only the first image file of a drop.
	DropFirst DropPolicy = "first"
	// DropAll uploads every image file of a drop, one after another.
	DropAll DropPolicy = "all"
)

// Configuration keys as they appear in the YAML file.
const (
	KeyEndpointURL       = "endpoint_url"
	KeyCredentialMode    = "credential_mode"
	KeyAccessToken       = "access_token"
	KeyAccountID         = "account_id"
	KeyRepository        = "repository"
	KeyRemainingUploads  = "remaining_uploads"
	KeyInterceptOnPaste  = "intercept_on_paste"
	KeyInterceptOnDrop   = "intercept_on_drop"
	KeyShowProgress      = "show_progress"
	KeyFallbackOnFailure = "fallback_on_failure"
	KeyDropPolicy        = "drop_policy"
)

// UploadConfig is the flat configuration read by the upload core. The core
// never mutates it except through Store.Save after a successful credits upload.
type UploadConfig struct {
	EndpointURL      string         `mapstructure:"endpoint_url" yaml:"endpoint_url"`
	CredentialMode   CredentialMode `mapstructure:"credential_mode" yaml:"credential_mode"`
	AccessToken      string         `mapstructure:"access_token" yaml:"access_token"`
	AccountID        string         `mapstructure:"account_id" yaml:"account_id"`
	Repository       string         `mapstructure:"repository" yaml:"repository"`
	RemainingUploads int            `mapstructure:"remaining_uploads" yaml:"remaining_uploads"`

	InterceptOnPaste  bool       `mapstructure:"intercept_on_paste" yaml:"intercept_on_paste"`
	InterceptOnDrop   bool       `mapstructure:"intercept_on_drop" yaml:"intercept_on_drop"`
	ShowProgress      bool       `mapstructure:"show_progress" yaml:"show_progress"`
	FallbackOnFailure bool       `mapstructure:"fallback_on_failure" yaml:"fallback_on_failure"`
	DropPolicy        DropPolicy `mapstructure:"drop_policy" yaml:"drop_policy"`

	VaultDir             string `mapstructure:"vault_dir" yaml:"vault_dir"`
	AttachmentFolder     string `mapstructure:"attachment_folder" yaml:"attachment_folder"`
	PublicBaseURL        string `mapstructure:"public_base_url" yaml:"public_base_url"`
	UploadTimeoutSeconds int    `mapstructure:"upload_timeout_seconds" yaml:"upload_timeout_seconds"`
	MaxResponseBytes     int64  `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	IDStrategy           string `mapstructure:"id_strategy" yaml:"id_strategy"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	MetricsEnabled    bool    `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingExporter   string  `mapstructure:"tracing_exporter" yaml:"tracing_exporter"`
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ZipkinEndpoint    string  `mapstructure:"zipkin_endpoint" yaml:"zipkin_endpoint"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`

	ServerHost     string   `mapstructure:"server_host" yaml:"server_host"`
	ServerPort     int      `mapstructure:"server_port" yaml:"server_port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default values.
const (
	DefaultUploadTimeoutSeconds = 60
	DefaultMaxResponseBytes     = 1 << 20
	DefaultServerHost           = "127.0.0.1"
	DefaultServerPort           = 27124
	DefaultAttachmentFolder     = "attachments"
)

// Defaults returns the configuration used for every key missing from the file.
func Defaults() UploadConfig {
	return UploadConfig{
		CredentialMode:       ModeNone,
		InterceptOnPaste:     true,
		InterceptOnDrop:      true,
		ShowProgress:         true,
		FallbackOnFailure:    true,
		DropPolicy:           DropFirst,
		VaultDir:             "~/Notes",
		AttachmentFolder:     DefaultAttachmentFolder,
		UploadTimeoutSeconds: DefaultUploadTimeoutSeconds,
		MaxResponseBytes:     DefaultMaxResponseBytes,
		IDStrategy:           "ksuid",
		LogLevel:             "info",
		LogFormat:            "text",
		MetricsEnabled:       true,
		TracingExporter:      "otlp",
		OTLPEndpoint:         "localhost:4318",
		ZipkinEndpoint:       "http://localhost:9411/api/v2/spans",
		TracingSampleRate:    1.0,
		ServerHost:           DefaultServerHost,
		ServerPort:           DefaultServerPort,
		AllowedOrigins:       []string{"app://obsidian.md", "http://localhost"},
	}
}

// UploadTimeout returns the transport timeout for one upload request.
func (c UploadConfig) UploadTimeout() time.Duration {
	if c.UploadTimeoutSeconds <= 0 {
		return DefaultUploadTimeoutSeconds * time.Second
	}
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

// RequiredFields lists the keys that must be non-empty for the credential mode.
func (c UploadConfig) RequiredFields() []string {
	switch c.CredentialMode {
	case ModeToken, ModeCredits:
		return []string{KeyEndpointURL, KeyAccessToken}
	case ModeRepository:
		return []string{KeyEndpointURL, KeyAccessToken, KeyAccountID, KeyRepository}
	default:
		return []string{KeyEndpointURL}
	}
}

// MissingFields returns the required keys whose values are empty.
func (c UploadConfig) MissingFields() []string {
	var missing []string
	for _, key := range c.RequiredFields() {
		if strings.TrimSpace(c.value(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// TracksCredits reports whether successful uploads consume a credit.
func (c UploadConfig) TracksCredits() bool {
	return c.CredentialMode == ModeCredits
}

func (c UploadConfig) value(key string) string {
	switch key {
	case KeyEndpointURL:
		return c.EndpointURL
	case KeyAccessToken:
		return c.AccessToken
	case KeyAccountID:
		return c.AccountID
	case KeyRepository:
		return c.Repository
	default:
		return ""
	}
}

func normalize(cfg *UploadConfig) {
	cfg.EndpointURL = strings.TrimSpace(cfg.EndpointURL)
	cfg.AccessToken = strings.TrimSpace(cfg.AccessToken)
	cfg.AccountID = strings.TrimSpace(cfg.AccountID)
	cfg.Repository = strings.TrimSpace(cfg.Repository)
	cfg.VaultDir = strings.TrimSpace(cfg.VaultDir)
	cfg.AttachmentFolder = strings.TrimSpace(cfg.AttachmentFolder)
	cfg.PublicBaseURL = strings.TrimSpace(cfg.PublicBaseURL)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.TracingExporter = strings.ToLower(strings.TrimSpace(cfg.TracingExporter))

	switch mode := CredentialMode(strings.ToLower(strings.TrimSpace(string(cfg.CredentialMode)))); mode {
	case ModeToken, ModeRepository, ModeCredits:
		cfg.CredentialMode = mode
	default:
		cfg.CredentialMode = ModeNone
	}
	switch policy := DropPolicy(strings.ToLower(strings.TrimSpace(string(cfg.DropPolicy)))); policy {
	case DropAll:
		cfg.DropPolicy = DropAll
	default:
		cfg.DropPolicy = DropFirst
	}

	if cfg.RemainingUploads < 0 {
		cfg.RemainingUploads = 0
	}
	if cfg.UploadTimeoutSeconds <= 0 {
		cfg.UploadTimeoutSeconds = DefaultUploadTimeoutSeconds
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.ServerPort <= 0 {
		cfg.ServerPort = DefaultServerPort
	}
	if strings.TrimSpace(cfg.ServerHost) == "" {
		cfg.ServerHost = DefaultServerHost
	}
	if cfg.TracingSampleRate <= 0 || cfg.TracingSampleRate > 1 {
		cfg.TracingSampleRate = 1
	}
}
