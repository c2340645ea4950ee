package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store loads the upload configuration and persists individual keys.
// SaveFields writes only the given keys so values that came from defaults or
// the environment stay out of the file.
type Store interface {
	Load() (UploadConfig, error)
	SaveFields(values map[string]any) error
}

// FileStore persists configuration in a YAML file. Keys it does not know
// about are preserved on save.
type FileStore struct {
	mu   sync.Mutex
	opts []Option
}

// NewFileStore returns a store reading and writing the resolved config path.
func NewFileStore(opts ...Option) *FileStore {
	return &FileStore{opts: opts}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() (string, error) {
	return ResolvePath(s.opts...)
}

// Load reads the configuration including environment overrides.
func (s *FileStore) Load() (UploadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Load(s.opts...)
}

// SaveFields merges values into the config file. Unknown keys are rejected.
func (s *FileStore) SaveFields(values map[string]any) error {
	for key := range values {
		if !IsKnownKey(key) {
			return fmt.Errorf("unknown config key %q", key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.Path()
	if err != nil {
		return err
	}
	return mergeAndWrite(path, values)
}

// Set stores a single key given as text, as used by `pasteup config set`.
func (s *FileStore) Set(key, raw string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	value, err := parseValue(key, raw)
	if err != nil {
		return err
	}
	return s.SaveFields(map[string]any{key: value})
}

func mergeAndWrite(path string, values map[string]any) error {
	existing, err := readFileMap(path)
	if err != nil {
		return err
	}
	for key, value := range values {
		existing[key] = value
	}
	data, err := yaml.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func readFileMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	values := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return values, nil
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return values, nil
}

func parseValue(key, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch key {
	case KeyInterceptOnPaste, KeyInterceptOnDrop, KeyShowProgress, KeyFallbackOnFailure,
		"metrics_enabled", "tracing_enabled":
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false: %w", key, err)
		}
		return parsed, nil
	case KeyRemainingUploads, "upload_timeout_seconds", "server_port":
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer: %w", key, err)
		}
		return parsed, nil
	case "max_response_bytes":
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer: %w", key, err)
		}
		return parsed, nil
	case "tracing_sample_rate":
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number: %w", key, err)
		}
		return parsed, nil
	case KeyCredentialMode:
		switch mode := CredentialMode(strings.ToLower(raw)); mode {
		case ModeNone, ModeToken, ModeRepository, ModeCredits:
			return string(mode), nil
		}
		return nil, fmt.Errorf("credential_mode must be one of none, token, repository, credits")
	case KeyDropPolicy:
		switch policy := DropPolicy(strings.ToLower(raw)); policy {
		case DropFirst, DropAll:
			return string(policy), nil
		}
		return nil, fmt.Errorf("drop_policy must be first or all")
	case "allowed_origins":
		return splitList(raw), nil
	default:
		return raw, nil
	}
}

// WithFields returns a copy of c with values applied by their file keys.
func (c UploadConfig) WithFields(values map[string]any) (UploadConfig, error) {
	encoded, err := yaml.Marshal(c)
	if err != nil {
		return c, fmt.Errorf("encode config: %w", err)
	}
	merged := map[string]any{}
	if err := yaml.Unmarshal(encoded, &merged); err != nil {
		return c, fmt.Errorf("encode config: %w", err)
	}
	for key, value := range values {
		if !IsKnownKey(key) {
			return c, fmt.Errorf("unknown config key %q", key)
		}
		merged[key] = value
	}
	encoded, err = yaml.Marshal(merged)
	if err != nil {
		return c, fmt.Errorf("encode config: %w", err)
	}
	var out UploadConfig
	if err := yaml.Unmarshal(encoded, &out); err != nil {
		return c, fmt.Errorf("apply config fields: %w", err)
	}
	return out, nil
}

// Redacted returns a copy safe for display.
func (c UploadConfig) Redacted() UploadConfig {
	if c.AccessToken != "" {
		c.AccessToken = redact(c.AccessToken)
	}
	return c
}

func redact(secret string) string {
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
