package syncconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/azula9713/yae-their-share/internal/models"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SPLITSYNC_"
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "SPLITSYNC_CONFIG"

	defaultRemoteURL = "http://localhost:8080"
	configFileName   = "config.yaml"
	dbFileName       = "splitsync.db"
)

// ErrUnknownKey is returned by Get and Set for keys Config does not have.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the client configuration stored at ~/.config/splitsync/config.yaml.
type Config struct {
	RemoteURL              string        `koanf:"remote_url" validate:"omitempty,url"`
	Token                  string        `koanf:"token"`
	UserID                 string        `koanf:"user_id"`
	DBPath                 string        `koanf:"db_path"`
	SyncInterval           time.Duration `koanf:"sync_interval" validate:"min=1s"`
	MaxRetries             int           `koanf:"max_retries" validate:"min=1,max=100"`
	BatchSize              int           `koanf:"batch_size" validate:"min=1,max=500"`
	ConflictPolicy         string        `koanf:"conflict_policy" validate:"oneof=server-wins client-wins manual"`
	LogLevel               string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	OperationRetentionDays int           `koanf:"operation_retention_days" validate:"min=1"`
	ProbeInterval          time.Duration `koanf:"probe_interval" validate:"min=1s"`
	BreakerFailures        int           `koanf:"breaker_failures" validate:"min=1"`
}

// Defaults returns the configuration used when neither the file nor the
// environment set a key. DBPath is left empty and resolved by DatabasePath.
func Defaults() *Config {
	return &Config{
		RemoteURL:              defaultRemoteURL,
		SyncInterval:           5 * time.Second,
		MaxRetries:             3,
		BatchSize:              10,
		ConflictPolicy:         "server-wins",
		LogLevel:               "warn",
		OperationRetentionDays: 7,
		ProbeInterval:          10 * time.Second,
		BreakerFailures:        5,
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := models.Validator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s%s", keyForField(fe.StructField()), fe.Tag(), paramSuffix(fe.Param())))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// LoggedIn reports whether a user and token are configured.
func (c *Config) LoggedIn() bool {
	return c.UserID != "" && c.Token != ""
}

// DatabasePath returns DBPath, or splitsync.db inside the config directory.
func (c *Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFileName), nil
}

// ConfigDir returns ~/.config/splitsync, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "splitsync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Path returns the config file location. SPLITSYNC_CONFIG wins over the
// default location.
func Path() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load layers struct defaults, the YAML file and SPLITSYNC_* environment
// variables, in that order, and validates the result.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := loadFileLayer(k, path); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Keys returns every settable key, sorted.
func Keys() []string {
	k := koanf.New(".")
	_ = k.Load(structs.Provider(Defaults(), "koanf"), nil)
	keys := k.Keys()
	sort.Strings(keys)
	return keys
}

// Get returns the effective value of key as a string.
func Get(cfg *Config, key string) (string, error) {
	if !knownKey(key) {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return "", err
	}
	switch v := k.Get(key).(type) {
	case time.Duration:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Set writes key=value to the config file at path. The merged result must
// validate before anything is written. An empty value removes the key so
// the default applies again.
func Set(path, key, value string) error {
	return Update(path, map[string]string{key: value})
}

// Update applies several Set operations in one write.
func Update(path string, values map[string]string) error {
	fileLayer := koanf.New(".")
	if err := loadFileLayer(fileLayer, path); err != nil {
		return err
	}
	for key, value := range values {
		if !knownKey(key) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
		if value == "" {
			fileLayer.Delete(key)
			continue
		}
		if err := fileLayer.Set(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}

	merged := koanf.New(".")
	if err := merged.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	if err := merged.Merge(fileLayer); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	cfg := &Config{}
	if err := merged.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	return writeFile(path, typedValues(cfg, fileLayer))
}

// typedValues renders the keys present in the file layer from the validated
// config, so numbers stay numbers and durations read as "5s".
func typedValues(cfg *Config, fileLayer *koanf.Koanf) map[string]any {
	typed := koanf.New(".")
	_ = typed.Load(structs.Provider(cfg, "koanf"), nil)
	out := make(map[string]any, len(fileLayer.Keys()))
	for _, key := range fileLayer.Keys() {
		v := typed.Get(key)
		if v == nil {
			v = fileLayer.Get(key)
		}
		if d, ok := v.(time.Duration); ok {
			v = d.String()
		}
		out[key] = v
	}
	return out
}

func loadFileLayer(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat config %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return nil
}

// writeFile replaces path atomically. The file may hold a token, so it is
// written owner-only.
func writeFile(path string, values map[string]any) error {
	data, err := yamlv3.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// envTransformFunc maps SPLITSYNC_SYNC_INTERVAL to sync_interval. Variables
// that do not name a config key are dropped.
func envTransformFunc(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if !knownKey(key) {
		return ""
	}
	return key
}

func knownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

func keyForField(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := field[i-1]
			if prev < 'A' || prev > 'Z' || (i+1 < len(field) && field[i+1] >= 'a' && field[i+1] <= 'z') {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
