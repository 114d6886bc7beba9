package config

import (
	_ "embed"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
)

const (
	// EnvPrefix prefixes every environment variable read as configuration
	EnvPrefix = "HOMEMIGRATE_"

	// FileName is the name of the user configuration file
	FileName = "config.toml"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, stderrors.New("not implemented")
}

// Options selects the optional configuration layers
type Options struct {
	// Path is an explicit configuration file which must exist. When empty
	// the file under the XDG config directory is used if present.
	Path string

	// Overrides are dotted keys applied last, usually from flags
	Overrides map[string]interface{}
}

// DefaultPath returns the user configuration file, honoring XDG_CONFIG_HOME
func DefaultPath() string {
	xdg.Reload()
	return filepath.Join(xdg.ConfigHome, logging.AppName, FileName)
}

// Default returns the embedded default configuration, ignoring the user
// file and the environment
func Default() *Config {
	k := koanf.New(".")
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		panic(err)
	}
	cfg, err := decode(k)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load builds the configuration from every layer in order of precedence
func Load(opts Options) (*Config, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load defaults")
	}

	// 2. User file
	path := opts.Path
	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	} else if _, err := os.Stat(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "config file %s does not exist", path).
				WithDetail("path", path)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to access config file %s", path)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load config file %s", path).
				WithDetail("path", path)
		}
		logger.Debug().Str("path", path).Msg("Loaded config file")
	}

	// 3. Env vars
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load env vars")
	}

	// 4. Overrides
	if len(opts.Overrides) > 0 {
		if err := k.Load(confmap.Provider(opts.Overrides, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load overrides")
		}
	}

	cfg, err := decode(k)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToSliceHookFunc(","),
				trimSpaceHookFunc(),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to unmarshal configuration")
	}
	return &cfg, nil
}

// envKey maps HOMEMIGRATE_SECTION_SOME_KEY to section.some_key. Only the first
// underscore separates the section since keys contain underscores
// themselves. The migratables list cannot be set from the environment.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	if key == "migratables" || strings.HasPrefix(key, "migratables.") {
		return ""
	}
	return key
}

// trimSpaceHookFunc trims strings, including the items of comma separated
// lists coming from the environment
func trimSpaceHookFunc() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data interface{}) (interface{}, error) {
		if from == reflect.String && to == reflect.String {
			return strings.TrimSpace(data.(string)), nil
		}
		return data, nil
	}
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Archive.Manifest == "" {
		return errors.New(errors.ErrConfigParse, "archive.manifest cannot be empty")
	}
	if c.Archive.FormatVersion == "" {
		return errors.New(errors.ErrConfigParse, "archive.format_version cannot be empty")
	}

	seen := make(map[string]bool, len(c.Migratables))
	for i, m := range c.Migratables {
		if m.ID == "" {
			return errors.Newf(errors.ErrConfigParse, "migratable #%d has no id", i+1)
		}
		if seen[m.ID] {
			return errors.Newf(errors.ErrConfigParse, "migratable %s is configured twice", m.ID).
				WithDetail("id", m.ID)
		}
		seen[m.ID] = true
		if m.Version == "" {
			return errors.Newf(errors.ErrConfigParse, "migratable %s has no version", m.ID).
				WithDetail("id", m.ID)
		}
	}
	return nil
}
