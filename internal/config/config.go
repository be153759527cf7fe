package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jcdickinson/ferrisindex/internal/query"
)

// SourceList is a list of index or shard locations. In config files it may
// be written as a list or as a single comma-separated string, which is also
// the form environment variables take.
type SourceList []string

type SearchConfig struct {
	MaxEditDistance   int     `mapstructure:"max_edit_distance"`
	EditLengthDivisor int     `mapstructure:"edit_length_divisor"`
	DefaultLimit      int     `mapstructure:"default_limit"`
	ExactWeight       float64 `mapstructure:"exact_weight"`
	PrefixWeight      float64 `mapstructure:"prefix_weight"`
	SubstringWeight   float64 `mapstructure:"substring_weight"`
	FuzzyWeight       float64 `mapstructure:"fuzzy_weight"`
	TypeWeight        float64 `mapstructure:"type_weight"`
	GenericPenalty    float64 `mapstructure:"generic_penalty"`
	ExtraInputPenalty float64 `mapstructure:"extra_input_penalty"`
}

// Options converts the search section into engine options.
func (s SearchConfig) Options() query.Options {
	return query.Options{
		MaxEditDistance:   s.MaxEditDistance,
		EditLengthDivisor: s.EditLengthDivisor,
		DefaultLimit:      s.DefaultLimit,
		ExactWeight:       s.ExactWeight,
		PrefixWeight:      s.PrefixWeight,
		SubstringWeight:   s.SubstringWeight,
		FuzzyWeight:       s.FuzzyWeight,
		TypeWeight:        s.TypeWeight,
		GenericPenalty:    s.GenericPenalty,
		ExtraInputPenalty: s.ExtraInputPenalty,
	}
}

type DaemonConfig struct {
	ExpirationSeconds int `mapstructure:"expiration_seconds"`
	QueryCacheSize    int `mapstructure:"query_cache_size"`
}

type SourcesConfig struct {
	// Indexes are search-index files or URLs loaded at daemon start.
	Indexes SourceList `mapstructure:"indexes"`
	// Shards are implementor shard files or directories.
	Shards SourceList `mapstructure:"shards"`
	// Watch keeps shard directories under fsnotify watch.
	Watch bool `mapstructure:"watch"`
}

type Config struct {
	Search  SearchConfig  `mapstructure:"search"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Sources SourcesConfig `mapstructure:"sources"`
}

// cacheBase returns the base cache directory for ferrisindex.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/ferrisindex as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "ferrisindex")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "ferrisindex")
	}
	return filepath.Join(os.TempDir(), "ferrisindex")
}

// CacheDir returns the directory holding fetched index and shard files.
func CacheDir() string {
	return filepath.Join(cacheBase(), "fetched")
}

// LogPath returns the path to the daemon's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "daemon.log")
}

// SocketPath returns the path to the daemon's unix socket.
func SocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "ferrisindex", "daemon.sock")
	}
	return filepath.Join(fmt.Sprintf("/run/user/%d", os.Getuid()), "ferrisindex", "daemon.sock")
}

func InitializeViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		viper.AddConfigPath(filepath.Join(xdg, "ferrisindex"))
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "ferrisindex"))
	}

	setDefaults(viper.GetViper())

	viper.SetEnvPrefix("FERRISINDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := query.DefaultOptions()
	v.SetDefault("search.max_edit_distance", d.MaxEditDistance)
	v.SetDefault("search.edit_length_divisor", d.EditLengthDivisor)
	v.SetDefault("search.default_limit", d.DefaultLimit)
	v.SetDefault("search.exact_weight", d.ExactWeight)
	v.SetDefault("search.prefix_weight", d.PrefixWeight)
	v.SetDefault("search.substring_weight", d.SubstringWeight)
	v.SetDefault("search.fuzzy_weight", d.FuzzyWeight)
	v.SetDefault("search.type_weight", d.TypeWeight)
	v.SetDefault("search.generic_penalty", d.GenericPenalty)
	v.SetDefault("search.extra_input_penalty", d.ExtraInputPenalty)
	v.SetDefault("daemon.expiration_seconds", 600)
	v.SetDefault("daemon.query_cache_size", 256)
	v.SetDefault("sources.indexes", []string{})
	v.SetDefault("sources.shards", []string{})
	v.SetDefault("sources.watch", false)
}

func stringToSourceListHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(SourceList{}) || f.Kind() != reflect.String {
			return data, nil
		}
		var out SourceList
		for _, s := range strings.Split(data.(string), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
}

func Load() (*Config, error) {
	if err := InitializeViper(); err != nil {
		return nil, err
	}
	return decode(viper.AllSettings())
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v.AllSettings())
	if err != nil {
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return cfg
}

func decode(settings map[string]interface{}) (*Config, error) {
	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       stringToSourceListHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Search.Options().Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}

	config.Sources.Indexes = expandHome(config.Sources.Indexes)
	config.Sources.Shards = expandHome(config.Sources.Shards)
	return &config, nil
}

func expandHome(sources SourceList) SourceList {
	home, err := os.UserHomeDir()
	if err != nil {
		return sources
	}
	out := make(SourceList, len(sources))
	for i, s := range sources {
		if strings.HasPrefix(s, "~/") {
			s = filepath.Join(home, s[2:])
		}
		out[i] = s
	}
	return out
}
