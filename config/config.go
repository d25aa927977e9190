// Package config loads aura's settings from an optional aura.yaml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "AURA"

// Cache and data backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"

	DataSupabase = "supabase"
	DataPostgres = "postgres"
)

type Config struct {
	Supabase   SupabaseConfig   `mapstructure:"supabase"`
	Database   DatabaseConfig   `mapstructure:"database"`
	ContentAPI ContentAPIConfig `mapstructure:"content_api"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Server     ServerConfig     `mapstructure:"server"`
	Session    SessionConfig    `mapstructure:"session"`
	Log        LogConfig        `mapstructure:"log"`
	Data       DataConfig       `mapstructure:"data"`
}

type SupabaseConfig struct {
	URL       string `mapstructure:"url"`
	AnonKey   string `mapstructure:"anon_key"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type ContentAPIConfig struct {
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// Path is the sqlite file used by the sqlite backend.
	Path string `mapstructure:"path"`
	// EntryTTL expires persisted query entries; zero keeps them forever.
	EntryTTL time.Duration `mapstructure:"entry_ttl"`
	// Codec encodes persisted entries: json or cbor.
	Codec string `mapstructure:"codec"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must outlast content generation, which waits on the
	// content API.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimit    string        `mapstructure:"body_limit"`
}

type SessionConfig struct {
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives a JSON copy of every log record.
	File string `mapstructure:"file"`
}

type DataConfig struct {
	Backend string `mapstructure:"backend"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{MaxOpenConns: 10},
		ContentAPI: ContentAPIConfig{
			URL:           "http://127.0.0.1:8000",
			Timeout:       2 * time.Minute,
			RatePerSecond: 2,
			Burst:         4,
		},
		Cache:   CacheConfig{Backend: CacheSQLite, Path: defaultCachePath(), Codec: "json"},
		Redis:   RedisConfig{Addr: "127.0.0.1:6379"},
		Server: ServerConfig{
			Address:        "127.0.0.1:8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   3 * time.Minute,
			BodyLimit:      "4M",
		},
		Session: SessionConfig{ResolveTimeout: 10 * time.Second},
		Log:     LogConfig{Level: "info"},
		Data:    DataConfig{Backend: DataSupabase},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "aura-cache.db"
	}
	return filepath.Join(dir, "aura", "cache.db")
}

// Load reads configuration from file and environment variables.
// Environment variables use the prefix "AURA" and the dot character in keys
// is replaced by an underscore, so "supabase.anon_key" becomes
// "AURA_SUPABASE_ANON_KEY". When file is empty an aura.yaml in the working
// directory or in $HOME/.config/aura is used if present.
func Load(file string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("aura")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "aura"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	case CacheSQLite:
		if c.Cache.Path == "" {
			return errors.New("config: cache.path is required for the sqlite cache")
		}
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	switch c.Data.Backend {
	case DataSupabase, DataPostgres:
	default:
		return fmt.Errorf("config: unknown data.backend %q", c.Data.Backend)
	}
	switch c.Cache.Codec {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("config: unknown cache.codec %q", c.Cache.Codec)
	}
	if c.Cache.EntryTTL < 0 {
		return errors.New("config: cache.entry_ttl must not be negative")
	}
	if c.Server.BodyLimit == "" {
		return errors.New("config: server.body_limit is required")
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("config: server timeouts must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses Level; an empty level is info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}
