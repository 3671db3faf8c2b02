package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config stores runtime configuration for the desktop app and the backend.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Tencent   TencentConfig   `mapstructure:"tencent"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Polish    PolishConfig    `mapstructure:"polish"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Session   SessionConfig   `mapstructure:"session"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
}

// BackendConfig points the desktop app at a signing/polishing backend. When
// URL is empty the app signs and polishes with local credentials.
type BackendConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type TencentConfig struct {
	AppID           string        `mapstructure:"app_id"`
	SecretID        string        `mapstructure:"secret_id"`
	SecretKey       string        `mapstructure:"secret_key"`
	EngineModelType string        `mapstructure:"engine_model_type"`
	Host            string        `mapstructure:"host"`
	URLTTL          time.Duration `mapstructure:"url_ttl"`
}

type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type PolishConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AudioConfig struct {
	Backend       string `mapstructure:"backend"`
	FFMPEGCommand string `mapstructure:"ffmpeg_command"`
	InputFormat   string `mapstructure:"input_format"`
	InputDevice   string `mapstructure:"input_device"`
	FrameSize     int    `mapstructure:"frame_size"`
	RecordDir     string `mapstructure:"record_dir"`
}

type SessionConfig struct {
	MaxDuration  time.Duration `mapstructure:"max_duration"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	FrameQueue   int           `mapstructure:"frame_queue"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TelemetryConfig struct {
	PrometheusBind string `mapstructure:"prometheus_bind"`
}

type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Bind         string `mapstructure:"bind"`
	MasterAPIKey string `mapstructure:"master_api_key"`
}

// numeric settings fall back to their default when the configured value
// does not parse.
var (
	intDefaults = map[string]int{
		"llm.max_tokens":      4096,
		"audio.frame_size":    1024,
		"session.frame_queue": 64,
	}
	floatDefaults = map[string]float64{
		"llm.temperature": 0.3,
	}
	durationDefaults = map[string]time.Duration{
		"tencent.url_ttl":       24 * time.Hour,
		"llm.timeout":           60 * time.Second,
		"session.max_duration":  10 * time.Minute,
		"session.tick_interval": 100 * time.Millisecond,
		"session.drain_timeout": 5 * time.Second,
	}
)

// Load resolves configuration from defaults, an optional config file and
// environment variables. An empty path searches the user config directory
// and the working directory for vocalwrite.{yaml,toml,json}.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.master_api_key", "MASTER_API_KEY", "SERVER_MASTER_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("vocalwrite")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "vocalwrite"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	sanitizeNumbers(v)

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.api_key", "")

	v.SetDefault("tencent.app_id", "")
	v.SetDefault("tencent.secret_id", "")
	v.SetDefault("tencent.secret_key", "")
	v.SetDefault("tencent.engine_model_type", "16k_zh")
	v.SetDefault("tencent.host", "asr.cloud.tencent.com")

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("llm.model", "THUDM/GLM-4-32B-0414")

	v.SetDefault("polish.enabled", true)

	v.SetDefault("audio.backend", "ffmpeg")
	v.SetDefault("audio.ffmpeg_command", "ffmpeg")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.record_dir", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", defaultHistoryPath())

	v.SetDefault("telemetry.prometheus_bind", "")
	v.SetDefault("notify.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("server.bind", ":3000")
	v.SetDefault("server.master_api_key", "")

	for key, value := range intDefaults {
		v.SetDefault(key, value)
	}
	for key, value := range floatDefaults {
		v.SetDefault(key, value)
	}
	for key, value := range durationDefaults {
		v.SetDefault(key, value)
	}
}

func sanitizeNumbers(v *viper.Viper) {
	for key, fallback := range intDefaults {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err != nil || parsed <= 0 {
			v.Set(key, fallback)
		}
	}
	for key, fallback := range floatDefaults {
		if _, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64); err != nil {
			v.Set(key, fallback)
		}
	}
	for key, fallback := range durationDefaults {
		if parsed, ok := parseDuration(v.Get(key)); !ok || parsed <= 0 {
			v.Set(key, fallback)
		} else {
			v.Set(key, parsed)
		}
	}
}

// parseDuration accepts Go duration strings, time.Duration values and bare
// integers, which are read as milliseconds.
func parseDuration(value any) (time.Duration, bool) {
	switch typed := value.(type) {
	case time.Duration:
		return typed, true
	case int:
		return time.Duration(typed) * time.Millisecond, true
	case int64:
		return time.Duration(typed) * time.Millisecond, true
	case float64:
		return time.Duration(typed) * time.Millisecond, true
	case string:
		trimmed := strings.TrimSpace(typed)
		if ms, err := strconv.Atoi(trimmed); err == nil {
			return time.Duration(ms) * time.Millisecond, true
		}
		parsed, err := time.ParseDuration(trimmed)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func normalize(cfg *Config) {
	cfg.Backend.URL = strings.TrimRight(strings.TrimSpace(cfg.Backend.URL), "/")
	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "ffmpeg"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "vocalwrite-history.db"
	}
	return filepath.Join(dir, "vocalwrite", "history.db")
}
