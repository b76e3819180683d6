// Package config loads bandcoach settings from a YAML file and BANDCOACH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/bandcoach/bandcoach/internal/audio"
	"github.com/bandcoach/bandcoach/internal/llm"
	"github.com/bandcoach/bandcoach/internal/logging"
	"github.com/bandcoach/bandcoach/internal/skill"
	"github.com/bandcoach/bandcoach/internal/store"
	"github.com/bandcoach/bandcoach/internal/telegram"
	"github.com/bandcoach/bandcoach/internal/tutor"
)

// EnvPrefix prefixes every environment override, e.g.
// BANDCOACH_TELEGRAM_TOKEN for telegram.token.
const EnvPrefix = "BANDCOACH"

// Config is the full application configuration.
type Config struct {
	Telegram  telegram.Config     `mapstructure:"telegram"`
	HTTP      HTTPConfig          `mapstructure:"http"`
	Database  store.Config        `mapstructure:"database"`
	Content   ContentConfig       `mapstructure:"content"`
	LLM       llm.Config          `mapstructure:"llm"`
	Speech    SpeechConfig        `mapstructure:"speech"`
	Storage   audio.StorageConfig `mapstructure:"storage"`
	Log       logging.Config      `mapstructure:"log"`
	Skill     SkillConfig         `mapstructure:"skill"`
	RateLimit RateLimitConfig     `mapstructure:"ratelimit"`
	Practice  PracticeConfig      `mapstructure:"practice"`
}

// HTTPConfig configures the webhook, health and metrics listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ContentConfig points at the exercise dataset. An empty Dir uses the
// dataset built into the binary.
type ContentConfig struct {
	Dir string `mapstructure:"dir"`
}

// SpeechConfig configures voice-note transcription.
type SpeechConfig struct {
	Transcribe llm.TranscribeConfig `mapstructure:"transcribe"`
	// FFmpeg disables conversion when false; voice notes are then sent
	// to the transcriber as recorded.
	FFmpeg     bool   `mapstructure:"ffmpeg"`
	SampleRate int    `mapstructure:"sample_rate"`
	Bitrate    string `mapstructure:"bitrate"`
	TempDir    string `mapstructure:"temp_dir"`
}

// SkillConfig holds the level thresholds.
type SkillConfig struct {
	Thresholds skill.Table `mapstructure:"thresholds"`
}

// RateLimitConfig bounds inbound updates per learner.
type RateLimitConfig struct {
	PerSecond float64       `mapstructure:"per_second"`
	Burst     int           `mapstructure:"burst"`
	IdleTTL   time.Duration `mapstructure:"idle_ttl"`
}

// PracticeConfig tunes the practice flows.
type PracticeConfig struct {
	GenerateTasks bool         `mapstructure:"generate_tasks"`
	Tutor         tutor.Config `mapstructure:"tutor"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Telegram: telegram.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: store.Config{Driver: store.DriverSQLite},
		LLM:      llm.DefaultConfig(),
		Speech: SpeechConfig{
			Transcribe: llm.TranscribeConfig{Provider: "openai", Model: "whisper-1", Language: "en"},
			FFmpeg:     true,
			SampleRate: 16000,
			Bitrate:    "64k",
		},
		Storage: audio.StorageConfig{
			Backend:   "local",
			LocalPath: "media",
			Region:    "us-east-1",
			URLExpiry: time.Hour,
		},
		Log:   logging.DefaultConfig(),
		Skill: SkillConfig{Thresholds: skill.DefaultTable()},
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     5,
			IdleTTL:   10 * time.Minute,
		},
		Practice: PracticeConfig{
			GenerateTasks: true,
			Tutor:         tutor.DefaultConfig(),
		},
	}
}

// Load reads path (or the default search locations when path is empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bandcoach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "bandcoach"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	// Decoding into a non-empty slice overwrites element by element, so a
	// shorter configured table would keep the default's tail.
	cfg.Skill.Thresholds = nil
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Skill.Thresholds) == 0 {
		cfg.Skill.Thresholds = skill.DefaultTable()
	}
	cfg.LLM.DiscoverKeys()
	if cfg.Speech.Transcribe.APIKey == "" {
		cfg.Speech.Transcribe.APIKey = cfg.LLM.OpenAI.APIKey
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == store.DriverSQLite {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("default database path: %w", err)
		}
		cfg.Database.DSN = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeHook keeps viper's default string conversions and lets types such
// as skill.Level parse themselves.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Validate checks settings every command relies on. Bot and AI
// credentials are checked by ValidateServe.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Skill.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("skill.thresholds: %w", err))
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.per_second and ratelimit.burst must be positive"))
	}
	switch c.Storage.Backend {
	case "local", "minio":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be local or minio", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// ValidateServe additionally requires what the bot needs to run: the bot
// token and credentials for the selected AI provider.
func (c *Config) ValidateServe() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token (or %s_TELEGRAM_TOKEN) is required", EnvPrefix)
	}
	if c.Telegram.WebhookURL != "" && c.Telegram.WebhookSecret == "" {
		return errors.New("telegram.webhook_secret is required when telegram.webhook_url is set")
	}
	return nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// that do not appear in the config file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	v.SetDefault("telegram.debug", false)
	v.SetDefault("telegram.api_endpoint", d.Telegram.APIEndpoint)
	v.SetDefault("telegram.file_endpoint", d.Telegram.FileEndpoint)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", "")

	v.SetDefault("content.dir", "")

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", d.LLM.Anthropic.Model)
	v.SetDefault("llm.anthropic.base_url", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	v.SetDefault("llm.openrouter.api_key", "")
	v.SetDefault("llm.openrouter.model", d.LLM.OpenRouter.Model)
	v.SetDefault("llm.openrouter.base_url", "")
	v.SetDefault("llm.retry.max_attempts", d.LLM.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", d.LLM.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", d.LLM.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", d.LLM.Retry.Multiplier)

	v.SetDefault("speech.transcribe.provider", d.Speech.Transcribe.Provider)
	v.SetDefault("speech.transcribe.api_key", "")
	v.SetDefault("speech.transcribe.base_url", "")
	v.SetDefault("speech.transcribe.model", d.Speech.Transcribe.Model)
	v.SetDefault("speech.transcribe.language", d.Speech.Transcribe.Language)
	v.SetDefault("speech.ffmpeg", d.Speech.FFmpeg)
	v.SetDefault("speech.sample_rate", d.Speech.SampleRate)
	v.SetDefault("speech.bitrate", d.Speech.Bitrate)
	v.SetDefault("speech.temp_dir", "")

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.local_path", d.Storage.LocalPath)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.url_expiry", d.Storage.URLExpiry)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.console", d.Log.Console)

	v.SetDefault("ratelimit.per_second", d.RateLimit.PerSecond)
	v.SetDefault("ratelimit.burst", d.RateLimit.Burst)
	v.SetDefault("ratelimit.idle_ttl", d.RateLimit.IdleTTL)

	v.SetDefault("practice.generate_tasks", d.Practice.GenerateTasks)
	v.SetDefault("practice.tutor.max_tokens", d.Practice.Tutor.MaxTokens)
	v.SetDefault("practice.tutor.temperature", d.Practice.Tutor.Temperature)
	v.SetDefault("practice.tutor.task_temperature", d.Practice.Tutor.TaskTemperature)
}
