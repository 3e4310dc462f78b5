package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the API server needs at startup.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Generation GenerationConfig `mapstructure:"generation"`
	Credits    CreditsConfig    `mapstructure:"credits"`
	Upload     UploadConfig     `mapstructure:"upload"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Promo      PromoConfig      `mapstructure:"promo"`
}

type AppConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// GenerationConfig bounds a single listing generation.
// StaleLockAfter must stay well above Timeout, otherwise the reaper can
// release a lock whose generation is still running.
type GenerationConfig struct {
	MaxImages      int           `mapstructure:"max_images"`
	Timeout        time.Duration `mapstructure:"timeout"`
	StaleLockAfter time.Duration `mapstructure:"stale_lock_after"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
}

type CreditsConfig struct {
	SignupBonus int `mapstructure:"signup_bonus"`
}

type UploadConfig struct {
	MaxImageBytes int64 `mapstructure:"max_image_bytes"`
}

type CORSConfig struct {
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

type PromoConfig struct {
	RedeemPerMinute int `mapstructure:"redeem_per_minute"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.environment", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.dsn", "root:root@tcp(127.0.0.1:3306)/snaplist?parseTime=true&multiStatements=true")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 72*time.Hour)
	v.SetDefault("generation.max_images", 5)
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("generation.stale_lock_after", 10*time.Minute)
	v.SetDefault("generation.reaper_interval", time.Minute)
	v.SetDefault("credits.signup_bonus", 3)
	v.SetDefault("upload.max_image_bytes", 8<<20)
	v.SetDefault("cors.allowed_origin", "http://localhost:5173")
	v.SetDefault("promo.redeem_per_minute", 5)
}

// Load reads .env (if any), an optional config.yaml and the environment.
// Environment keys use underscores, e.g. GEMINI_API_KEY for gemini.api_key.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/snaplist")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) is required")
	}
	if c.Gemini.APIKey == "" {
		return errors.New("gemini.api_key (GEMINI_API_KEY) is required")
	}
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.Generation.MaxImages < 1 {
		return errors.New("generation.max_images must be at least 1")
	}
	if c.Generation.Timeout <= 0 {
		return errors.New("generation.timeout must be positive")
	}
	if c.Generation.StaleLockAfter <= c.Generation.Timeout {
		return errors.New("generation.stale_lock_after must exceed generation.timeout")
	}
	if c.Generation.ReaperInterval <= 0 {
		return errors.New("generation.reaper_interval must be positive")
	}
	if c.Credits.SignupBonus < 0 {
		return errors.New("credits.signup_bonus cannot be negative")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Environment == "production"
}
