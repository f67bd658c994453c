package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// ChannelID is the broadcast destination for published albums,
	// e.g. "@freedomeCar" or a numeric chat id.
	ChannelID string `yaml:"channel_id" envconfig:"TELEGRAM_CHANNEL_ID"`
	RunMode   string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// GenerationConfig configures the Gemini text generation backend.
type GenerationConfig struct {
	APIKey string `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model  string `yaml:"model" envconfig:"GEMINI_MODEL"`
	// TimeoutSeconds bounds one generation call; 0 -> 30.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"GEMINI_TIMEOUT_SECONDS"`
}

// MediaConfig configures the sanitization pipeline.
type MediaConfig struct {
	// ModelPath locates the versioned plate-detector ONNX artifact.
	// Its absence is startup-fatal.
	ModelPath string `yaml:"model_path" envconfig:"DETECTOR_MODEL_PATH"`
	// ConfidenceThreshold discards detections below it; 0 -> 0.25.
	ConfidenceThreshold float32 `yaml:"confidence_threshold" envconfig:"DETECTOR_CONFIDENCE"`
	// BlurSigma controls redaction blur strength; 0 -> 30.
	BlurSigma float64 `yaml:"blur_sigma" envconfig:"MEDIA_BLUR_SIGMA"`
	// WatermarkText is composited onto every processed photo.
	WatermarkText string `yaml:"watermark_text" envconfig:"MEDIA_WATERMARK_TEXT"`
	// WatermarkScale sizes the mark relative to image height; 0 -> 0.035.
	WatermarkScale float64 `yaml:"watermark_scale" envconfig:"MEDIA_WATERMARK_SCALE"`
	// FontPath locates the TTF used for the watermark.
	FontPath string `yaml:"font_path" envconfig:"MEDIA_FONT_PATH"`
	// WorkDir receives transient downloads and processed artifacts.
	WorkDir string `yaml:"work_dir" envconfig:"MEDIA_WORK_DIR"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateInlineQuery identifies inline query updates for rate limit exclusions.
	UpdateInlineQuery = "inline_query"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "inline_query": inline query updates
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the full application configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Generation GenerationConfig `yaml:"generation"`
	Media      MediaConfig      `yaml:"media"`
	Logging    LoggingConfig    `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// Load reads configuration from an optional .env file, a YAML file, and
// environment variables, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	var cfg Config

	// .env is optional and only fills variables that are not already set.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if strings.TrimSpace(cfg.Telegram.ChannelID) == "" {
		return fmt.Errorf("telegram.channel_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Generation.APIKey) == "" {
		return fmt.Errorf("generation.api_key is required")
	}
	if strings.TrimSpace(cfg.Generation.Model) == "" {
		cfg.Generation.Model = "gemini-2.5-flash"
	}
	if cfg.Generation.TimeoutSeconds < 0 {
		return fmt.Errorf("generation.timeout_seconds must be >= 0")
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 30
	}

	if strings.TrimSpace(cfg.Media.ModelPath) == "" {
		return fmt.Errorf("media.model_path is required")
	}
	if cfg.Media.ConfidenceThreshold < 0 || cfg.Media.ConfidenceThreshold > 1 {
		return fmt.Errorf("media.confidence_threshold must be within [0,1]")
	}
	if cfg.Media.ConfidenceThreshold == 0 {
		cfg.Media.ConfidenceThreshold = 0.25
	}
	if cfg.Media.BlurSigma < 0 {
		return fmt.Errorf("media.blur_sigma must be >= 0")
	}
	if cfg.Media.BlurSigma == 0 {
		cfg.Media.BlurSigma = 30
	}
	if cfg.Media.WatermarkScale < 0 || cfg.Media.WatermarkScale > 1 {
		return fmt.Errorf("media.watermark_scale must be within [0,1]")
	}
	if cfg.Media.WatermarkScale == 0 {
		cfg.Media.WatermarkScale = 0.035
	}
	if strings.TrimSpace(cfg.Media.WorkDir) == "" {
		cfg.Media.WorkDir = "work"
	}

	allowed := map[string]struct{}{
		UpdateCallback:    {},
		UpdateMessage:     {},
		UpdateInlineQuery: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
