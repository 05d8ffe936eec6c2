package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	PolicyReject = "reject"
	PolicyGrow   = "grow"
)

// Config is read from config.yaml (or CONFIG_PATH); environment variables
// override YAML values. API keys and tokens are only read from the environment.
type Config struct {
	DBPath    string `yaml:"db_path" env:"DB_PATH" env-default:"./data/banking_knowledge.db"`
	ModelPath string `yaml:"model_path" env:"MODEL_PATH" env-default:"./data/intent_model.json"`
	SeedPath  string `yaml:"seed_path" env:"SEED_PATH"`

	// Zero is a valid setting for these; defaults come from defaults().
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	UnknownIntentPolicy string  `yaml:"unknown_intent_policy" env:"UNKNOWN_INTENT_POLICY" env-default:"reject"`
	RefitOnAll          bool    `yaml:"refit_on_all" env:"REFIT_ON_ALL"`
	TrainOnStartup      bool    `yaml:"train_on_startup" env:"TRAIN_ON_STARTUP"`

	HTTPAddr          string `yaml:"http_addr" env:"HTTP_ADDR" env-default:"127.0.0.1:5000"`
	RetrainSchedule   string `yaml:"retrain_schedule" env:"RETRAIN_SCHEDULE"`
	CurationExportDir string `yaml:"curation_export_dir" env:"CURATION_EXPORT_DIR" env-default:"./curation"`

	SlackBotToken string `yaml:"-" env:"SLACK_BOT_TOKEN"`
	SlackAppToken string `yaml:"-" env:"SLACK_APP_TOKEN"`

	// SlackAdmins may hold user IDs or names; empty lets anyone retrain.
	SlackAdmins []string `yaml:"slack_admins" env:"SLACK_ADMINS" env-separator:","`

	LLMProvider     string `yaml:"llm_provider" env:"LLM_PROVIDER"`
	LLMModel        string `yaml:"llm_model" env:"LLM_MODEL"`
	LLMBaseURL      string `yaml:"llm_base_url" env:"LLM_BASE_URL"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds" env:"EXTERNAL_HTTP_TIMEOUT_SECONDS" env-default:"90"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"console"`
}

// Load reads .env (if present), then the YAML config file, then the
// environment, and validates the result.
func Load() (Config, error) {
	cfg := defaults()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env config: %w", err)
	}

	cfg.UnknownIntentPolicy = strings.ToLower(strings.TrimSpace(cfg.UnknownIntentPolicy))
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ConfidenceThreshold: 0.45,
		RefitOnAll:          true,
		TrainOnStartup:      true,
	}
}

func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("invalid confidence_threshold '%f': must be between 0 and 1", c.ConfidenceThreshold)
	}
	switch c.UnknownIntentPolicy {
	case PolicyReject, PolicyGrow:
	default:
		return fmt.Errorf("unknown_intent_policy must be '%s' or '%s', got '%s'", PolicyReject, PolicyGrow, c.UnknownIntentPolicy)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		return fmt.Errorf("model_path must not be empty")
	}
	switch c.LLMProvider {
	case "":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when llm_provider=openai")
		}
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	if c.RetrainSchedule != "" {
		if _, err := cron.ParseStandard(c.RetrainSchedule); err != nil {
			return fmt.Errorf("invalid retrain_schedule '%s': %w", c.RetrainSchedule, err)
		}
	}
	if (c.SlackBotToken == "") != (c.SlackAppToken == "") {
		return fmt.Errorf("partial Slack config: SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required together")
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	return nil
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func (c Config) LLMConfigured() bool {
	return c.LLMProvider != ""
}
