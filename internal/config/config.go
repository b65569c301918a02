package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full portal configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// PathsConfig holds the externally configured directory roots. None of the
// core packages hard-code a path.
type PathsConfig struct {
	OrdersDir  string `yaml:"orders_dir" mapstructure:"orders_dir"`
	ResultsDir string `yaml:"results_dir" mapstructure:"results_dir"`
	OCRDir     string `yaml:"ocr_dir" mapstructure:"ocr_dir"`
	CRMDir     string `yaml:"crm_dir" mapstructure:"crm_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PortalConfig configures lifecycle engine behavior.
type PortalConfig struct {
	// UpdatePolicy selects the edit merge contract: "merge" (field-level
	// merge preserving original values, the canonical policy) or "replace"
	// (full replacement compat mode with no per-field provenance).
	UpdatePolicy string `yaml:"update_policy" mapstructure:"update_policy"`

	// StrictProviderSelection rejects provider selections that do not
	// appear in the computed candidate lists. Off by default to allow
	// manual overrides.
	StrictProviderSelection bool `yaml:"strict_provider_selection" mapstructure:"strict_provider_selection"`

	// ProcessTimeoutSecs bounds one extraction+formatting run.
	ProcessTimeoutSecs int `yaml:"process_timeout_secs" mapstructure:"process_timeout_secs"`

	// ListConcurrency bounds parallel record reads during listing.
	ListConcurrency int `yaml:"list_concurrency" mapstructure:"list_concurrency"`
}

// UpdatePolicyMerge and UpdatePolicyReplace are the two supported edit
// merge contracts.
const (
	UpdatePolicyMerge   = "merge"
	UpdatePolicyReplace = "replace"
)

// OCRConfig configures document text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// AnthropicConfig holds the LLM formatting settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FieldDefs   string  `yaml:"field_defs" mapstructure:"field_defs"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeocodeConfig configures patient-address geocoding.
type GeocodeConfig struct {
	GoogleKey  string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ProvidersConfig configures the in-network provider panel.
type ProvidersConfig struct {
	PanelPath string `yaml:"panel_path" mapstructure:"panel_path"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// RetryConfig holds bounded-retry knobs for upstream calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// AuditConfig configures the lifecycle event log.
type AuditConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// AuthConfig configures the identity provider and session tokens. Users are
// deployment configuration, never compiled in.
type AuthConfig struct {
	JWTSecret    string       `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLMins int          `yaml:"token_ttl_mins" mapstructure:"token_ttl_mins"`
	Users        []UserConfig `yaml:"users" mapstructure:"users"`
}

// UserConfig is one configured portal user. PasswordSHA256 is the hex
// SHA-256 of salt+password.
type UserConfig struct {
	ID             string `yaml:"id" mapstructure:"id"`
	Email          string `yaml:"email" mapstructure:"email"`
	Name           string `yaml:"name" mapstructure:"name"`
	Role           string `yaml:"role" mapstructure:"role"`
	Salt           string `yaml:"salt" mapstructure:"salt"`
	PasswordSHA256 string `yaml:"password_sha256" mapstructure:"password_sha256"`
}

// SalesforceConfig holds optional CRM submission settings. When Domain is
// empty the packaged payload is only written to disk.
type SalesforceConfig struct {
	Domain         string `yaml:"domain" mapstructure:"domain"`
	Username       string `yaml:"username" mapstructure:"username"`
	ConsumerKey    string `yaml:"consumer_key" mapstructure:"consumer_key"`
	ConsumerRSAPem string `yaml:"consumer_rsa_pem" mapstructure:"consumer_rsa_pem"`
	Object         string `yaml:"object" mapstructure:"object"`
}

// Load reads configuration from config.yaml and REFERRAL_-prefixed
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REFERRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("paths.orders_dir", "data/orders")
	v.SetDefault("paths.results_dir", "data/results")
	v.SetDefault("paths.ocr_dir", "data/ocr")
	v.SetDefault("paths.crm_dir", "data/crm_ready")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("portal.update_policy", UpdatePolicyMerge)
	v.SetDefault("portal.strict_provider_selection", false)
	v.SetDefault("portal.process_timeout_secs", 300)
	v.SetDefault("portal.list_concurrency", 8)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.rate_per_sec", 2)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("geocode.rate_per_sec", 10)
	v.SetDefault("providers.panel_path", "data/provider_panel.xlsx")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("audit.db_path", "data/audit.db")
	v.SetDefault("auth.token_ttl_mins", 480)
	v.SetDefault("salesforce.object", "Referral_Order__c")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
