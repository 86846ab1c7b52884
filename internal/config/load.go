package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var (
	configOnce  sync.Once
	configValue *Config
)

// Load 는 환경 변수 기반 설정을 로드한다.
func Load() *Config {
	configOnce.Do(func() {
		_ = godotenv.Load()
		configValue = buildConfig()
	})
	return configValue
}

// ProvideConfig 는 설정을 로드하고 검증한다.
func ProvideConfig() (*Config, error) {
	cfg := Load()
	if cfg == nil {
		return nil, errors.New("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 는 설정 유효성을 검사한다.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Gemini.DefaultModel) == "" {
		return errors.New("gemini default model is empty")
	}

	switch c.Ledger.Backend {
	case LedgerBackendValkey, LedgerBackendPostgres, LedgerBackendMemory:
	default:
		return fmt.Errorf("unknown ledger backend: %q", c.Ledger.Backend)
	}

	// 교정 호출은 단계별 1회로 고정한다.
	if c.Pipeline.CorrectiveMaxAttempts != 1 {
		return fmt.Errorf("corrective max attempts must be 1: got %d", c.Pipeline.CorrectiveMaxAttempts)
	}

	if _, err := c.Entitlement.Location(); err != nil {
		return fmt.Errorf("invalid entitlement timezone %q: %w", c.Entitlement.Timezone, err)
	}
	return nil
}

// LogEnvStatus 는 환경 설정 상태를 로그로 남긴다.
func LogEnvStatus(cfg *Config, logger *slog.Logger) {
	if logger == nil || cfg == nil {
		return
	}

	envFilePresent := fileExists(".env")
	primaryKey := maskSecret(cfg.Gemini.PrimaryKey())
	logger.Debug(
		"env_status",
		"env_file", envFilePresent,
		"gemini_keys", len(cfg.Gemini.APIKeys),
		"primary_key", primaryKey,
		"model", cfg.Gemini.DefaultModel,
		"timeout", cfg.Gemini.TimeoutSeconds,
		"ledger_backend", cfg.Ledger.Backend,
		"ledger_url", cfg.Ledger.URL,
		"db_host", cfg.Database.Host,
		"db_name", cfg.Database.Name,
		"limits_file", cfg.Entitlement.LimitsFile,
		"timezone", cfg.Entitlement.Timezone,
		"default_language", cfg.Pipeline.DefaultLanguage,
	)

	if len(cfg.Gemini.APIKeys) == 0 {
		logger.Error("env_missing_google_api_key")
	}
}

func buildConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			APIKeys:               parseAPIKeys(),
			DefaultModel:          getEnvString("GEMINI_MODEL", "gemini-3-flash-preview"),
			GenerateModel:         getEnvString("GEMINI_GENERATE_MODEL", ""),
			DetectModel:           getEnvString("GEMINI_DETECT_MODEL", ""),
			CorrectModel:          getEnvString("GEMINI_CORRECT_MODEL", ""),
			Temperature:           getEnvFloat("GEMINI_TEMPERATURE", 0.7),
			CorrectiveTemperature: getEnvFloat("GEMINI_CORRECTIVE_TEMPERATURE", 0),
			MaxOutputTokens:       getEnvInt("GEMINI_MAX_TOKENS", 8192),
			Thinking: ThinkingConfig{
				LevelDefault:  getEnvString("GEMINI_THINKING_LEVEL", "low"),
				LevelGenerate: getEnvString("GEMINI_THINKING_LEVEL_GENERATE", ""),
				LevelDetect:   getEnvString("GEMINI_THINKING_LEVEL_DETECT", "minimal"),
				LevelCorrect:  getEnvString("GEMINI_THINKING_LEVEL_CORRECT", "minimal"),
			},
			MaxRetries:     max(1, getEnvInt("GEMINI_MAX_RETRIES", 3)),
			TimeoutSeconds: getEnvInt("GEMINI_TIMEOUT", 60),
		},
		Pipeline: PipelineConfig{
			DefaultLanguage:       strings.ToLower(getEnvString("PIPELINE_DEFAULT_LANGUAGE", "en")),
			CorrectiveMaxAttempts: getEnvInt("PIPELINE_CORRECTIVE_MAX_ATTEMPTS", 1),
			DetectSampleMaxRunes:  max(1, getEnvNonNegativeInt("PIPELINE_DETECT_SAMPLE_MAX_RUNES", 2000)),
			DetectCacheSize:       max(1, getEnvNonNegativeInt("PIPELINE_DETECT_CACHE_SIZE", 10000)),
			DetectCacheTTLSeconds: max(1, getEnvNonNegativeInt("PIPELINE_DETECT_CACHE_TTL_SECONDS", 600)),
			RefusalPrefixDir:      getEnvString("PIPELINE_REFUSAL_PREFIX_DIR", ""),
		},
		Entitlement: EntitlementConfig{
			LimitsFile:                  getEnvString("ENTITLEMENT_LIMITS_FILE", ""),
			Timezone:                    getEnvString("ENTITLEMENT_TIMEZONE", "UTC"),
			SubscriptionCacheSize:       max(1, getEnvNonNegativeInt("SUBSCRIPTION_CACHE_SIZE", 10000)),
			SubscriptionCacheTTLSeconds: getEnvNonNegativeInt("SUBSCRIPTION_CACHE_TTL_SECONDS", 30),
		},
		Ledger: LedgerConfig{
			Backend:          strings.ToLower(getEnvString("LEDGER_BACKEND", LedgerBackendValkey)),
			URL:              getEnvString("LEDGER_URL", "redis://localhost:6379"),
			KeyPrefix:        getEnvString("LEDGER_KEY_PREFIX", "usage"),
			DisableCache:     getEnvBool("LEDGER_DISABLE_CACHE", true),
			OpTimeoutSeconds: getEnvInt("LEDGER_OP_TIMEOUT_SECONDS", 2),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			LogDir:     getEnvString("LOG_DIR", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 1),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 30),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 7),
			Compress:   getEnvBool("LOG_FILE_COMPRESS", true),
		},
		HTTP: HTTPConfig{
			Host:         getEnvString("HTTP_HOST", "127.0.0.1"),
			Port:         getEnvInt("HTTP_PORT", 40530),
			HTTP2Enabled: getEnvBool("HTTP2_ENABLED", true),
			GzipEnabled:  getEnvBool("HTTP_GZIP_ENABLED", true),
		},
		HTTPAuth: HTTPAuthConfig{
			APIKey: getEnvString("HTTP_API_KEY", ""),
		},
		HTTPRateLimit: HTTPRateLimitConfig{
			RequestsPerMinute: getEnvNonNegativeInt("HTTP_RATE_LIMIT_RPM", 0),
			CacheSize:         max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_SIZE", 10000)),
			CacheTTLSeconds:   max(1, getEnvNonNegativeInt("HTTP_RATE_LIMIT_CACHE_TTL_SECONDS", 120)),
		},
		Telemetry: readTelemetryConfig(),
		Database: DatabaseConfig{
			Host:                                 getEnvString("DB_HOST", "localhost"),
			Port:                                 getEnvInt("DB_PORT", 5432),
			Name:                                 getEnvString("DB_NAME", "generation"),
			User:                                 getEnvString("DB_USER", "generation"),
			Password:                             getEnvString("DB_PASSWORD", ""),
			MinPool:                              getEnvInt("DB_MIN_POOL", 1),
			MaxPool:                              getEnvInt("DB_MAX_POOL", 5),
			ConnMaxLifetimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_LIFETIME_MINUTES", 60),
			ConnMaxIdleTimeMinutes:               getEnvNonNegativeInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			UsageBatchEnabled:                    getEnvBool("DB_USAGE_BATCH_ENABLED", false),
			UsageBatchFlushIntervalSeconds:       max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_INTERVAL_SECONDS", 1)),
			UsageBatchFlushTimeoutSeconds:        max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_FLUSH_TIMEOUT_SECONDS", 5)),
			UsageBatchMaxPendingRequests:         max(1, getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_PENDING_REQUESTS", 50)),
			UsageBatchMaxBackoffSeconds:          getEnvNonNegativeInt("DB_USAGE_BATCH_MAX_BACKOFF_SECONDS", 60),
			UsageBatchErrorLogMaxIntervalSeconds: getEnvNonNegativeInt("DB_USAGE_BATCH_ERROR_LOG_MAX_INTERVAL_SECONDS", 60),
		},
	}
}
