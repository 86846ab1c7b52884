package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// LLM 작업 유형 상수입니다.
const (
	TaskGenerate = "generate"
	TaskDetect   = "detect"
	TaskCorrect  = "correct"
)

// Ledger 백엔드 이름입니다.
const (
	LedgerBackendValkey   = "valkey"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

// ThinkingConfig: Gemini thinking 레벨 설정입니다.
type ThinkingConfig struct {
	LevelDefault  string
	LevelGenerate string
	LevelDetect   string
	LevelCorrect  string
}

// Level: 작업 유형별 thinking 레벨을 반환합니다.
func (t ThinkingConfig) Level(task string) string {
	switch task {
	case TaskGenerate:
		if t.LevelGenerate != "" {
			return t.LevelGenerate
		}
	case TaskDetect:
		if t.LevelDetect != "" {
			return t.LevelDetect
		}
	case TaskCorrect:
		if t.LevelCorrect != "" {
			return t.LevelCorrect
		}
	}
	return t.LevelDefault
}

// GeminiConfig: Gemini 모델 설정입니다.
// 생성 호출은 Temperature, 감지/교정 호출은 CorrectiveTemperature 를 사용합니다.
type GeminiConfig struct {
	APIKeys               []string
	DefaultModel          string
	GenerateModel         string
	DetectModel           string
	CorrectModel          string
	Temperature           float64
	CorrectiveTemperature float64
	MaxOutputTokens       int
	Thinking              ThinkingConfig
	MaxRetries            int
	TimeoutSeconds        int
}

// PrimaryKey: 기본 API 키를 반환합니다.
func (g GeminiConfig) PrimaryKey() string {
	if len(g.APIKeys) == 0 {
		return ""
	}
	return g.APIKeys[0]
}

// ModelForTask: 작업 유형별 모델을 반환합니다.
func (g GeminiConfig) ModelForTask(task string) string {
	switch task {
	case TaskGenerate:
		if g.GenerateModel != "" {
			return g.GenerateModel
		}
	case TaskDetect:
		if g.DetectModel != "" {
			return g.DetectModel
		}
	case TaskCorrect:
		if g.CorrectModel != "" {
			return g.CorrectModel
		}
	}
	return g.DefaultModel
}

// TemperatureForTask: 작업 유형별 temperature 를 반환합니다.
func (g GeminiConfig) TemperatureForTask(task string) float64 {
	switch task {
	case TaskDetect, TaskCorrect:
		return g.CorrectiveTemperature
	default:
		return g.Temperature
	}
}

// PipelineConfig: 언어 타게팅/출력 검증 설정입니다.
type PipelineConfig struct {
	DefaultLanguage       string
	CorrectiveMaxAttempts int
	DetectSampleMaxRunes  int
	DetectCacheSize       int
	DetectCacheTTLSeconds int
	RefusalPrefixDir      string
}

// EntitlementConfig: 요금제별 한도와 구독 조회 설정입니다.
type EntitlementConfig struct {
	LimitsFile                  string
	Timezone                    string
	SubscriptionCacheSize       int
	SubscriptionCacheTTLSeconds int
}

// Location: 일 단위 period key 계산에 쓰는 타임존을 반환합니다.
func (e EntitlementConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Timezone)
}

// LedgerConfig: 사용량 카운터 저장소 설정입니다.
type LedgerConfig struct {
	Backend          string
	URL              string
	KeyPrefix        string
	DisableCache     bool
	OpTimeoutSeconds int
}

// LoggingConfig: 로깅 설정입니다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig: HTTP 서버 설정입니다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
	GzipEnabled  bool
}

// HTTPAuthConfig: API 키 인증 설정입니다.
type HTTPAuthConfig struct {
	APIKey string
}

// HTTPRateLimitConfig: 요청 제한 설정입니다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// TelemetryConfig: OpenTelemetry 설정입니다.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// DatabaseConfig: DB 연결 및 저장 설정입니다.
type DatabaseConfig struct {
	Host                                 string
	Port                                 int
	Name                                 string
	User                                 string
	Password                             string
	MinPool                              int
	MaxPool                              int
	ConnMaxLifetimeMinutes               int
	ConnMaxIdleTimeMinutes               int
	UsageBatchEnabled                    bool
	UsageBatchFlushIntervalSeconds       int
	UsageBatchFlushTimeoutSeconds        int
	UsageBatchMaxPendingRequests         int
	UsageBatchMaxBackoffSeconds          int
	UsageBatchErrorLogMaxIntervalSeconds int
}

// DSN: DB 접속 문자열을 반환합니다.
func (d DatabaseConfig) DSN() string {
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// Config: 애플리케이션 전체 설정입니다.
type Config struct {
	Gemini        GeminiConfig
	Pipeline      PipelineConfig
	Entitlement   EntitlementConfig
	Ledger        LedgerConfig
	Database      DatabaseConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Telemetry     TelemetryConfig
}
