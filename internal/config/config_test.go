package config

import (
	"testing"
	"time"
)

func TestParseAPIKeys(t *testing.T) {
	t.Setenv("GOOGLE_API_KEYS", "k1, k2")
	keys := parseAPIKeys()
	if len(keys) != 2 || keys[0] != "k1" || keys[1] != "k2" {
		t.Fatalf("unexpected keys: %+v", keys)
	}

	t.Setenv("GOOGLE_API_KEYS", "")
	t.Setenv("GOOGLE_API_KEY", "single")
	keys = parseAPIKeys()
	if len(keys) != 1 || keys[0] != "single" {
		t.Fatalf("unexpected single key: %+v", keys)
	}
}

func TestSplitKeys(t *testing.T) {
	keys := splitKeys("a,b c\td\n")
	if len(keys) != 4 {
		t.Fatalf("unexpected keys length: %d", len(keys))
	}
}

func TestGeminiConfigModelSelection(t *testing.T) {
	cfg := GeminiConfig{DefaultModel: "gemini-default", CorrectModel: "gemini-correct"}
	if cfg.ModelForTask(TaskCorrect) != "gemini-correct" {
		t.Fatalf("unexpected model for correct")
	}
	if cfg.ModelForTask(TaskDetect) != "gemini-default" {
		t.Fatalf("expected detect to fall back to default model")
	}
	if cfg.ModelForTask("unknown") != "gemini-default" {
		t.Fatalf("unexpected default model")
	}
}

func TestTemperatureForTask(t *testing.T) {
	cfg := GeminiConfig{Temperature: 0.7, CorrectiveTemperature: 0}
	if cfg.TemperatureForTask(TaskGenerate) != 0.7 {
		t.Fatalf("expected generative temperature")
	}
	if cfg.TemperatureForTask(TaskCorrect) != 0 {
		t.Fatalf("expected corrective temperature 0")
	}
	if cfg.TemperatureForTask(TaskDetect) != 0 {
		t.Fatalf("expected detect to use corrective temperature")
	}
}

func TestThinkingConfigLevel(t *testing.T) {
	cfg := ThinkingConfig{
		LevelDefault: "low",
		LevelDetect:  "minimal",
		LevelCorrect: "medium",
	}

	if cfg.Level(TaskDetect) != "minimal" {
		t.Fatalf("expected 'minimal' for detect, got: %s", cfg.Level(TaskDetect))
	}
	if cfg.Level(TaskCorrect) != "medium" {
		t.Fatalf("expected 'medium' for correct, got: %s", cfg.Level(TaskCorrect))
	}
	if cfg.Level(TaskGenerate) != "low" {
		t.Fatalf("expected fallback 'low' for generate, got: %s", cfg.Level(TaskGenerate))
	}
}

func validConfig() *Config {
	return &Config{
		Gemini:      GeminiConfig{DefaultModel: "gemini-test"},
		Pipeline:    PipelineConfig{CorrectiveMaxAttempts: 1},
		Entitlement: EntitlementConfig{Timezone: "UTC"},
		Ledger:      LedgerConfig{Backend: LedgerBackendMemory},
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := validConfig()
	cfg.Ledger.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	cfg = validConfig()
	cfg.Pipeline.CorrectiveMaxAttempts = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected corrective attempts error")
	}

	cfg = validConfig()
	cfg.Entitlement.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected timezone error")
	}

	cfg = validConfig()
	cfg.Gemini.DefaultModel = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected empty model error")
	}
}

func TestEntitlementLocation(t *testing.T) {
	loc, err := EntitlementConfig{}.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v err=%v", loc, err)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, Name: "generation", User: "app", Password: "secret"}
	if got := cfg.DSN(); got != "postgresql://app:secret@db:5432/generation" {
		t.Fatalf("unexpected dsn: %s", got)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "oops")
	if getEnvInt("TEST_INT", 7) != 7 {
		t.Fatalf("expected default on parse failure")
	}
	t.Setenv("TEST_NEG", "-3")
	if getEnvNonNegativeInt("TEST_NEG", 2) != 0 {
		t.Fatalf("expected clamp to zero")
	}
	t.Setenv("TEST_BOOL", "YES")
	if !getEnvBool("TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
}

func TestMaskSecret(t *testing.T) {
	if maskSecret("") != "<missing>" {
		t.Fatalf("unexpected empty mask")
	}
	if maskSecret("abcdefgh") != "ab***gh" {
		t.Fatalf("unexpected mask: %s", maskSecret("abcdefgh"))
	}
}
