package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MovementPeriod != time.Second || cfg.ETAPeriod != time.Minute || cfg.InitialETAMinutes != 8 {
		t.Fatalf("unexpected simulation defaults: %+v", cfg)
	}
	if cfg.Unit.Vehicle != "MEG 1234" || cfg.EmergencyLine != "10111" {
		t.Fatalf("unexpected unit defaults: %+v", cfg.Unit)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("SIM_MOVEMENT_PERIOD", "250ms")
	t.Setenv("SIM_INITIAL_ETA_MINUTES", "12")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("UNIT_VEHICLE", "RAD 777")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("HOOK_DRAIN_TIMEOUT", "500ms")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MovementPeriod != 250*time.Millisecond || cfg.InitialETAMinutes != 12 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.HookDrainTimeout != 500*time.Millisecond {
		t.Fatalf("hook drain timeout = %s", cfg.HookDrainTimeout)
	}
	if cfg.Unit.Vehicle != "RAD 777" || !cfg.RunMigrations {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("SIM_ETA_PERIOD", "soon")
	t.Setenv("SIM_INITIAL_ETA_MINUTES", "0")
	t.Setenv("CALLOUT_FEE_CENTS", "-1")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"SIM_ETA_PERIOD", "SIM_INITIAL_ETA_MINUTES", "CALLOUT_FEE_CENTS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got %v", want, err)
		}
	}
}

func TestLoadConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_BROKER", "kafka:9092")
	t.Setenv("REDIS_RETRY_ATTEMPTS", "5")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka:9092" || cfg.RetryAttempts != 5 {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("UNIT_HOSPITAL=Central\nEMERGENCY_LINE=112\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EMERGENCY_LINE", "911")
	t.Setenv("UNIT_HOSPITAL", "")
	os.Unsetenv("UNIT_HOSPITAL")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("UNIT_HOSPITAL"); got != "Central" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("EMERGENCY_LINE"); got != "911" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}
