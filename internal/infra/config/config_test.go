package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnvRequired(t *testing.T) {
	_, err := FromEnv(envMap(nil))
	if err == nil {
		t.Fatal("expected error for missing env")
	}
	for _, k := range []string{"DATABASE_URL", "DISCORD_BOT_TOKEN"} {
		if !strings.Contains(err.Error(), k) {
			t.Errorf("error %q does not name %s", err, k)
		}
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"DATABASE_URL":      "postgres://x",
		"DISCORD_BOT_TOKEN": "tok",
		"ADMIN_ROLE_IDS":    " 1, 2 ,,3",
		"LOG_LEVEL":         "debug",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Tuning != DefaultTuning() {
		t.Errorf("tuning = %+v, want defaults", cfg.Tuning)
	}
	if got := strings.Join(cfg.AdminRoleIDs, "|"); got != "1|2|3" {
		t.Errorf("admin roles = %q", got)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
	if cfg.Tuning.FlushPeriod() != 1100*time.Millisecond || cfg.Tuning.MoveWindow() != 12*time.Second {
		t.Errorf("durations = %v %v", cfg.Tuning.FlushPeriod(), cfg.Tuning.MoveWindow())
	}
}

func TestFromEnvBadLogLevel(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"DATABASE_URL": "x", "DISCORD_BOT_TOKEN": "y", "LOG_LEVEL": "loud",
	}))
	if err == nil {
		t.Fatal("expected error for bad LOG_LEVEL")
	}
}

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTuningOverridesDefaults(t *testing.T) {
	path := writeTuning(t, "flush_period_ms = 2000\nmove_burst = 5\n")

	tn, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tn.FlushPeriodMS != 2000 || tn.MoveBurst != 5 {
		t.Errorf("overrides not applied: %+v", tn)
	}
	if tn.MoveWindowSeconds != 12 || tn.IntakeWorkers != 8 {
		t.Errorf("defaults lost: %+v", tn)
	}
}

func TestLoadTuningRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key": "flush_periodo = 1\n",
		"invalid":     "move_burst = 0\n",
		"syntax":      "move_burst = \n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadTuning(writeTuning(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestZeroSettleDelayAllowed(t *testing.T) {
	tune, err := LoadTuning(writeTuning(t, "settle_delay_ms = 0\n"))
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tune.SettleDelay() != 0 {
		t.Errorf("settle = %v, want 0", tune.SettleDelay())
	}
}

func TestFromEnvReadsTuningFile(t *testing.T) {
	path := writeTuning(t, "settle_delay_ms = 500\n")
	cfg, err := FromEnv(envMap(map[string]string{
		"DATABASE_URL": "x", "DISCORD_BOT_TOKEN": "y", "QUEUEBOT_TUNING": path,
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Tuning.SettleDelay() != 500*time.Millisecond {
		t.Errorf("settle = %v", cfg.Tuning.SettleDelay())
	}
}
