package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	DatabaseURL  string
	DiscordToken string
	DiscordGuild string // opcional: registra comandos sólo en esta guild
	NATSURL      string // opcional: sin NATS los eventos se descartan
	LogLevel     slog.Level
	AdminRoleIDs []string
	TuningPath   string
	Tuning       Tuning
}

// Tuning son los tiempos del dispatcher y del intake. Se leen de un TOML
// opcional (QUEUEBOT_TUNING); lo que falte queda en default.
type Tuning struct {
	FlushPeriodMS     int `toml:"flush_period_ms"`
	FlushConcurrency  int `toml:"flush_concurrency"`
	MoveBurst         int `toml:"move_burst"`
	MoveWindowSeconds int `toml:"move_window_seconds"`
	SettleDelayMS     int `toml:"settle_delay_ms"`
	IntakeWorkers     int `toml:"intake_workers"`
}

func DefaultTuning() Tuning {
	return Tuning{
		FlushPeriodMS:     1100,
		FlushConcurrency:  4,
		MoveBurst:         10,
		MoveWindowSeconds: 12,
		SettleDelayMS:     2000,
		IntakeWorkers:     8,
	}
}

func (t Tuning) FlushPeriod() time.Duration { return time.Duration(t.FlushPeriodMS) * time.Millisecond }
func (t Tuning) MoveWindow() time.Duration  { return time.Duration(t.MoveWindowSeconds) * time.Second }
func (t Tuning) SettleDelay() time.Duration { return time.Duration(t.SettleDelayMS) * time.Millisecond }

func (t Tuning) validate() error {
	switch {
	case t.FlushPeriodMS < 100:
		return errors.New("flush_period_ms must be >= 100")
	case t.FlushConcurrency < 1:
		return errors.New("flush_concurrency must be >= 1")
	case t.MoveBurst < 1:
		return errors.New("move_burst must be >= 1")
	case t.MoveWindowSeconds < 1:
		return errors.New("move_window_seconds must be >= 1")
	case t.SettleDelayMS < 0:
		return errors.New("settle_delay_ms must be >= 0")
	case t.IntakeWorkers < 1:
		return errors.New("intake_workers must be >= 1")
	}
	return nil
}

// Load lee el entorno del proceso (ya cargado por godotenv).
func Load() (Config, error) {
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func FromEnv(getenv func(string) string) (Config, error) {
	var missing []string
	get := func(k string, req bool) string {
		v := strings.TrimSpace(getenv(k))
		if v == "" && req {
			missing = append(missing, k)
		}
		return v
	}

	cfg := Config{
		DatabaseURL:  get("DATABASE_URL", true),
		DiscordToken: get("DISCORD_BOT_TOKEN", true),
		DiscordGuild: get("DISCORD_GUILD_ID", false),
		NATSURL:      get("NATS_URL", false),
		AdminRoleIDs: splitList(get("ADMIN_ROLE_IDS", false)),
		TuningPath:   get("QUEUEBOT_TUNING", false),
		Tuning:       DefaultTuning(),
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("faltante env %s", strings.Join(missing, ", "))
	}

	if lvl := get("LOG_LEVEL", false); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	if cfg.TuningPath != "" {
		t, err := LoadTuning(cfg.TuningPath)
		if err != nil {
			return Config{}, err
		}
		cfg.Tuning = t
	}
	return cfg, nil
}

// LoadTuning decodifica el archivo sobre los defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	f, err := os.Open(path)
	if err != nil {
		return t, fmt.Errorf("open tuning: %w", err)
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return t, fmt.Errorf("parse tuning: %w", err)
	}
	if err := t.validate(); err != nil {
		return t, fmt.Errorf("tuning %s: %w", path, err)
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
