package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		Mode        string   `yaml:"mode"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Log  Log  `yaml:"log"`
	Quiz Quiz `yaml:"quiz"`
}

// Log selects the logger level and optional rotating file.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Quiz holds the lifecycle timings. Durations are Go duration strings.
type Quiz struct {
	QuestionCacheTTL string  `yaml:"question_cache_ttl"`
	ListCacheTTL     string  `yaml:"list_cache_ttl"`
	SweepSchedule    string  `yaml:"sweep_schedule"`
	FinalizeDelay    string  `yaml:"finalize_delay"`
	CompletionGrace  string  `yaml:"completion_grace"`
	MaxAttempts      int     `yaml:"max_attempts"`
	AnswerRate       float64 `yaml:"answer_rate"`
	AnswerBurst      int     `yaml:"answer_burst"`
}

// Load reads YAML config from path. A missing file yields the zero config so
// the service can run on in-memory adapters.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
