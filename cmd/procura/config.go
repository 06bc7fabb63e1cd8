package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
)

// Duration is a time.Duration that reads and writes as "30s" in settings.json.
type Duration time.Duration

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "30s" style strings or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs float64
		if err2 := json.Unmarshal(b, &secs); err2 != nil {
			return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all procura configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr              string   `json:"listen_addr"`
	DBPath                  string   `json:"db_path"`
	LogLevel                string   `json:"log_level"`
	LogFormat               string   `json:"log_format"`
	ActionTimeout           Duration `json:"action_timeout"`
	SchedulerSpec           string   `json:"scheduler_spec"`
	SchedulerPoolSize       int      `json:"scheduler_pool_size"`
	CircuitFailureThreshold int      `json:"circuit_failure_threshold"`
	CircuitCooldown         Duration `json:"circuit_cooldown"`
	RulesFile               string   `json:"rules_file,omitempty"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:              ":4200",
		DBPath:                  filepath.Join(procuraDir(), "procura.db"),
		LogLevel:                "info",
		LogFormat:               "json",
		ActionTimeout:           Duration(30 * time.Second),
		SchedulerSpec:           "@every 30s",
		SchedulerPoolSize:       4,
		CircuitFailureThreshold: 0,
		CircuitCooldown:         Duration(30 * time.Second),
	}
}

func procuraDir() string {
	if v := os.Getenv("PROCURA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".procura"
	}
	return filepath.Join(home, ".procura")
}

func settingsPath() string {
	return filepath.Join(procuraDir(), "settings.json")
}

// loadConfig layers settings.json and PROCURA_* env vars over the defaults.
// A missing settings file is not an error; a malformed one is.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(settingsPath()); err == nil {
		var file Config
		if err := json.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(), err)
		}
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return cfg, fmt.Errorf("merge settings: %w", err)
		}
		// mergo skips zero values; a zero threshold is how breaking is turned off.
		var explicit struct {
			CircuitFailureThreshold *int `json:"circuit_failure_threshold"`
		}
		if err := json.Unmarshal(data, &explicit); err == nil && explicit.CircuitFailureThreshold != nil {
			cfg.CircuitFailureThreshold = *explicit.CircuitFailureThreshold
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", settingsPath(), err)
	}

	env, err := envConfig()
	if err != nil {
		return cfg, err
	}
	if err := mergo.Merge(&cfg, env, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("merge env: %w", err)
	}
	if os.Getenv("PROCURA_CIRCUIT_FAILURE_THRESHOLD") != "" {
		cfg.CircuitFailureThreshold = env.CircuitFailureThreshold
	}
	return cfg, nil
}

// envConfig reads the PROCURA_* variables. Unset variables stay zero so the
// merge leaves lower layers untouched.
func envConfig() (Config, error) {
	var cfg Config
	cfg.ListenAddr = os.Getenv("PROCURA_LISTEN_ADDR")
	cfg.DBPath = os.Getenv("PROCURA_DB_PATH")
	cfg.LogLevel = os.Getenv("PROCURA_LOG_LEVEL")
	cfg.LogFormat = os.Getenv("PROCURA_LOG_FORMAT")
	cfg.SchedulerSpec = os.Getenv("PROCURA_SCHEDULER_SPEC")
	cfg.RulesFile = os.Getenv("PROCURA_RULES_FILE")

	ints := map[string]*int{
		"PROCURA_SCHEDULER_POOL_SIZE":       &cfg.SchedulerPoolSize,
		"PROCURA_CIRCUIT_FAILURE_THRESHOLD": &cfg.CircuitFailureThreshold,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*Duration{
		"PROCURA_ACTION_TIMEOUT":   &cfg.ActionTimeout,
		"PROCURA_CIRCUIT_COOLDOWN": &cfg.CircuitCooldown,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", key, err)
			}
			*dst = Duration(d)
		}
	}
	return cfg, nil
}

// dsn turns DBPath into a libSQL connection string.
func (c Config) dsn() string {
	if strings.HasPrefix(c.DBPath, "file:") || strings.Contains(c.DBPath, "://") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}
