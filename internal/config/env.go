package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read on top of the profile file.
const (
	EnvServer         = "RESEARCH_SERVER"
	EnvLogLevel       = "RESEARCH_LOG_LEVEL"
	EnvLogFile        = "RESEARCH_LOG_FILE"
	EnvPollInterval   = "RESEARCH_POLL_INTERVAL"
	EnvReconnectDelay = "RESEARCH_RECONNECT_DELAY"
	EnvMaxRetries     = "RESEARCH_MAX_RETRIES"
)

// Runtime holds settings that come from the environment only.
type Runtime struct {
	LogLevel       string
	LogFile        string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	MaxRetries     int
}

func DefaultRuntime() Runtime {
	return Runtime{
		LogLevel:       "info",
		PollInterval:   5 * time.Second,
		ReconnectDelay: 2 * time.Second,
		MaxRetries:     3,
	}
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// overlays the RESEARCH_* variables onto c. A profile without a server falls
// back to DefaultServer.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading env file: %w", err)
		}
	}

	c.Server = getEnv(EnvServer, c.Server)
	if c.Server == "" {
		c.Server = DefaultServer
	}

	def := DefaultRuntime()
	c.Runtime = Runtime{
		LogLevel:       getEnv(EnvLogLevel, def.LogLevel),
		LogFile:        getEnv(EnvLogFile, ""),
		PollInterval:   getEnvAsDuration(EnvPollInterval, def.PollInterval),
		ReconnectDelay: getEnvAsDuration(EnvReconnectDelay, def.ReconnectDelay),
		MaxRetries:     getEnvAsInt(EnvMaxRetries, def.MaxRetries),
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("1500ms") or whole seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
