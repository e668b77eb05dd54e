package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const configDir = ".research"
const configFile = "config.json"

// DefaultServer is the research backend used when nothing else is configured.
const DefaultServer = "http://localhost:8000"

type Config struct {
	Server      string  `json:"server"`
	LastJob     string  `json:"last_job,omitempty"`
	LastCompany string  `json:"last_company,omitempty"`
	Profile     string  `json:"-"`
	Runtime     Runtime `json:"-"`
}

// Dir returns the directory holding profiles and the TUI log file.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, configDir), nil
}

func configPath(profile string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	filename := configFile
	if profile != "" {
		filename = fmt.Sprintf("config-%s.json", profile)
	}
	return filepath.Join(dir, filename), nil
}

// Load reads the profile file. A missing file yields an empty config with
// default runtime settings.
func Load(profile string) (*Config, error) {
	path, err := configPath(profile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Profile: profile, Runtime: DefaultRuntime()}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Profile = profile
	return cfg, nil
}

func (c *Config) Save() error {
	path, err := configPath(c.Profile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// RememberJob records the most recent job so later commands can omit its id.
// Only the job fields of the profile file change; values c picked up from
// the environment are not written.
func (c *Config) RememberJob(jobID, company string) error {
	c.LastJob = jobID
	c.LastCompany = company

	stored, err := Load(c.Profile)
	if err != nil {
		return err
	}
	stored.LastJob = jobID
	stored.LastCompany = company
	return stored.Save()
}

func (c *Config) profileFlag() string {
	if c.Profile == "" {
		return ""
	}
	return " --profile " + c.Profile
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server not set. Run: research%s set server <url>", c.profileFlag())
	}
	if !strings.HasPrefix(c.Server, "http://") && !strings.HasPrefix(c.Server, "https://") {
		return fmt.Errorf("server %q must start with http:// or https://", c.Server)
	}
	return nil
}

// ResolveJob returns jobID, or the last tracked job when jobID is empty.
func (c *Config) ResolveJob(jobID string) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	if jobID != "" {
		return jobID, nil
	}
	if c.LastJob == "" {
		return "", fmt.Errorf("no job to track. Run: research%s start <company>", c.profileFlag())
	}
	return c.LastJob, nil
}

func ListProfiles() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config directory: %w", err)
	}
	var profiles []string
	for _, e := range entries {
		name := e.Name()
		if name == configFile {
			profiles = append(profiles, "default")
			continue
		}
		if strings.HasPrefix(name, "config-") && strings.HasSuffix(name, ".json") {
			profiles = append(profiles, strings.TrimSuffix(strings.TrimPrefix(name, "config-"), ".json"))
		}
	}
	return profiles, nil
}

func ProfileName(profile string) string {
	if profile == "" {
		return "default"
	}
	return profile
}
