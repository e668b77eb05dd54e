package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Server: "http://localhost:8000"},
			wantErr: false,
		},
		{
			name:    "https server",
			cfg:     Config{Server: "https://research.example.com"},
			wantErr: false,
		},
		{
			name:    "missing server",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name:    "websocket scheme",
			cfg:     Config{Server: "ws://localhost:8000"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveJob(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		arg     string
		want    string
		wantErr bool
	}{
		{
			name: "explicit id wins",
			cfg:  Config{Server: "http://localhost", LastJob: "old"},
			arg:  "new",
			want: "new",
		},
		{
			name: "falls back to last job",
			cfg:  Config{Server: "http://localhost", LastJob: "old"},
			want: "old",
		},
		{
			name:    "nothing to track",
			cfg:     Config{Server: "http://localhost"},
			wantErr: true,
		},
		{
			name:    "missing server (fails Validate first)",
			cfg:     Config{LastJob: "old"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveJob(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveJob() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadSave(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	original := &Config{
		Server:      "http://example.com",
		LastJob:     "job-123",
		LastCompany: "Acme",
	}

	if err := original.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(tmpDir, configDir, configFile)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file permissions = %o, want 0600", perm)
	}

	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Server != original.Server {
		t.Errorf("Server = %q, want %q", loaded.Server, original.Server)
	}
	if loaded.LastJob != original.LastJob {
		t.Errorf("LastJob = %q, want %q", loaded.LastJob, original.LastJob)
	}
	if loaded.LastCompany != original.LastCompany {
		t.Errorf("LastCompany = %q, want %q", loaded.LastCompany, original.LastCompany)
	}
	if loaded.Runtime.PollInterval != 5*time.Second {
		t.Errorf("Runtime.PollInterval = %v, want default", loaded.Runtime.PollInterval)
	}
}

func TestLoadMissing(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() on missing config returned error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.Server != "" || cfg.LastJob != "" {
		t.Errorf("Load() on missing config returned non-empty fields: %+v", cfg)
	}
	if cfg.Runtime.MaxRetries != 3 {
		t.Errorf("Runtime.MaxRetries = %d, want 3", cfg.Runtime.MaxRetries)
	}
}

func TestLoadSaveProfile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	original := &Config{
		Server:  "http://staging.example.com",
		LastJob: "staging-job",
		Profile: "staging",
	}

	if err := original.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	path := filepath.Join(tmpDir, configDir, "config-staging.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("profile config file not created at %s: %v", path, err)
	}

	defaultPath := filepath.Join(tmpDir, configDir, configFile)
	if _, err := os.Stat(defaultPath); err == nil {
		t.Error("default config file should not exist")
	}

	loaded, err := Load("staging")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server != original.Server {
		t.Errorf("Server = %q, want %q", loaded.Server, original.Server)
	}
	if loaded.Profile != "staging" {
		t.Errorf("Profile = %q, want %q", loaded.Profile, "staging")
	}

	profiles, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 1 || profiles[0] != "staging" {
		t.Errorf("ListProfiles() = %v, want [staging]", profiles)
	}
}

func TestRememberJob(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := &Config{Server: "http://a.com", Profile: "a"}
	if err := cfg.RememberJob("job-9", "Globex"); err != nil {
		t.Fatalf("RememberJob() error = %v", err)
	}

	loaded, err := Load("a")
	if err != nil {
		t.Fatalf("Load(a) error = %v", err)
	}
	if loaded.LastJob != "job-9" || loaded.LastCompany != "Globex" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestRememberJobKeepsProfileServer(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	saved := &Config{Server: "https://prod.example.com", Profile: "prod"}
	if err := saved.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tests := []struct {
		name      string
		envServer string
		profile   string
		want      string
	}{
		{"env override", "http://localhost:9999", "prod", "https://prod.example.com"},
		{"default server", "", "fresh", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvServer, tt.envServer)

			cfg, err := Load(tt.profile)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.ApplyEnv(""); err != nil {
				t.Fatalf("ApplyEnv() error = %v", err)
			}
			if err := cfg.RememberJob("job-7", "Initech"); err != nil {
				t.Fatalf("RememberJob() error = %v", err)
			}
			if cfg.LastJob != "job-7" {
				t.Errorf("in-memory LastJob = %q", cfg.LastJob)
			}

			loaded, err := Load(tt.profile)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Server != tt.want {
				t.Errorf("profile server after RememberJob = %q, want %q", loaded.Server, tt.want)
			}
			if loaded.LastJob != "job-7" || loaded.LastCompany != "Initech" {
				t.Errorf("loaded = %+v", loaded)
			}
		})
	}
}

func TestProfileName(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{"", "default"},
		{"staging", "staging"},
		{"prod", "prod"},
	}
	for _, tt := range tests {
		got := ProfileName(tt.profile)
		if got != tt.want {
			t.Errorf("ProfileName(%q) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestValidateProfileHint(t *testing.T) {
	cfg := Config{Profile: "staging"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	want := "--profile staging"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Errorf("Validate() error = %q, should contain %q", got, want)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvServer, "http://env.example.com")
	t.Setenv(EnvPollInterval, "250ms")
	t.Setenv(EnvReconnectDelay, "7")
	t.Setenv(EnvMaxRetries, "not-a-number")
	t.Setenv(EnvLogLevel, "debug")

	cfg := &Config{Server: "http://profile.example.com"}
	if err := cfg.ApplyEnv(""); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Server != "http://env.example.com" {
		t.Errorf("Server = %q, want env override", cfg.Server)
	}
	if cfg.Runtime.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Runtime.PollInterval)
	}
	if cfg.Runtime.ReconnectDelay != 7*time.Second {
		t.Errorf("ReconnectDelay = %v", cfg.Runtime.ReconnectDelay)
	}
	if cfg.Runtime.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default for invalid value", cfg.Runtime.MaxRetries)
	}
	if cfg.Runtime.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Runtime.LogLevel)
	}
}

func TestApplyEnvDefaultServer(t *testing.T) {
	t.Setenv(EnvServer, "")
	cfg := &Config{}
	if err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("ApplyEnv() with missing file error = %v", err)
	}
	if cfg.Server != DefaultServer {
		t.Errorf("Server = %q, want %q", cfg.Server, DefaultServer)
	}
}

func TestApplyEnvFile(t *testing.T) {
	os.Unsetenv(EnvLogFile)
	t.Cleanup(func() { os.Unsetenv(EnvLogFile) })

	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte(EnvLogFile+"=/tmp/research-test.log\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Server: "http://localhost"}
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Runtime.LogFile != "/tmp/research-test.log" {
		t.Errorf("LogFile = %q, want value from env file", cfg.Runtime.LogFile)
	}
}
