package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/mo"

	"research-cli/internal/api"
	"research-cli/internal/chat"
	"research-cli/internal/config"
	"research-cli/internal/jobstate"
	"research-cli/internal/logging"
	"research-cli/internal/protocol"
	"research-cli/internal/report"
)

// isolate points the config directory at a temp HOME and clears the
// environment overlay.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{config.EnvServer, config.EnvLogFile, config.EnvPollInterval, config.EnvReconnectDelay, config.EnvMaxRetries} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{"research", "--env", "missing.env"}, args...))
	return out.String(), err
}

const sampleReport = "# Acme Corp\n\nAcme makes anvils.\n\n## Financials\n\nRevenue grew 12%.\n\n## News\n\nA new CEO was named."

func TestCommandTree(t *testing.T) {
	app := newApp(&bytes.Buffer{})
	want := []string{"start", "track", "status", "report", "ask", "config", "set", "profiles", "version"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "research "+version {
		t.Errorf("version output = %q", out)
	}
}

func TestSetCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "server",
			args: []string{"set", "server", "http://research.local:8000/"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Server != "http://research.local:8000" {
					t.Errorf("Server = %q", cfg.Server)
				}
			},
		},
		{
			name:    "server without scheme",
			args:    []string{"set", "server", "research.local"},
			wantErr: "must start with http",
		},
		{
			name: "job",
			args: []string{"set", "job", "job-42"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.LastJob != "job-42" {
					t.Errorf("LastJob = %q", cfg.LastJob)
				}
			},
		},
		{
			name:    "unknown key",
			args:    []string{"set", "colour", "blue"},
			wantErr: "unknown config key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := run(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			cfg, err := config.Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestSetCommandProfile(t *testing.T) {
	home := isolate(t)
	if _, err := run(t, "--profile", "staging", "set", "server", "https://staging.local"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".research", "config-staging.json")); err != nil {
		t.Fatalf("profile file not written: %v", err)
	}

	out, err := run(t, "--profile", "staging", "profiles")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	if !strings.Contains(out, "staging") {
		t.Errorf("profiles output missing staging:\n%s", out)
	}
}

func TestSetCommandUsage(t *testing.T) {
	isolate(t)
	out, err := run(t, "set", "server")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Usage: research set") {
		t.Errorf("expected usage, got:\n%s", out)
	}
}

func TestCommandsNeedJob(t *testing.T) {
	isolate(t)
	for _, cmd := range []string{"status", "report", "track"} {
		_, err := run(t, cmd)
		if err == nil || !strings.Contains(err.Error(), "research start") {
			t.Errorf("%s without a job: err = %v", cmd, err)
		}
	}
}

func TestStartNeedsCompany(t *testing.T) {
	isolate(t)
	if _, err := run(t, "start"); err == nil || !strings.Contains(err.Error(), "usage") {
		t.Errorf("err = %v", err)
	}
}

// researchServer serves one job's snapshot and report.
func researchServer(t *testing.T, snapshot string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/research/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, snapshot)
	})
	mux.HandleFunc("/research/job-1/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"report":%q}`, sampleReport)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCommand(t *testing.T) {
	isolate(t)
	srv := researchServer(t, `{"job_id":"job-1","status":"completed","company":"Acme Corp","report":"# Acme\n\nDone."}`)
	t.Setenv(config.EnvServer, srv.URL)

	out, err := run(t, "status", "job-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"job-1", "Acme Corp", "complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("status table missing %q:\n%s", want, out)
		}
	}
}

func TestReportCommand(t *testing.T) {
	isolate(t)
	srv := researchServer(t, `{}`)
	t.Setenv(config.EnvServer, srv.URL)

	t.Run("raw", func(t *testing.T) {
		out, err := run(t, "report", "--raw", "job-1")
		if err != nil {
			t.Fatalf("report: %v", err)
		}
		if !strings.Contains(out, "## Financials") {
			t.Errorf("raw report missing markdown:\n%s", out)
		}
	})

	t.Run("blocks", func(t *testing.T) {
		out, err := run(t, "report", "--blocks", "job-1")
		if err != nil {
			t.Fatalf("report: %v", err)
		}
		for _, want := range []string{"b1", "b2", "b3", "Revenue grew"} {
			if !strings.Contains(out, want) {
				t.Errorf("blocks output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "acme.md")
		if _, err := run(t, "report", "--export", path, "job-1"); err != nil {
			t.Fatalf("report: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !strings.HasPrefix(string(data), "# Acme Corp") {
			t.Errorf("exported report = %q", data)
		}
	})
}

func TestJobFromSnapshot(t *testing.T) {
	logger := logging.New(&bytes.Buffer{}, 0)

	tests := []struct {
		name  string
		snap  protocol.Snapshot
		check func(t *testing.T, job jobstate.Job)
	}{
		{
			name: "completed",
			snap: protocol.Snapshot{Status: protocol.StatusCompleted, Company: "Acme Corp", Report: mo.Some("# Acme")},
			check: func(t *testing.T, job jobstate.Job) {
				if !job.IsComplete || job.Report != "# Acme" || job.Company != "Acme Corp" {
					t.Errorf("job = %+v", job)
				}
			},
		},
		{
			name: "failed",
			snap: protocol.Snapshot{Status: protocol.StatusFailed, Error: mo.Some("site unreachable")},
			check: func(t *testing.T, job jobstate.Job) {
				if !job.Failed() || job.Error.OrEmpty() != "site unreachable" {
					t.Errorf("job = %+v", job)
				}
			},
		},
		{
			name: "empty",
			snap: protocol.Snapshot{Message: "Queued"},
			check: func(t *testing.T, job jobstate.Job) {
				if job.Phase != jobstate.PhaseIdle || job.StatusMessage != "Queued" {
					t.Errorf("job = %+v", job)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, jobFromSnapshot("job-1", "", tt.snap, logger))
		})
	}
}

type fakeStreamer struct {
	chunks []string
	err    error
}

func (f *fakeStreamer) StreamChat(ctx context.Context, req api.ChatRequest, onChunk api.ChunkCallback) error {
	for _, c := range f.chunks {
		onChunk(c)
	}
	return f.err
}

func TestStreamAnswer(t *testing.T) {
	idx := report.NewIndex(report.Segment(sampleReport))
	var out bytes.Buffer

	res, err := streamAnswer(context.Background(), &out, &fakeStreamer{
		chunks: []string{"Revenue grew [b", "2].\nA new CEO [b3], see [b2] and [b9]."},
	}, chat.NewSession("job-1"), "How is Acme doing?", idx)
	if err != nil {
		t.Fatalf("streamAnswer: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Revenue grew [1].", "A new CEO [2], see [1] and [3]."} {
		if !strings.Contains(text, want) {
			t.Errorf("answer missing %q:\n%s", want, text)
		}
	}
	if got := strings.Join(res.Order, ","); got != "b2,b3,b9" {
		t.Errorf("order = %s", got)
	}

	var sources bytes.Buffer
	printSources(&sources, res, idx)
	for _, want := range []string{"[1] b2", "Financials", "[3] b9", "not in the report"} {
		if !strings.Contains(sources.String(), want) {
			t.Errorf("sources missing %q:\n%s", want, sources.String())
		}
	}
}

func TestStreamAnswerFailure(t *testing.T) {
	var out bytes.Buffer
	_, err := streamAnswer(context.Background(), &out, &fakeStreamer{
		chunks: []string{"Partial"},
		err:    errors.New("connection reset"),
	}, chat.NewSession("job-1"), "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out.String(), chat.FallbackReply) {
		t.Errorf("fallback reply not printed:\n%s", out.String())
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct{ in, want string }{
		{"## Financials\n\nRevenue", "Financials"},
		{"  plain text  ", "plain text"},
		{strings.Repeat("x", 80), strings.Repeat("x", 59) + "…"},
	}
	for _, tt := range tests {
		if got := firstLine(tt.in); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
