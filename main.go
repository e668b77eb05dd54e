package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"

	"research-cli/internal/api"
	"research-cli/internal/chat"
	"research-cli/internal/citation"
	"research-cli/internal/config"
	"research-cli/internal/connection"
	"research-cli/internal/display"
	"research-cli/internal/jobstate"
	"research-cli/internal/logging"
	"research-cli/internal/protocol"
	"research-cli/internal/report"
	"research-cli/internal/service"
	"research-cli/internal/tui"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		display.Error(err.Error())
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	a := &app{out: out}
	return &cli.Command{
		Name:    "research",
		Usage:   "Research companies and chat about the report",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "profile",
				Usage: "configuration profile to use",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file to load",
				Value: ".env",
			},
		},
		Action: a.interactive,
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Submit a research job and follow its progress",
				ArgsUsage: "<company>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "company website"},
					&cli.StringFlag{Name: "industry", Usage: "company industry"},
					&cli.StringFlag{Name: "hq", Usage: "headquarters location"},
					&cli.BoolFlag{Name: "detach", Usage: "submit without tracking"},
					&cli.BoolFlag{Name: "tui", Usage: "track in the interactive UI"},
				},
				Action: a.start,
			},
			{
				Name:      "track",
				Usage:     "Follow a running job (defaults to the last one)",
				ArgsUsage: "[job-id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "tui", Usage: "track in the interactive UI"},
				},
				Action: a.track,
			},
			{
				Name:      "status",
				Usage:     "Show the current status of a job",
				ArgsUsage: "[job-id]",
				Action:    a.status,
			},
			{
				Name:      "report",
				Usage:     "Print or export the final report",
				ArgsUsage: "[job-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "export", Usage: "write the report to a markdown file (\"-\" picks a name)"},
					&cli.BoolFlag{Name: "raw", Usage: "print the markdown source"},
					&cli.BoolFlag{Name: "blocks", Usage: "print the citable blocks with their ids"},
				},
				Action: a.report,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about a job's report",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "job", Aliases: []string{"j"}, Usage: "job id (defaults to the last one)"},
				},
				Action: a.ask,
			},
			{
				Name:   "config",
				Usage:  "Show the active configuration",
				Action: a.config,
			},
			{
				Name:      "set",
				Usage:     "Set a configuration value",
				ArgsUsage: "<key> <value>",
				Action:    a.set,
			},
			{
				Name:   "profiles",
				Usage:  "List configuration profiles",
				Action: a.profiles,
			},
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(a.out, "research %s\n", version)
					return nil
				},
			},
		},
	}
}

// app carries what every command action shares.
type app struct {
	out io.Writer
}

// env loads the active profile, overlays the environment and sets up logging.
// The returned func closes the log file.
func (a *app) env(cmd *cli.Command, mode logging.Mode) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(cmd.String("profile"))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.ApplyEnv(cmd.String("env")); err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := logging.Setup(cfg.Runtime, mode)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, func() { _ = closeLog() }, nil
}

// ─── interactive ────────────────────────────────────────────────────────────

func (a *app) interactive(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() > 0 {
		return fmt.Errorf("unknown command: %s (run research --help)", cmd.Args().First())
	}
	return a.runTUI(cmd, "")
}

func (a *app) runTUI(cmd *cli.Command, jobID string) error {
	cfg, logger, done, err := a.env(cmd, logging.ModeTUI)
	if err != nil {
		return err
	}
	defer done()
	return tui.Run(version, cfg, jobID, logger)
}

// ─── start ──────────────────────────────────────────────────────────────────

func (a *app) start(ctx context.Context, cmd *cli.Command) error {
	company := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if company == "" {
		return fmt.Errorf("usage: research start <company> [--url <site>] [--industry <name>] [--hq <location>]")
	}

	cfg, logger, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()
	if err := cfg.Validate(); err != nil {
		return err
	}

	client := api.NewClient(cfg)
	resp, err := client.SubmitResearch(ctx, api.ResearchRequest{
		Company:    company,
		CompanyURL: cmd.String("url"),
		Industry:   cmd.String("industry"),
		HQLocation: cmd.String("hq"),
	})
	if err != nil {
		return fmt.Errorf("submitting research: %w", err)
	}
	if resp.JobID == "" {
		return fmt.Errorf("server accepted the request but returned no job id")
	}
	logger.Info("research submitted", slog.String("job_id", resp.JobID), slog.String("company", company))

	if err := cfg.RememberJob(resp.JobID, company); err != nil {
		logger.Warn("could not remember job", slog.Any("error", err))
	}
	display.Success(fmt.Sprintf("Research started for %s", company))
	display.Info("Job:", resp.JobID)

	switch {
	case cmd.Bool("detach"):
		fmt.Fprintf(a.out, "\n  %sTip:%s Run %sresearch track%s to follow it.\n\n", display.Dim, display.Reset, display.Cyan, display.Reset)
		return nil
	case cmd.Bool("tui"):
		done()
		return a.runTUI(cmd, resp.JobID)
	}
	return a.follow(ctx, client, cfg, resp.JobID, company, logger)
}

// ─── track ──────────────────────────────────────────────────────────────────

func (a *app) track(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("tui") {
		cfg, err := config.Load(cmd.String("profile"))
		if err != nil {
			return err
		}
		if err := cfg.ApplyEnv(cmd.String("env")); err != nil {
			return err
		}
		jobID, err := cfg.ResolveJob(cmd.Args().First())
		if err != nil {
			return err
		}
		return a.runTUI(cmd, jobID)
	}

	cfg, logger, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()
	jobID, err := cfg.ResolveJob(cmd.Args().First())
	if err != nil {
		return err
	}
	return a.follow(ctx, api.NewClient(cfg), cfg, jobID, companyFor(cfg, jobID), logger)
}

// follow tracks a job on one status line until it completes or fails.
func (a *app) follow(ctx context.Context, client *api.Client, cfg *config.Config, jobID, company string, logger *slog.Logger) error {
	machine := jobstate.NewMachine(jobID, company, logger)
	opts := connection.DefaultOptions()
	opts.ReconnectDelay = cfg.Runtime.ReconnectDelay
	opts.PollInterval = cfg.Runtime.PollInterval
	opts.MaxRetries = cfg.Runtime.MaxRetries
	opts.Logger = logger
	mgr := connection.New(connection.NewWebSocketDialer(client.WebSocketURL), client, opts)
	defer mgr.Close()

	if err := mgr.Open(ctx, jobID); err != nil {
		return fmt.Errorf("tracking job: %w", err)
	}

	fmt.Fprintln(a.out)
	phase := jobstate.PhaseIdle
	line := ""
	for {
		select {
		case <-ctx.Done():
			display.ClearLine()
			display.Warn("Stopped tracking. Run research track to resume.")
			return nil
		case u, ok := <-mgr.Updates():
			if !ok {
				display.ClearLine()
				if mgr.State() == connection.StateClosedFailed {
					return fmt.Errorf("lost contact with job %s", jobID)
				}
				return nil
			}

			switch u := u.(type) {
			case connection.EventUpdate:
				machine.Apply(u.Event)
			case connection.AdvisoryUpdate:
				if machine.Advise(u.Advisory) {
					display.ClearLine()
					fmt.Fprintln(a.out, display.AdvisoryLine(u.Advisory))
				}
			case connection.StateUpdate:
				logger.Debug("connection state", slog.String("from", u.From.String()), slog.String("to", u.To.String()))
			}

			job := machine.State()
			if job.Phase != phase {
				display.ClearLine()
				if job.Phase != jobstate.PhaseFailed {
					fmt.Fprintf(a.out, "  %s\n", display.PhaseLabel(job.Phase))
				}
				phase = job.Phase
			}

			switch {
			case job.IsComplete:
				display.ClearLine()
				display.Success(fmt.Sprintf("Report ready for %s", orUnknown(job.Company)))
				fmt.Fprintf(a.out, "\n  %sTip:%s Run %sresearch report%s to read it, or %sresearch ask \"...\"%s to ask about it.\n\n",
					display.Dim, display.Reset, display.Cyan, display.Reset, display.Cyan, display.Reset)
				return nil
			case job.Failed():
				display.ClearLine()
				return fmt.Errorf("research failed: %s", job.Error.OrElse("unknown error"))
			}

			if next := service.ProgressLine(job); next != line {
				line = next
				display.ClearLine()
				display.Spinner(line)
			}
		}
	}
}

// ─── status ─────────────────────────────────────────────────────────────────

func (a *app) status(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()
	jobID, err := cfg.ResolveJob(cmd.Args().First())
	if err != nil {
		return err
	}

	snap, err := api.NewClient(cfg).JobSnapshot(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	job := jobFromSnapshot(jobID, companyFor(cfg, jobID), snap, logger)

	display.Header("Job " + jobID)
	display.Info("Company:", orUnknown(job.Company))
	display.Info("Phase:", display.PhaseLabel(job.Phase))
	if msg := job.StatusMessage; msg != "" {
		display.Info("Status:", msg)
	}
	fmt.Fprintln(a.out)
	return service.WriteStatusTable(a.out, service.FormatJob(job))
}

// jobFromSnapshot folds a single polled snapshot into a job.
func jobFromSnapshot(jobID, company string, snap protocol.Snapshot, logger *slog.Logger) jobstate.Job {
	if company == "" {
		company = snap.Company
	}
	m := jobstate.NewMachine(jobID, company, logger)
	for _, ev := range connection.SnapshotEvents(snap) {
		m.Apply(ev)
	}
	job := m.State()
	if job.StatusMessage == "" {
		job.StatusMessage = snap.Message
	}
	return job
}

// ─── report ─────────────────────────────────────────────────────────────────

func (a *app) report(ctx context.Context, cmd *cli.Command) error {
	cfg, _, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()
	jobID, err := cfg.ResolveJob(cmd.Args().First())
	if err != nil {
		return err
	}

	text, err := api.NewClient(cfg).Report(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetching report: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		display.Warn("The report is not ready yet.")
		return nil
	}

	if path := cmd.String("export"); path != "" {
		job := jobstate.NewJob(jobID, companyFor(cfg, jobID))
		job.Report = text
		return a.export(job, path)
	}

	switch {
	case cmd.Bool("raw"):
		fmt.Fprintln(a.out, text)
	case cmd.Bool("blocks"):
		printBlocks(a.out, report.Segment(text))
	default:
		rendered, err := glamour.Render(text, "auto")
		if err != nil {
			rendered = display.RenderMarkdown(text)
		}
		fmt.Fprint(a.out, rendered)
	}
	return nil
}

func (a *app) export(job jobstate.Job, path string) error {
	label, body := service.ExportMarkdown(job)
	if path == "-" {
		path = service.ExportFileName(label)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	display.Success("Report saved to " + path)
	return nil
}

func printBlocks(w io.Writer, blocks []report.Block) {
	for _, b := range blocks {
		fmt.Fprintf(w, "%s%s%s\n", display.Bold+display.Cyan, b.ID, display.Reset)
		for _, line := range strings.Split(b.Text, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
		fmt.Fprintln(w)
	}
}

// ─── ask ────────────────────────────────────────────────────────────────────

func (a *app) ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("usage: research ask <question> [--job <id>]")
	}

	cfg, logger, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()
	jobID, err := cfg.ResolveJob(cmd.String("job"))
	if err != nil {
		return err
	}
	client := api.NewClient(cfg)

	var idx *report.Index
	if text, err := client.Report(ctx, jobID); err != nil {
		logger.Debug("report unavailable for citations", slog.Any("error", err))
	} else {
		idx = report.NewIndex(report.Segment(text))
	}

	fmt.Fprintln(a.out)
	res, err := streamAnswer(ctx, a.out, client, chat.NewSession(jobID), question, idx)
	fmt.Fprintln(a.out)
	switch {
	case errors.Is(err, context.Canceled):
		display.Warn("Answer cancelled")
		return nil
	case err != nil:
		display.Warn(api.ErrorMessage(err))
		return nil
	}
	printSources(a.out, res, idx)
	return nil
}

// streamAnswer prints the answer line by line as it streams, numbering
// citations in order of first appearance.
func streamAnswer(ctx context.Context, w io.Writer, st chat.Streamer, session *chat.Session, question string, idx *report.Index) (citation.Resolution, error) {
	var numbering citation.Numbering
	md := display.NewMarkdownPrinter(w)
	md.Inline = func(line string) string {
		return numbering.Render(line, idx, citation.Bracketed)
	}

	printed := 0
	final, err := session.Ask(ctx, st, question, func(m chat.Message) {
		if m.Failed || len(m.Content) <= printed {
			return
		}
		md.Write(m.Content[printed:])
		printed = len(m.Content)
	})
	if final.Failed {
		if printed > 0 {
			md.Write("\n")
		}
		md.Write(final.Content)
	}
	md.Flush()
	return citation.Resolution{Order: numbering.Order()}, err
}

func printSources(w io.Writer, res citation.Resolution, idx *report.Index) {
	if len(res.Order) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%sSources:%s\n", display.Dim, display.Reset)
	for i, id := range res.Order {
		if b, ok := idx.Get(id); ok {
			fmt.Fprintf(w, "  [%d] %s %s%s%s\n", i+1, id, display.Dim, firstLine(b.Text), display.Reset)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s %s(not in the report)%s\n", i+1, id, display.Dim, display.Reset)
	}
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimLeft(line, "#>-* ")
	if r := []rune(line); len(r) > 60 {
		line = string(r[:59]) + "…"
	}
	return line
}

// ─── config ─────────────────────────────────────────────────────────────────

func (a *app) config(ctx context.Context, cmd *cli.Command) error {
	cfg, _, done, err := a.env(cmd, logging.ModeCLI)
	if err != nil {
		return err
	}
	defer done()

	display.Header("Research CLI Configuration")
	display.Info("Profile:", config.ProfileName(cfg.Profile))
	display.Info("Server:", cfg.Server)
	display.Info("Last Job:", orNone(cfg.LastJob))
	display.Info("Last Company:", orNone(cfg.LastCompany))
	display.Info("Poll Interval:", cfg.Runtime.PollInterval.String())
	display.Info("Reconnect Delay:", cfg.Runtime.ReconnectDelay.String())
	display.Info("Max Retries:", fmt.Sprint(cfg.Runtime.MaxRetries))
	display.Info("Log Level:", cfg.Runtime.LogLevel)
	fmt.Fprintln(a.out)
	return nil
}

// ─── set ────────────────────────────────────────────────────────────────────

func (a *app) set(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 2 {
		fmt.Fprintln(a.out, "Usage: research set <key> <value>")
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "Keys:")
		fmt.Fprintln(a.out, "  server   Research server URL  (e.g. http://localhost:8000)")
		fmt.Fprintln(a.out, "  job      Job id used when commands omit one")
		return nil
	}

	// The profile file is edited without the environment overlay so that
	// RESEARCH_* values are never persisted.
	cfg, err := config.Load(cmd.String("profile"))
	if err != nil {
		return err
	}

	key, value := cmd.Args().Get(0), cmd.Args().Get(1)
	switch key {
	case "server":
		cfg.Server = strings.TrimRight(value, "/")
		if err := cfg.Validate(); err != nil {
			return err
		}
	case "job":
		cfg.LastJob = value
		cfg.LastCompany = ""
	default:
		return fmt.Errorf("unknown config key: %s (valid: server, job)", key)
	}

	if err := cfg.Save(); err != nil {
		return err
	}
	display.Success(fmt.Sprintf("%s set to %s", key, value))
	return nil
}

// ─── profiles ───────────────────────────────────────────────────────────────

func (a *app) profiles(ctx context.Context, cmd *cli.Command) error {
	names, err := config.ListProfiles()
	if err != nil {
		return err
	}
	active := cmd.String("profile")

	display.Header("Profiles")
	for _, name := range names {
		marker := "  "
		if name == config.ProfileName(active) {
			marker = display.Green + "* " + display.Reset
		}
		fmt.Fprintf(a.out, "%s%s\n", marker, name)
	}
	if len(names) == 0 {
		fmt.Fprintf(a.out, "  %sNo profiles yet. Run research set server <url>.%s\n", display.Dim, display.Reset)
	}
	fmt.Fprintln(a.out)
	return nil
}

// ─── helpers ────────────────────────────────────────────────────────────────

// companyFor returns the remembered company when jobID is the last job.
func companyFor(cfg *config.Config, jobID string) string {
	if jobID == cfg.LastJob {
		return cfg.LastCompany
	}
	return ""
}

func orNone(s string) string {
	if s == "" {
		return display.Dim + "(none)" + display.Reset
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown company"
	}
	return s
}
