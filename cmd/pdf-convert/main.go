package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	cli "github.com/urfave/cli/v3"

	"github.com/taji/gm-kit/internal/agent"
	"github.com/taji/gm-kit/internal/cleanup"
	"github.com/taji/gm-kit/internal/diagnose"
	"github.com/taji/gm-kit/internal/docs"
	"github.com/taji/gm-kit/internal/extract"
	"github.com/taji/gm-kit/internal/hierarchy"
	"github.com/taji/gm-kit/internal/images"
	"github.com/taji/gm-kit/internal/phase"
	"github.com/taji/gm-kit/internal/preflight"
	"github.com/taji/gm-kit/internal/report"
	"github.com/taji/gm-kit/internal/settings"
	"github.com/taji/gm-kit/internal/state"
	"github.com/taji/gm-kit/internal/structure"
	"github.com/taji/gm-kit/internal/tocfonts"
	"github.com/taji/gm-kit/internal/ux"
)

func main() {
	app := &cli.Command{
		Name:        "pdf-convert",
		Usage:       "Convert tabletop-RPG PDFs to structured Markdown",
		ArgsUsage:   "<pdf-path> | <output-dir> (with --resume/--phase/--from-step/--status)",
		Description: "Run 'pdf-convert docs' for documentation on the pipeline, markers, labels, and resuming.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Usage: "Output directory (default: <name>-converted)"},
			&cli.BoolFlag{Name: "diagnostics", Usage: "Verbose diagnostics to stderr"},
			&cli.BoolFlag{Name: "yes", Usage: "Non-interactive: auto-confirm all prompts"},
			&cli.StringSliceFlag{Name: "gm-keyword", Usage: "Extra GM callout trigger phrase (repeatable)"},
			&cli.StringFlag{Name: "gm-callout-config-file", Usage: "Callout boundary config to copy into the workspace"},
			&cli.BoolFlag{Name: "resume", Usage: "Resume the conversion in <output-dir>"},
			&cli.IntFlag{Name: "phase", Value: -1, Usage: "Re-run a single phase (0-10) in <output-dir>"},
			&cli.StringFlag{Name: "from-step", Usage: "Re-run from step N.M in <output-dir>"},
			&cli.BoolFlag{Name: "status", Usage: "Show conversion status for <output-dir>"},
		},
		Commands: []*cli.Command{
			doctorCmd(),
			docsCmd(),
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		exit(err)
	}
}

// exit maps an error to its contract exit code and stream.
func exit(err error) {
	var perr *phase.Error
	if errors.As(err, &perr) {
		if perr.Code == phase.ExitUserAbort {
			ux.AbortMsg(perr.Message)
		} else {
			ux.ErrorMsg(perr.Message)
			if perr.Suggestion != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", perr.Suggestion)
			}
		}
		os.Exit(perr.Code)
	}
	if errors.Is(err, context.Canceled) {
		ux.AbortMsg(phase.MsgUserAborted)
		os.Exit(phase.ExitUserAbort)
	}
	fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
	os.Exit(phase.ExitFileError)
}

func run(ctx context.Context, cmd *cli.Command) error {
	modes := 0
	for _, set := range []bool{cmd.Bool("resume"), cmd.Int("phase") >= 0, cmd.String("from-step") != "", cmd.Bool("status")} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return phase.Errf(phase.ExitFileError, nil,
			"ERROR: --resume, --phase, --from-step and --status are mutually exclusive", "pick one mode")
	}

	arg := cmd.Args().First()
	if arg == "" {
		return phase.Errf(phase.ExitFileError, nil, "ERROR: Missing argument", "see pdf-convert --help")
	}

	switch {
	case cmd.Bool("status"):
		return runStatus(arg)
	case cmd.Bool("resume"):
		return runResume(ctx, cmd, arg)
	case cmd.Int("phase") >= 0:
		return runPhaseMode(ctx, cmd, arg, int(cmd.Int("phase")))
	case cmd.String("from-step") != "":
		return runFromStep(ctx, cmd, arg, cmd.String("from-step"))
	}
	return runConvert(ctx, cmd, arg)
}

func runStatus(outputDir string) error {
	st, err := loadState(outputDir)
	if err != nil {
		return err
	}
	ux.RenderStatus(st)
	return nil
}

func runConvert(ctx context.Context, cmd *cli.Command, pdfPath string) error {
	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return phase.Errf(phase.ExitFileError, err, phase.MsgCannotOpenPDF, "check the path")
	}

	defaults, err := settings.Load(".")
	if err != nil {
		return phase.Errf(phase.ExitFileError, err, "ERROR: Invalid settings file", "fix or remove "+settings.FileName)
	}

	name := phase.SanitizeName(abs)
	outputDir := cmd.String("output")
	if outputDir == "" {
		outputDir = name + "-converted"
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return phase.Errf(phase.ExitFileError, err, "ERROR: Cannot create output directory", "check permissions")
	}

	cfg := state.Config{
		Diagnostics:       cmd.Bool("diagnostics") || defaults.Diagnostics,
		NonInteractive:    cmd.Bool("yes") || defaults.Yes,
		CalloutConfigPath: firstNonEmpty(cmd.String("gm-callout-config-file"), defaults.CalloutConfigFile),
		GMKeywords:        append(defaults.GMKeywords, cmd.StringSlice("gm-keyword")...),
	}

	confirm := newConfirmer(cfg.NonInteractive)

	// An unfinished prior conversion in the same directory: resume it,
	// start over, or walk away.
	if state.Exists(outputDir) {
		prev, err := state.Load(outputDir)
		if err == nil && prev.Status != state.StatusCompleted {
			resume, cerr := confirm.Confirm(fmt.Sprintf(
				"An unfinished conversion exists in %s.\nResume it? (answering n offers a fresh start)", outputDir))
			if cerr != nil {
				return cerr
			}
			if resume {
				return runResume(ctx, cmd, outputDir)
			}
			fresh, cerr := confirm.Confirm("Overwrite the previous conversion and start over?")
			if cerr != nil {
				return cerr
			}
			if !fresh {
				return phase.Abort()
			}
			os.Remove(state.Path(outputDir))
		}
	}

	st := state.New(abs, outputDir, cfg)
	return execute(ctx, st, confirm, cmd.Bool("diagnostics") || defaults.Diagnostics, func(e *phase.Engine) error {
		return e.Run(ctx)
	})
}

func runResume(ctx context.Context, cmd *cli.Command, outputDir string) error {
	st, err := loadState(outputDir)
	if err != nil {
		return err
	}
	if st.Status == state.StatusCompleted {
		ux.Info("Conversion already completed; nothing to resume.")
		return nil
	}
	if _, err := os.Stat(filepath.FromSlash(st.PDFPath)); err != nil {
		return phase.Errf(phase.ExitStateError, err,
			"ERROR: Source PDF recorded in state no longer exists", "restore "+st.PDFPath+" and retry")
	}
	if missing := st.CheckOutputs(); len(missing) > 0 {
		return phase.Errf(phase.ExitStateError, nil,
			fmt.Sprintf("%s %d", phase.MsgMissingOutput, missing[0]),
			fmt.Sprintf("re-run phase %d", missing[0]))
	}
	if pid, stale := state.StaleHolder(outputDir); stale && st.Status == state.StatusInProgress {
		ux.Warning(fmt.Sprintf("WARNING: Stale lock from dead process %d - taking over", pid))
	}
	st.Status = state.StatusInProgress
	st.Error = nil
	confirm := newConfirmer(st.Config.NonInteractive)
	return execute(ctx, st, confirm, st.Config.Diagnostics, func(e *phase.Engine) error {
		return e.Run(ctx)
	})
}

func runPhaseMode(ctx context.Context, cmd *cli.Command, outputDir string, n int) error {
	st, err := loadState(outputDir)
	if err != nil {
		return err
	}
	confirm := newConfirmer(st.Config.NonInteractive)
	return execute(ctx, st, confirm, st.Config.Diagnostics, func(e *phase.Engine) error {
		return e.RunSingle(ctx, n)
	})
}

func runFromStep(ctx context.Context, cmd *cli.Command, outputDir, stepID string) error {
	if _, _, err := phase.ParseStepID(stepID); err != nil {
		return err
	}
	st, err := loadState(outputDir)
	if err != nil {
		return err
	}
	confirm := newConfirmer(st.Config.NonInteractive)
	return execute(ctx, st, confirm, st.Config.Diagnostics, func(e *phase.Engine) error {
		return e.RunFrom(ctx, stepID)
	})
}

// execute acquires the conversion lock, assembles the engine, and runs
// the requested operation.
func execute(ctx context.Context, st *state.Conversion, confirm phase.Confirmer, diagnostics bool, op func(*phase.Engine) error) error {
	lock, err := state.AcquireLock(ctx, st.OutputDir)
	if err != nil {
		return phase.Errf(phase.ExitStateError, err,
			"ERROR: Another conversion is running in this directory", "wait for it or pick another output directory")
	}
	defer lock.Release()

	logger := log.New(os.Stderr)
	logger.SetPrefix("pdf-convert")
	if diagnostics {
		logger.SetLevel(log.DebugLevel)
	}

	env := &phase.Env{
		PDFPath:   filepath.FromSlash(st.PDFPath),
		OutputDir: st.OutputDir,
		DocName:   phase.SanitizeName(st.PDFPath),
		State:     st,
		Confirm:   confirm,
		Agent:     agent.Stub{},
		Log:       logger,
	}
	engine := &phase.Engine{
		Phases: []phase.Phase{
			preflight.New(),
			images.NewExtract(),
			images.NewRemove(),
			tocfonts.New(),
			extract.New(),
			cleanup.NewChar(),
			cleanup.NewWord(),
			structure.New(),
			hierarchy.New(),
			report.NewLint(),
			report.NewReport(),
		},
		Env: env,
	}
	if err := st.Save(); err != nil {
		return phase.Errf(phase.ExitPDFError, err, phase.MsgDiskFull, "free disk space")
	}
	return op(engine)
}

func loadState(outputDir string) (*state.Conversion, error) {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, err
	}
	if !state.Exists(abs) {
		return nil, phase.Errf(phase.ExitStateError, nil,
			"ERROR: No conversion state found in "+abs, "run pdf-convert <pdf-path> first")
	}
	st, err := state.Load(abs)
	if err != nil {
		return nil, phase.Errf(phase.ExitStateError, err, phase.MsgStateCorrupt, "delete .state.json and start over")
	}
	return st, nil
}

func newConfirmer(nonInteractive bool) phase.Confirmer {
	if nonInteractive {
		return phase.AutoConfirmer{}
	}
	return ux.NewStdinConfirmer()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:      "doctor",
		Usage:     "Diagnose a failed conversion and write a diagnostic bundle",
		ArgsUsage: "<output-dir>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.Args().First()
			if dir == "" {
				return fmt.Errorf("output directory argument is required")
			}
			return diagnose.Run(dir)
		},
	}
}

func docsCmd() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "Show documentation",
		ArgsUsage: "[topic]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				fmt.Print("\nAvailable topics:\n\n")
				for _, t := range docs.All() {
					fmt.Printf("  %-10s %s\n", t.Name, t.Summary)
				}
				fmt.Println("\nRun 'pdf-convert docs <topic>' to read a topic.")
				return nil
			}
			t, err := docs.Get(name)
			if err != nil {
				return err
			}
			fmt.Print(t.Content)
			return nil
		},
	}
}
