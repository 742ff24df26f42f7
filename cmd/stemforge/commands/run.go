package commands

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/pkg/framework"
	"github.com/stemforge/stemforge/pkg/observability"
	"github.com/stemforge/stemforge/pkg/ports"
	"github.com/stemforge/stemforge/pkg/session"
	"github.com/stemforge/stemforge/pkg/stages"
	"github.com/stemforge/stemforge/pkg/version"
)

// artifactFileMode is the permission for artifacts written by `run`.
const artifactFileMode = 0o644

// NewRunCommand creates the local one-shot job command.
func NewRunCommand() *cobra.Command {
	var (
		configPath string
		outDir     string
		enabled    []string
		preset     string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run <stems-dir>",
		Short: "Run one job locally from a directory of stems",
		Long: `Run the full stage plan over the WAV stems in a directory, without a
queue or a store backend. Artifacts are written next to the invocation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			opts := runOptions{
				configPath: configPath,
				stemsDir:   args[0],
				outDir:     outDir,
				enabled:    enabled,
				preset:     preset,
				verbose:    verbose,
			}

			return runLocal(cobraCmd.Context(), cobraCmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for artifacts")
	cmd.Flags().StringSliceVar(&enabled, "stage", nil, "stage ids to run (default: all, in contract order)")
	cmd.Flags().StringVar(&preset, "preset", "", "style preset recorded in the report")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "per-stage progress on stderr")

	return cmd
}

type runOptions struct {
	configPath string
	stemsDir   string
	outDir     string
	enabled    []string
	preset     string
	verbose    bool
}

// dirArtifactSink writes artifacts as files under a directory.
type dirArtifactSink struct {
	dir string
}

func (s dirArtifactSink) Put(_ context.Context, _ string, name string, data []byte) error {
	path := filepath.Join(s.dir, name)

	err := os.WriteFile(path, data, artifactFileMode)
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}

	return nil
}

// progressPrinter reports stage completion on stderr.
type progressPrinter struct {
	verbose bool
}

func (p progressPrinter) Emit(_ context.Context, _ string, event ports.ProgressEvent) error {
	if !p.verbose {
		return nil
	}

	check := color.New(color.FgGreen).Sprint("✓")
	fmt.Fprintf(os.Stderr, "%s [%d/%d] %s (%.2fs)\n",
		check, event.StageIndex, event.TotalStages, event.StageID, event.ElapsedSec)

	return nil
}

func runLocal(ctx context.Context, out io.Writer, opts runOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	obsCfg := workerObsConfig(cfg)
	obsCfg.Mode = observability.ModeCLI
	obsCfg.LogJSON = false

	if !opts.verbose {
		obsCfg.LogLevel = parseLogLevel("warn")
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return err
	}

	defer func() { _ = providers.Shutdown(context.Background()) }()

	contracts, err := loadContracts(cfg)
	if err != nil {
		return err
	}

	stageReg, err := stages.BuildRegistry(contracts)
	if err != nil {
		return err
	}

	mkdirErr := os.MkdirAll(opts.outDir, 0o755)
	if mkdirErr != nil {
		return fmt.Errorf("create output dir: %w", mkdirErr)
	}

	runner := framework.NewRunner(stageReg, progressPrinter{verbose: opts.verbose}, providers.Logger)
	orch := framework.NewOrchestrator(
		contracts, stageReg, runner, dirArtifactSink{dir: opts.outDir}, version.Version, providers.Logger)

	jc := session.NewContext(uuid.NewString())
	if opts.preset != "" {
		jc.SetMetadata("style_preset", opts.preset)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := orch.RunJob(runCtx, jc, session.DirSource{Path: opts.stemsDir}, opts.enabled)
	if runErr != nil {
		return runErr
	}

	printResult(out, res, opts.outDir)

	return nil
}

func printResult(out io.Writer, res *framework.JobResult, outDir string) {
	status := color.New(color.FgGreen, color.Bold).Sprint(strings.ToUpper(string(res.Status)))
	if res.Status != ports.StatusSuccess {
		status = color.New(color.FgRed, color.Bold).Sprint(strings.ToUpper(string(res.Status)))
	}

	fmt.Fprintf(out, "%s  %d/%d stages\n", status, res.StagesCompleted, res.TotalStages)

	if res.Metrics == nil {
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Integrated loudness", formatDB(res.Metrics.LUFS, "LUFS")},
		{"True peak", formatDB(res.Metrics.TruePeakDB, "dBTP")},
		{"Loudness range", fmt.Sprintf("%.1f LU", res.Metrics.LRA)},
		{"Tempo", fmt.Sprintf("%.1f BPM", res.Metrics.TempoBPM)},
		{"Key", fmt.Sprintf("%s %s", res.Metrics.Key, res.Metrics.Scale)},
		{"Channel balance", formatDB(res.Metrics.ChannelLoudnessDiffDB, "dB")},
		{"Correlation", fmt.Sprintf("%.2f", res.Metrics.Correlation)},
	})
	tw.SetStyle(table.StyleLight)
	tw.Render()

	fmt.Fprintf(out, "artifacts written to %s\n", outDir)
}

func formatDB(v float64, unit string) string {
	if math.IsInf(v, -1) {
		return "-inf " + unit
	}

	return fmt.Sprintf("%.1f %s", v, unit)
}
