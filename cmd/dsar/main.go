// Command dsar processes vendor exports for a data subject access request,
// redacts third parties and assembles the package sent to the subject.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dsar/internal/activity/backend"
	"dsar/internal/assembler"
	"dsar/internal/pipeline"
	"dsar/internal/platform/config"
	"dsar/internal/platform/logger"
	"dsar/internal/platform/metrics"
	"dsar/internal/report"
	"dsar/internal/source"
	"dsar/internal/source/providers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	outputDir string
	keyDir    string
	jsonOut   bool
	logLevel  string
}

// NewRootCmd constructs the root command; exposed for tests.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "dsar",
		Short:         "GDPR data subject access request toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.outputDir, "output", "", "deliverable directory (overrides DSAR_OUTPUT_DIR)")
	root.PersistentFlags().StringVar(&flags.keyDir, "key-dir", "", "redaction key directory (overrides DSAR_KEY_DIR)")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (overrides DSAR_LOG_LEVEL)")

	root.AddCommand(
		newProcessCmd(flags),
		newRunCmd(flags),
		newCompileCmd(flags),
		newVendorsCmd(flags),
		newServeCmd(flags),
		newTokenCmd(flags),
		newActivityCmd(flags),
	)
	return root
}

// app is everything a command needs, built from configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	activity  *backend.Backend
	registry  *source.Registry
	writer    *report.Writer
	assembler *assembler.Assembler
	runner    *pipeline.Runner
	out       io.Writer
	jsonOut   bool
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.outputDir != "" {
		cfg.OutputDir = flags.outputDir
		if flags.keyDir == "" && os.Getenv("DSAR_KEY_DIR") == "" {
			cfg.KeyDir = config.DefaultKeyDir(cfg.OutputDir)
		}
	}
	if flags.keyDir != "" {
		cfg.KeyDir = flags.keyDir
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	m := metrics.New()

	writer, err := report.NewWriter(cfg.OutputDir, cfg.KeyDir, report.WithLogger(log))
	if err != nil {
		return nil, err
	}
	registry, err := providers.NewRegistry(log)
	if err != nil {
		return nil, err
	}
	activity, err := backend.Open(cmd.Context(), cfg, log, m)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}

	asm := assembler.New(cfg.OutputDir,
		assembler.WithKeyDir(cfg.KeyDir),
		assembler.WithActivity(activity),
		assembler.WithLogger(log),
		assembler.WithMetrics(m),
	)
	runner := pipeline.NewRunner(registry, writer,
		pipeline.WithAssembler(asm),
		pipeline.WithActivity(activity),
		pipeline.WithMetrics(m),
		pipeline.WithLogger(log),
		pipeline.WithConcurrency(cfg.Concurrency),
	)
	return &app{
		cfg:       cfg,
		logger:    log,
		metrics:   m,
		activity:  activity,
		registry:  registry,
		writer:    writer,
		assembler: asm,
		runner:    runner,
		out:       cmd.OutOrStdout(),
		jsonOut:   flags.jsonOut,
	}, nil
}

func (a *app) Close() error {
	if err := a.activity.Close(); err != nil {
		return fmt.Errorf("close activity log: %w", err)
	}
	return nil
}

// withApp builds the app, runs fn and always closes the app so buffered
// activity events are flushed.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(*app) error) (err error) {
	a, err := newApp(cmd, flags)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, a.Close())
	}()
	return fn(a)
}

// meta fills the controller fields of a package from configuration.
func (a *app) meta() assembler.Meta {
	c := a.cfg.Company
	return assembler.Meta{
		CompanyName:    c.Name,
		CompanyAddress: c.Address,
		DPOName:        c.DPOName,
		DPOEmail:       c.DPOEmail,
		ResponseDays:   c.ResponseDays,
	}
}
