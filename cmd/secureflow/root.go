package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/config"
	"github.com/hed1ad/secureflow/pkg/generator"
	"github.com/hed1ad/secureflow/pkg/metrics"
	"github.com/hed1ad/secureflow/pkg/observability"
	"github.com/hed1ad/secureflow/pkg/scoring"
	"github.com/hed1ad/secureflow/pkg/session"
)

const defaultConfigName = "secureflow.yml"

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg      config.Config
	logger   *slog.Logger
	shutdown observability.ShutdownFunc
	clock    func() time.Time
}

func (a *app) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now()
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "secureflow",
		Short:         "Network telemetry anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to "+defaultConfigName)
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newRunCommand(a),
		newGenerateCommand(a),
		newServeCommand(a),
		newComplianceCommand(a),
		newPerformanceCommand(a),
		newChatCommand(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.SecureFlow.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.SecureFlow.Logging.Format = a.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	a.logger, err = newLogger(cmd.ErrOrStderr(), cfg.SecureFlow.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger)

	tracing := cfg.SecureFlow.Tracing
	endpoint := ""
	if tracing.Enabled {
		endpoint = tracing.Endpoint
	}
	a.shutdown, err = observability.InitTracer(cmd.Context(), tracing.ServiceName, endpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdown == nil {
		return
	}
	if err := a.shutdown(ctx); err != nil && a.logger != nil {
		a.logger.Warn("tracer shutdown", "error", err)
	}
}

// loadConfig reads path, or secureflow.yml next to the working directory or
// the executable when path is empty. Without a file the defaults apply.
func loadConfig(path string) (config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	candidates := []string{defaultConfigName}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), defaultConfigName))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := config.Load(candidate)
			if err != nil {
				return config.Config{}, fmt.Errorf("load config: %w", err)
			}
			return cfg, nil
		}
	}
	return config.Default(), nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
}

func (a *app) newGenerator() *generator.Generator {
	var opts []generator.Option
	if seed := a.cfg.SecureFlow.Generator.Seed; seed != nil {
		opts = append(opts, generator.WithSeed(*seed))
	}
	return generator.New(opts...)
}

func (a *app) newEngine() *scoring.Engine {
	sc := a.cfg.SecureFlow.Scoring
	opts := []scoring.Option{
		scoring.WithContamination(sc.Contamination),
		scoring.WithTrees(sc.Trees),
		scoring.WithSampleSize(sc.SampleSize),
		scoring.WithWorkers(sc.Workers),
		scoring.WithTimeout(sc.Timeout),
	}
	if sc.Seed != nil {
		opts = append(opts, scoring.WithSeed(*sc.Seed))
	}
	return scoring.NewEngine(opts...)
}

func (a *app) sessionOptions(m *metrics.Collector) []session.Option {
	sf := a.cfg.SecureFlow
	return []session.Option{
		session.WithGenerator(a.newGenerator()),
		session.WithEngine(a.newEngine()),
		session.WithSampleCounts(sf.Generator.SampleCount, sf.Generator.AnomalyCount),
		session.WithMaxAlerts(sf.Alerts.MaxCount),
		session.WithLogger(a.logger),
		session.WithMetrics(m),
	}
}

// pipelineFlags are overrides shared by the commands that build sessions.
type pipelineFlags struct {
	samples       int
	anomalies     int
	seed          int64
	contamination float64
	maxAlerts     int
}

func (p *pipelineFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&p.samples, "samples", config.DefaultSampleCount, "synthetic batch size")
	f.IntVar(&p.anomalies, "anomalies", config.DefaultAnomalyCount, "injected anomalies in the synthetic batch")
	f.Int64Var(&p.seed, "seed", 0, "seed for generation and scoring")
	f.Float64Var(&p.contamination, "contamination", config.DefaultContamination, "expected anomaly fraction, in (0, 0.5]")
	f.IntVar(&p.maxAlerts, "max-alerts", config.DefaultMaxAlerts, "alert feed length")
}

// apply copies explicitly set flags over the loaded config.
func (p *pipelineFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	sf := &cfg.SecureFlow
	f := cmd.Flags()
	if f.Changed("samples") {
		sf.Generator.SampleCount = p.samples
	}
	if f.Changed("anomalies") {
		sf.Generator.AnomalyCount = p.anomalies
	}
	if f.Changed("seed") {
		seed := p.seed
		sf.Generator.Seed = &seed
		sf.Scoring.Seed = &seed
	}
	if f.Changed("contamination") {
		sf.Scoring.Contamination = p.contamination
	}
	if f.Changed("max-alerts") {
		sf.Alerts.MaxCount = p.maxAlerts
	}
	return config.Validate(*cfg)
}
