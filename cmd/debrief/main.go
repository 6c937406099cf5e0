// debrief analyzes CI build failures into actionable debugging briefs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"debrief/internal/analysis"
	"debrief/internal/config"
	"debrief/internal/ingest"
	"debrief/internal/logging"
	"debrief/internal/pipeline"
	"debrief/internal/reasoning"
	"debrief/internal/render"
	"debrief/internal/research"
	"debrief/internal/search"
)

var (
	logger     *zap.Logger
	configPath string
	debug      bool

	// analyze flags
	logFile       string
	repo          string
	runID         int64
	maxCandidates int
	callTimeout   time.Duration
	maxRetries    int
	outPath       string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "debrief",
	Short: "debrief - CI build-failure analysis",
	Long: `debrief turns a failed CI build log into a debugging brief.

It classifies the failure, researches remediation candidates against web
evidence, and synthesizes a ranked, confidence-scored report. The log can be
supplied directly or pulled from the latest failed GitHub Actions run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if debug {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if err := logging.Initialize(cwd); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit trail unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// analyzeCmd runs one analysis
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a failed build log into a debugging brief",
	Long: `Analyze a failed CI build log.

The log source is either --log-file or --repo (owner/name, optionally with
--run-id to pick a specific GitHub Actions run instead of the latest failed
one). The result is a Markdown debugging brief on stdout or --out.`,
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rawLog, sourceCtx, err := loadLog(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("log loaded", zap.Int("bytes", len(rawLog)))

	reasoner, err := buildReasoner(ctx, cfg)
	if err != nil {
		return err
	}
	searcher := search.NewTavilyClientWithConfig(search.TavilyConfig{
		APIKey:  cfg.Search.APIKey,
		Depth:   cfg.Search.Depth,
		Timeout: cfg.GetSearchTimeout(),
	})
	var extractor *search.Extractor
	if cfg.Search.EnrichPages {
		extractor = search.NewExtractor(cfg.GetSearchTimeout(), 2000)
	}

	runner := pipeline.New(reasoner, searcher, extractor, sourceCtx)
	brief, err := runner.Run(ctx, rawLog, pipeline.Options{
		MaxCandidates:     cfg.Analysis.MaxCandidates,
		MaxRetries:        &cfg.Analysis.MaxRetries,
		CallTimeout:       cfg.GetCallTimeout(),
		MaxInputBytes:     cfg.Analysis.MaxInputBytes,
		NormalizeMaxChars: cfg.Analysis.LogExcerptSize,
	})
	if err != nil {
		var failure *analysis.Failure
		if errors.As(err, &failure) {
			logger.Error("analysis failed",
				zap.String("stage", failure.FailedStage),
				zap.String("reason", string(failure.Reason)),
				zap.String("detail", failure.Detail))
			fmt.Fprintf(os.Stderr, "analysis failed at %s: %s (%s)\n", failure.FailedStage, failure.Detail, failure.Reason)
			os.Exit(1)
		}
		return err
	}

	doc := render.Markdown(brief)
	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(doc), 0644); err != nil {
			return fmt.Errorf("writing brief: %w", err)
		}
		logger.Info("brief written", zap.String("path", outPath))
		return nil
	}
	fmt.Print(doc)
	return nil
}

// applyFlagOverrides lets explicit flags win over config file values.
func applyFlagOverrides(cfg *config.Config) {
	if maxCandidates > 0 {
		cfg.Analysis.MaxCandidates = maxCandidates
	}
	if maxRetries >= 0 {
		cfg.Analysis.MaxRetries = maxRetries
	}
	if callTimeout > 0 {
		cfg.Analysis.CallTimeout = callTimeout.String()
	}
}

// repoContext binds the ingest client to one repository, so the research
// stage can pull affected-file excerpts without knowing about GitHub.
type repoContext struct {
	client *ingest.Client
	owner  string
	name   string
}

func (r *repoContext) FileExcerpt(ctx context.Context, path string, maxBytes int) (string, error) {
	return r.client.FileExcerpt(ctx, r.owner, r.name, path, maxBytes)
}

// loadLog resolves the raw log text. When the log comes from a repository it
// also returns a source context provider for that repository.
func loadLog(ctx context.Context, cfg *config.Config) (string, research.ContextProvider, error) {
	switch {
	case logFile != "":
		data, err := os.ReadFile(logFile)
		if err != nil {
			return "", nil, fmt.Errorf("reading log file: %w", err)
		}
		return string(data), nil, nil
	case repo != "":
		parts := strings.SplitN(repo, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", nil, fmt.Errorf("--repo must be owner/name, got %q", repo)
		}
		client := ingest.NewClientWithConfig(ingest.Config{
			Token:   cfg.Ingest.GitHubToken,
			BaseURL: "https://api.github.com",
			Timeout: cfg.GetIngestTimeout(),
		})
		rawLog, err := client.FailedJobLog(ctx, parts[0], parts[1], runID)
		if err != nil {
			return "", nil, err
		}
		return rawLog, &repoContext{client: client, owner: parts[0], name: parts[1]}, nil
	default:
		return "", nil, fmt.Errorf("either --log-file or --repo is required")
	}
}

func buildReasoner(ctx context.Context, cfg *config.Config) (reasoning.Client, error) {
	pc := &reasoning.ProviderConfig{
		Provider: reasoning.Provider(cfg.Reasoning.Provider),
		APIKey:   cfg.Reasoning.APIKey,
		Model:    cfg.Reasoning.Model,
	}
	if pc.APIKey == "" {
		detected, err := reasoning.DetectProvider()
		if err != nil {
			return nil, err
		}
		pc = detected
	}
	return reasoning.NewClient(ctx, pc)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")

	analyzeCmd.Flags().StringVar(&logFile, "log-file", "", "Path to a raw build log")
	analyzeCmd.Flags().StringVar(&repo, "repo", "", "GitHub repository as owner/name")
	analyzeCmd.Flags().Int64Var(&runID, "run-id", 0, "Workflow run id (default: latest failed run)")
	analyzeCmd.Flags().IntVar(&maxCandidates, "max-candidates", 0, "Maximum fix candidates in the brief")
	analyzeCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Per-stage call timeout")
	analyzeCmd.Flags().IntVar(&maxRetries, "max-retries", -1, "Retries per stage for transient failures")
	analyzeCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the brief to a file instead of stdout")

	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
