package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bankbot/internal/assistant"
	"bankbot/internal/classifier"
	"bankbot/internal/config"
	"bankbot/internal/domain"
	"bankbot/internal/httpx"
	"bankbot/internal/logging"
	"bankbot/internal/nlp"
	"bankbot/internal/storage/sqlite"
	"bankbot/internal/training"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0-dev"

const setupHint = "run `bankbot seed` then `bankbot train`"

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// state is filled in by the root command before any subcommand runs.
type state struct {
	cfg    config.Config
	logger *zap.Logger
}

func NewRootCmd() *cobra.Command {
	st := &state{}
	rootCmd := &cobra.Command{
		Use:   "bankbot",
		Short: "Banking FAQ assistant with a feedback loop",
		Long: `bankbot answers banking questions from a small knowledge base.

It classifies questions into intents, answers above a confidence threshold,
records every turn and lets users rate, correct or teach answers. Corrections
flow back into the next training run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				if err := os.Setenv("CONFIG_PATH", path); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds, logger)
			logger.Debug("config loaded",
				zap.String("db_path", cfg.DBPath),
				zap.String("model_path", cfg.ModelPath),
				zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
				zap.String("unknown_intent_policy", cfg.UnknownIntentPolicy),
				zap.Bool("refit_on_all", cfg.RefitOnAll),
				zap.String("llm_provider", cfg.LLMProvider),
				zap.Bool("slack", cfg.SlackConfigured()),
				zap.Duration("external_http_timeout", timeout),
			)
			st.cfg, st.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (overrides CONFIG_PATH)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(st),
		newChatCmd(st),
		newTrainCmd(st),
		newSeedCmd(st),
		newStatsCmd(st),
		newCurateCmd(st),
		newFactCmd(st),
	)
	return rootCmd
}

// runtime holds the components shared by the commands.
type runtime struct {
	cfg        config.Config
	logger     *zap.Logger
	db         *sql.DB
	normalizer *nlp.Normalizer
	holder     *classifier.Holder
	retrainer  *training.Retrainer
	service    *assistant.Service
}

func openRuntime(st *state) (*runtime, error) {
	db, err := sqlite.InitDB(st.cfg.DBPath, st.logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	rt := &runtime{
		cfg:        st.cfg,
		logger:     st.logger,
		db:         db,
		normalizer: nlp.NewNormalizer(st.logger),
		holder:     classifier.NewHolder(nil),
	}
	opts := classifier.DefaultOptions()
	opts.RefitOnAll = st.cfg.RefitOnAll
	rt.retrainer = training.NewRetrainer(db, rt.normalizer, rt.holder, st.cfg.ModelPath, opts, st.logger)
	pipeline := assistant.NewPipeline(db, rt.normalizer, rt.holder, st.cfg.ConfidenceThreshold, st.logger)
	rt.service = assistant.NewService(db, pipeline, rt.holder, rt.retrainer, st.cfg.UnknownIntentPolicy, st.logger)
	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.db.Close()
}

// bootstrap makes a model live for the inference commands.
func (rt *runtime) bootstrap(ctx context.Context) error {
	err := rt.retrainer.Bootstrap(ctx, rt.cfg.TrainOnStartup)
	if errors.Is(err, domain.ErrArtifactUnavailable) {
		return fmt.Errorf("no trained model available (%w); %s", err, setupHint)
	}
	return err
}

// loadPersisted makes the saved model visible to read-only commands.
func (rt *runtime) loadPersisted() {
	m, err := classifier.Load(rt.cfg.ModelPath)
	if err != nil {
		rt.logger.Debug("no persisted model", zap.Error(err))
		return
	}
	rt.holder.Swap(m)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// version needs no config
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bankbot version %s\n", version)
		},
	}
}
