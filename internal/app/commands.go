package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"bankbot/internal/assistant"
	"bankbot/internal/curation"
	"bankbot/internal/domain"
	"bankbot/internal/httpapi"
	"bankbot/internal/httpx"
	"bankbot/internal/integrations/llm"
	"bankbot/internal/knowledge"
	"bankbot/internal/repl"
	"bankbot/internal/storage/sqlite"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func newChatCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long: `Start the line-oriented chat loop.

On a terminal every answer is followed by a feedback prompt and unsure answers
offer the teach-me flow. Piped input is answered line by line without prompts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.bootstrap(cmd.Context()); err != nil {
				return err
			}

			in := cmd.InOrStdin()
			session := repl.New(rt.service, in, cmd.OutOrStdout(), rt.logger)
			session.Interactive = isTerminal(in)
			return session.Run(cmd.Context())
		},
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newTrainCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the intent model from the knowledge base and feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Retrain(cmd.Context())
			if errors.Is(err, domain.ErrNoTrainingData) {
				return fmt.Errorf("%w; run `bankbot seed` first", err)
			}
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model trained. Mini-report:\n%s\n", report)
			fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", rt.cfg.ModelPath)
			return nil
		},
	}
}

func newSeedCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load intents, examples, smalltalk and facts into the store",
		Long: `Seed the knowledge base. Without --file the seed_path from the config is
used, and without that the built-in banking seed. Seeding is idempotent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				path = st.cfg.SeedPath
			}
			seed, err := knowledge.Load(path)
			if err != nil {
				return err
			}

			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := seed.Apply(rt.db)
			if err != nil {
				return fmt.Errorf("seed knowledge base: %w", err)
			}
			source := path
			if source == "" {
				source = "built-in seed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded from %s: %d intents, %d examples, %d smalltalk rules, %d facts added.\n",
				source, res.Intents, res.Examples, res.Smalltalk, res.Facts)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Seed YAML file")
	return cmd
}

func newStatsCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show interaction and feedback statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			jsonOut, _ := cmd.Flags().GetBool("json")
			if days < 0 {
				return fmt.Errorf("--days must be >= 0")
			}

			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.loadPersisted()

			var since time.Time
			if days > 0 {
				since = time.Now().AddDate(0, 0, -days)
			}
			stats, err := rt.service.Stats(cmd.Context(), since)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(httpapi.NewStatsResponse(stats))
			}
			assistant.WriteStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "Only count the last N days (0 = all time)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func newFactCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fact",
		Short: "Manage the facts used in answers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Create or update a fact",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			value := strings.TrimSpace(strings.Join(args[1:], " "))
			if key == "" {
				return fmt.Errorf("fact key must not be empty")
			}
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := sqlite.SetFact(rt.db, key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List facts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			facts, err := sqlite.ListFacts(rt.db)
			if err != nil {
				return err
			}
			if len(facts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No facts stored.")
				return nil
			}
			for _, f := range facts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", f.Key, f.Value)
			}
			return nil
		},
	})
	return cmd
}

func newCurateCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Review taught answers and corrections",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List taught answers awaiting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			items, err := sqlite.ListTaughtQA(rt.db, !all)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review.")
				return nil
			}
			for _, qa := range items {
				mark := " "
				if qa.Approved {
					mark = "x"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] #%d %s\n      => %s\n", mark, qa.ID, qa.Question, qa.Answer)
			}
			return nil
		},
	}
	listCmd.Flags().Bool("all", false, "Include approved answers")

	approveCmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Mark a taught answer as reviewed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := curation.Approve(rt.db, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Approved taught answer #%d.\n", id)
			return nil
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write corrected answers and pending taught answers to a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			withSuggestions, _ := cmd.Flags().GetBool("suggest")
			if dir == "" {
				dir = st.cfg.CurationExportDir
			}
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()

			exp, err := curation.BuildExport(rt.db, time.Now())
			if err != nil {
				return err
			}
			if withSuggestions {
				suggestions, err := rt.suggest(cmd)
				if err != nil {
					rt.logger.Warn("suggestions incomplete", zap.Error(err))
				}
				exp.Suggestions = suggestions
			}
			path, err := curation.WriteExport(dir, exp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d corrected answers and %d pending taught answers to %s\n",
				len(exp.CorrectedAnswers), len(exp.PendingTaughtQA), path)
			return nil
		},
	}
	exportCmd.Flags().String("dir", "", "Output directory (default curation_export_dir)")
	exportCmd.Flags().Bool("suggest", false, "Include intent suggestions")

	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "Propose intents for pending taught answers",
		Long: `Propose an intent for each pending taught question. With llm_provider set the
configured model is asked; otherwise, or when it fails, the nearest training
example decides. Nothing is written to the knowledge base.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			rt, err := openRuntime(st)
			if err != nil {
				return err
			}
			defer rt.Close()

			suggestions, err := rt.suggest(cmd)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (showing nearest-example suggestions)\n", err)
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(suggestions)
			}
			if len(suggestions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending taught answers.")
				return nil
			}
			for _, s := range suggestions {
				intent := s.Intent
				if intent == "" {
					intent = "(none)"
				} else if s.NewIntent {
					intent += " (new)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n      -> %s  confidence=%.2f  source=%s\n", s.TaughtID, s.Question, intent, s.Confidence, s.Source)
				if s.Reasoning != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "      %s\n", s.Reasoning)
				}
			}
			return nil
		},
	}
	suggestCmd.Flags().Bool("json", false, "Output as JSON")

	cmd.AddCommand(listCmd, approveCmd, exportCmd, suggestCmd)
	return cmd
}

// suggest runs the curation suggester with the configured LLM, if any.
func (rt *runtime) suggest(cmd *cobra.Command) ([]curation.Suggestion, error) {
	client, err := llm.New(rt.cfg, httpx.ExternalHTTPClient(), rt.logger)
	if errors.Is(err, llm.ErrNotConfigured) {
		client = nil
	} else if err != nil {
		return nil, err
	}
	suggestions, usage, err := curation.NewSuggester(rt.db, rt.normalizer, client, rt.logger).Suggest(cmd.Context())
	if usage.TotalTokens() > 0 {
		rt.logger.Info("llm usage", zap.Int64("input_tokens", usage.InputTokens), zap.Int64("output_tokens", usage.OutputTokens))
	}
	return suggestions, err
}
