// Command opsmend runs the self-healing remediation workflow: it
// investigates an alert against application logs, generates and
// validates a fix, and opens a pull request with the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opsmend/opsmend/agent"
	"github.com/opsmend/opsmend/config"
	"github.com/opsmend/opsmend/graph"
	"github.com/opsmend/opsmend/graph/emit"
	"github.com/opsmend/opsmend/graph/store"
	"github.com/opsmend/opsmend/model"
	"github.com/opsmend/opsmend/model/anthropic"
	"github.com/opsmend/opsmend/model/google"
	"github.com/opsmend/opsmend/model/openai"
)

// Exit codes. Exhausted runs are a normal outcome of the iteration
// ceiling; aborted runs indicate a real failure.
const (
	exitOK      = 0
	exitError   = 1
	exitAborted = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsmend",
		Short:         "Self-healing remediation workflow",
		Long:          "opsmend investigates production alerts, generates a validated code fix, and opens a pull request.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		alert      string
		jsonEvents bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the remediation workflow for an alert",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			chat, cleanup, err := buildModel(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			st, closeStore, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var emitter emit.Emitter = emit.NewLogEmitter(os.Stderr, jsonEvents)

			var publisher agent.Publisher
			if dryRun || cfg.GitHub.Token == "" || cfg.GitHub.Repo == "" {
				publisher = &agent.DryRunPublisher{}
			} else {
				publisher = &agent.GitHubPublisher{
					Token:      cfg.GitHub.Token,
					Repo:       cfg.GitHub.Repo,
					BaseBranch: cfg.GitHub.Branch,
				}
			}

			eng, err := agent.Build(agent.Deps{
				Model:         chat,
				Logs:          &agent.FileLogSource{Path: cfg.LogFile},
				Validator:     &agent.FixValidator{OriginalPath: cfg.SourceFile},
				Publisher:     publisher,
				SourcePath:    cfg.SourceFile,
				FilePath:      cfg.RepoFile,
				MaxIterations: cfg.MaxIterations,
				NodeTimeout:   2 * time.Minute,
				Store:         st,
				Emitter:       emitter,
				Options:       graph.Options{MaxSteps: cfg.MaxSteps},
			})
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			final, status, err := eng.Run(ctx, runID, agent.NewInitialState(alert))

			fmt.Printf("Run %s finished: %s\n", runID, status)
			if url := final.String(agent.FieldPRURL); url != "" {
				fmt.Println("PR:", url)
			}
			if analysis := final.String(agent.FieldRootCauseAnalysis); analysis != "" {
				fmt.Println("\nRoot cause analysis:")
				fmt.Println(analysis)
			}
			if errs := final.Strings(agent.FieldValidationErrs); len(errs) > 0 {
				fmt.Println("\nValidation feedback:")
				for _, e := range errs {
					fmt.Println(" -", e)
				}
			}

			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(exitAborted)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&alert, "alert", "A production error has been detected. Investigate and fix it.", "alert message that triggers the workflow")
	cmd.Flags().BoolVar(&jsonEvents, "json-events", false, "emit run events as JSON lines")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write the fix locally instead of opening a pull request")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history <run-id>",
		Short: "List persisted steps for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreMemory {
				return errors.New("history requires a persistent store (sqlite or mysql)")
			}
			st, closeStore, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := st.History(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no history for run %s", args[0])
				}
				return err
			}
			for _, rec := range records {
				state := graph.State(rec.State)
				fmt.Printf("step %d  node=%s  iteration=%d  pr_status=%s\n",
					rec.Step, rec.NodeID,
					state.Int(agent.FieldIterationCount),
					state.String(agent.FieldPRStatus))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	return cmd
}

// buildModel constructs the configured ChatModel. The returned cleanup
// releases provider resources and is always safe to call.
func buildModel(ctx context.Context, cfg config.Config) (model.ChatModel, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case config.ProviderAnthropic:
		m, err := anthropic.NewChatModel(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		return m, noop, err
	case config.ProviderOpenAI:
		m, err := openai.NewChatModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		return m, noop, err
	case config.ProviderGoogle:
		m, err := google.NewChatModel(ctx, cfg.Google.APIKey, cfg.Google.Model)
		if err != nil {
			return nil, noop, err
		}
		return m, func() { _ = m.Close() }, nil
	case config.ProviderMock:
		return mockModel(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// mockModel scripts a short successful remediation, used for demos and
// smoke tests without API credentials.
func mockModel() model.ChatModel {
	return &model.MockChatModel{
		Responses: []model.ChatOut{
			{Text: "Root cause: the handler indexes a map without checking the key exists."},
			{Text: "package main\n\nfunc main() {}\n"},
		},
	}
}

// buildStore constructs the configured step store. A nil store means
// ephemeral runs.
func buildStore(cfg config.Config) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreMySQL:
		s, err := store.NewMySQLStore(cfg.Store.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return store.NewMemStore(), noop, nil
	}
}
