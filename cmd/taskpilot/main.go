package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zen-systems/taskpilot/pkg/backend"
	"github.com/zen-systems/taskpilot/pkg/config"
	"github.com/zen-systems/taskpilot/pkg/pipeline"
	"github.com/zen-systems/taskpilot/pkg/role"
	"github.com/zen-systems/taskpilot/pkg/runstore"
	"github.com/zen-systems/taskpilot/pkg/safety"
	"github.com/zen-systems/taskpilot/pkg/tool"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitConfig    = 2
	exitCancelled = 3
)

var (
	workspaceFlag string
	manifestFlag  string
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "Workspace automation pipelines with a safety gate",
		Long: `Taskpilot runs workspace-automation pipelines: a planner, one or
	more executors, and checkers chained into a single controlled run. Every
	mutating tool call passes a safety gate; runs are dryrun by default and
	only --apply performs changes for real.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace root (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&manifestFlag, "manifest", "", "path to an additional pipeline manifest")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(verifyStrictCmd())
	rootCmd.AddCommand(pipelinesCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfig)
	}
}

func runCmd() *cobra.Command {
	var applyFlag bool
	var maxSteps int

	cmd := &cobra.Command{
		Use:   "run <pipeline> <task>",
		Short: "Execute a pipeline for a task",
		Long: `Runs the named pipeline against the workspace. Without --apply the
	run is a dryrun: mutating tools report what they would have done and the
	workspace is untouched. --apply is the only way to elevate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelineName, taskText := args[0], args[1]

			cfg, err := config.Load()
			if err != nil {
				return &exitError{code: exitConfig, msg: fmt.Sprintf("load config: %v", err)}
			}

			definition, err := lookupPipeline(pipelineName)
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			workspace, err := resolveWorkspace()
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			mode := safety.DryRun
			if applyFlag {
				mode = safety.Apply
			}

			executor, err := tool.NewExecutor(tool.Config{
				Root:         workspace,
				Gate:         safety.NewGate(mode),
				ShellTimeout: cfg.ShellTimeout,
			})
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			reasoner, err := createBackend(cfg)
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			store, err := runstore.NewStore(runDir(cfg, workspace))
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			retry := backend.DefaultRetryConfig()
			retry.CallTimeout = cfg.BackendTimeout

			controller := &pipeline.Controller{
				Definition: definition,
				Runner: &role.Runner{
					Backend:        reasoner,
					Retry:          retry,
					Exec:           executor,
					Seq:            &tool.Sequence{},
					Model:          cfg.Model,
					MaxSteps:       cfg.MaxSteps,
					MalformedLimit: cfg.MalformedLimit,
					Logf:           log.Printf,
				},
				Store: store,
				Logf:  log.Printf,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "pipeline %s, mode %s, workspace %s\n", definition.Name, mode, workspace)
			if mode == safety.DryRun {
				fmt.Fprintln(os.Stderr, "dryrun: mutating tools will be simulated (use --apply to perform changes)")
			}

			outcome, err := controller.Run(ctx, runstore.Task{
				Text:     taskText,
				Pipeline: definition.Name,
				Mode:     mode.String(),
				MaxSteps: maxSteps,
			})
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			return reportOutcome(outcome)
		},
	}

	cmd.Flags().BoolVar(&applyFlag, "apply", false, "perform mutations for real (default is dryrun)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "per-stage tool call budget override")

	return cmd
}

func reportOutcome(outcome *pipeline.Outcome) error {
	fmt.Fprintf(os.Stderr, "run %s: %s\n", outcome.RunID, outcome.Status)

	switch outcome.Status {
	case runstore.StatusCompleted:
		if outcome.Answer != nil {
			fmt.Println(outcome.Answer.Text)
		}
		return nil
	case runstore.StatusCancelled:
		return &exitError{code: exitCancelled, msg: "run cancelled"}
	default:
		msg := fmt.Sprintf("stage %s failed", outcome.FailedStage)
		if outcome.Err != nil {
			msg = fmt.Sprintf("stage %s failed: %v", outcome.FailedStage, outcome.Err)
		}
		if outcome.Answer != nil {
			fmt.Fprintf(os.Stderr, "last answer: %s\n", outcome.Answer.Text)
		}
		return &exitError{code: exitFailed, msg: msg}
	}
}

func verifyStrictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-strict",
		Short: "Run the deterministic verifier against the workspace",
		Long: `Runs only the strict verifier: a fixed probe checklist with no backend
	calls, always read-only. Exit code 0 iff every probe passes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := resolveWorkspace()
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			executor, err := tool.NewExecutor(tool.Config{
				Root: workspace,
				Gate: safety.NewGate(safety.DryRun),
			})
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			_, report := role.RunStrictStage(context.Background(), executor, &tool.Sequence{}, nil, nil)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROBE\tRESULT\tDETAIL")
			for _, outcome := range report.Outcomes {
				result := "PASS"
				if !outcome.Passed {
					result = "FAIL"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", outcome.Name, result, outcome.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !report.Passed() {
				return &exitError{code: exitFailed, msg: "strict verification failed"}
			}
			return nil
		},
	}
}

func pipelinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List available pipeline definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			definitions, err := allPipelines()
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			var names []string
			for name := range definitions {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTAGES\tDESCRIPTION")
			for _, name := range names {
				definition := definitions[name]
				stages := make([]string, 0, len(definition.Stages))
				for _, stage := range definition.Stages {
					label := stage.Role
					if stage.AlwaysRun {
						label += "*"
					}
					stages = append(stages, label)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(stages, " -> "), definition.Description)
			}
			fmt.Fprintln(w, "\n* always-run stage")
			return w.Flush()
		},
	}
}

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List persisted run records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &exitError{code: exitConfig, msg: fmt.Sprintf("load config: %v", err)}
			}
			workspace, err := resolveWorkspace()
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			store, err := runstore.NewStore(runDir(cfg, workspace))
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			records, err := store.List()
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPIPELINE\tMODE\tSTATUS\tSTARTED\tRESULT")
			for _, record := range records {
				result := record.Result
				if len(result) > 60 {
					result = result[:60] + "..."
				}
				result = strings.ReplaceAll(result, "\n", " ")
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					record.ID,
					record.Task.Pipeline,
					record.Task.Mode,
					record.Status,
					record.StartedAt.Format("2006-01-02 15:04:05"),
					result,
				)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest.yaml>",
		Short: "Validate a pipeline manifest without executing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			definitions, err := pipeline.LoadManifest(args[0])
			if err != nil {
				return &exitError{code: exitConfig, msg: err.Error()}
			}
			fmt.Printf("Manifest is valid: %d pipeline(s).\n", len(definitions))
			return nil
		},
	}
}

func allPipelines() (map[string]pipeline.Definition, error) {
	definitions := pipeline.Builtins()
	if manifestFlag == "" {
		return definitions, nil
	}

	extra, err := pipeline.LoadManifest(manifestFlag)
	if err != nil {
		return nil, err
	}
	for _, definition := range extra {
		definitions[definition.Name] = definition
	}
	return definitions, nil
}

func lookupPipeline(name string) (pipeline.Definition, error) {
	definitions, err := allPipelines()
	if err != nil {
		return pipeline.Definition{}, err
	}
	definition, ok := definitions[name]
	if !ok {
		return pipeline.Definition{}, fmt.Errorf("unknown pipeline: %s", name)
	}
	return definition, nil
}

func resolveWorkspace() (string, error) {
	if workspaceFlag != "" {
		return filepath.Abs(workspaceFlag)
	}
	return os.Getwd()
}

func runDir(cfg *config.Config, workspace string) string {
	if cfg.RunDir != "" {
		return cfg.RunDir
	}
	return filepath.Join(workspace, ".taskpilot", "runs")
}

func createBackend(cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case "anthropic":
		return backend.NewAnthropicBackend(cfg.AnthropicAPIKey)
	case "openai":
		return backend.NewOpenAIBackend(cfg.OpenAIAPIKey)
	case "google":
		return backend.NewGoogleBackend(cfg.GoogleAPIKey)
	case "script":
		return backend.NewScriptBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}
