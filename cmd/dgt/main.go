package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/debug-gauntlet/dgt/internal/config"
	"github.com/debug-gauntlet/dgt/internal/events"
	"github.com/debug-gauntlet/dgt/internal/logging"
	"github.com/debug-gauntlet/dgt/internal/suite"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// errRunFailed marks a completed run with failing cases; it carries no
// extra message beyond the printed summary.
var errRunFailed = errors.New("test run failed")

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(ctx)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	cmd := newRootCommand(cfg, logger.Logger)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "dgt",
		Short:         "Debug gauntlet test harness driver",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}

	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	root.AddCommand(
		newRunCommand(cfg, logger),
		newListCommand(),
		newDoctorCommand(cfg),
	)

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if logger == nil {
			return errors.New("logger is required")
		}
		if cfg == nil {
			return errors.New("config is required")
		}
		logger.With("command", cmd.Name()).Debug("command invocation")
		return nil
	}

	return root
}

func newRunCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		filter     string
		trace      bool
		logSuccess bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run registered test groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCfg := *cfg
			if trace {
				runCfg.Trace = true
			}
			if logSuccess {
				runCfg.LogSuccess = true
			}

			provider := suite.DefaultProvider()
			if provider == nil {
				return errors.New("no debugger binding registered; link an engine binding package into the driver")
			}

			bus := newLifecycleBus(logger)
			options := []suite.RunnerOption{
				suite.WithLogger(logger),
				suite.WithBus(bus),
			}
			if filter != "" {
				options = append(options, suite.WithFilter(nameFilter(filter)))
			}

			runner, err := suite.NewRunner(runCfg, provider, suite.DefaultBuilder(), options...)
			if err != nil {
				return err
			}

			summary, err := runner.Run(suite.Registered())
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			if summary.Failed() {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", "run only cases matching group.method (prefix match)")
	cmd.Flags().BoolVar(&trace, "trace", false, "mirror session transcripts to stderr")
	cmd.Flags().BoolVar(&logSuccess, "log-success", false, "retain session logs for passing tests")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered test groups and cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, group := range suite.Registered() {
				fmt.Fprintln(cmd.OutOrStdout(), group.Name)
				for _, testCase := range group.Cases {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s.%s\n", group.Name, testCase.Name)
				}
			}
			return nil
		},
	}
}

func newDoctorCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the harness environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			healthy := true

			if _, err := exec.LookPath("make"); err != nil {
				healthy = false
				fmt.Fprintln(out, "make: NOT FOUND")
			} else {
				fmt.Fprintln(out, "make: ok")
			}

			if cfg.DebuggerExec == "" {
				fmt.Fprintln(out, "debugger_exec: not configured")
			} else if _, err := exec.LookPath(cfg.DebuggerExec); err != nil {
				healthy = false
				fmt.Fprintf(out, "debugger_exec: %s NOT FOUND\n", cfg.DebuggerExec)
			} else {
				fmt.Fprintf(out, "debugger_exec: %s ok\n", cfg.DebuggerExec)
			}

			if err := os.MkdirAll(cfg.SessionDir, 0o750); err != nil {
				healthy = false
				fmt.Fprintf(out, "session_dir: %s NOT WRITABLE (%v)\n", cfg.SessionDir, err)
			} else {
				fmt.Fprintf(out, "session_dir: %s ok\n", cfg.SessionDir)
			}

			if suite.DefaultProvider() == nil {
				fmt.Fprintln(out, "debugger binding: not registered")
			} else {
				fmt.Fprintln(out, "debugger binding: ok")
			}

			if !healthy {
				return errors.New("environment check failed")
			}
			return nil
		},
	}
}

// newLifecycleBus builds the run's event bus with the runtime logger
// subscribed as the observer of every lifecycle event.
func newLifecycleBus(logger *log.Logger) *events.InMemoryBus {
	bus := events.New(events.WithLogger(logger))
	bus.SubscribeAll(func(event events.Event) {
		logger.With(
			"event", event.Type,
			"case", event.Case,
			"payload", event.Payload,
		).Info("lifecycle event")
	})
	return bus
}

// nameFilter matches "group", "group.method", or a prefix of the method.
func nameFilter(filter string) func(group, method string) bool {
	return func(group, method string) bool {
		full := group + "." + method
		return strings.HasPrefix(full, filter) || strings.HasPrefix(method, filter)
	}
}

func printSummary(cmd *cobra.Command, summary suite.Summary) {
	out := cmd.OutOrStdout()
	for _, result := range summary.Results {
		fmt.Fprintf(out, "%-18s %s.%s\n", result.Outcome.Prefix(), result.Group, result.Case)
	}
	fmt.Fprintf(out, "ran %d cases\n", len(summary.Results))
}
