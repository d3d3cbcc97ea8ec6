package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/goosewin/qforia/internal/config"
	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

var (
	verbose bool
	logFile string

	logger = zap.NewNop()
	holder = core.NewResultHolder()
)

var rootCmd = &cobra.Command{
	Use:   "qforia",
	Short: "Simulate AI search query fan-out",
	Long: "Qforia asks a generative model to expand one search query into a set of\n" +
		"synthetic sub-queries, the way AI Overviews and AI Mode fan out a search.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfigForCwd(); err != nil {
			return err
		}

		level := config.GetString("logging.level", "warn")
		file := logFile
		if !cmd.Flags().Changed("log-file") {
			file = config.GetString("logging.file", "")
		}

		built, err := logging.New(logging.Options{Level: level, File: file, Verbose: verbose})
		if err != nil {
			return err
		}
		logger = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)

	if diagnostic := strings.TrimSpace(core.Diagnostic(err)); diagnostic != "" {
		color.New(color.FgYellow).Fprintln(os.Stderr, "Model output:")
		fmt.Fprintln(os.Stderr, diagnostic)
	}
	if hint := errorHint(err); hint != "" {
		color.New(color.Faint).Fprintln(os.Stderr, hint)
	}
}

func errorHint(err error) string {
	switch core.ErrorKind(err) {
	case "credential_missing":
		return "Set GEMINI_API_KEY (or ANTHROPIC_API_KEY for --backend claude), pass --api-key, or run: qforia config set gemini.api_key <key>"
	case "credential_invalid":
		return "The provider rejected the API key. Check that it is valid for the selected backend."
	case "no_json_found", "malformed_json":
		return "The model did not return the expected JSON. Try again or use --strategy balanced."
	default:
		return ""
	}
}

func loadConfigForCwd() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve current directory: %w", err)
	}
	_, err = config.LoadConfig(cwd)
	return err
}

// flagOrConfig returns the flag value when it was set explicitly, otherwise
// the config value for key, otherwise the flag's default.
func flagOrConfig(cmd *cobra.Command, flag, value, key string) string {
	if cmd.Flags().Changed(flag) {
		return strings.TrimSpace(value)
	}
	return config.GetString(key, strings.TrimSpace(value))
}
