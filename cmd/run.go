package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/export"
	"github.com/goosewin/qforia/internal/render"
	"github.com/goosewin/qforia/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	runMode       string
	runBackend    string
	runModel      string
	runAPIKey     string
	runFormat     string
	runOutput     string
	runSession    string
	runWebhook    string
	runStrategy   string
	runTimeout    time.Duration
	runShowPrompt bool
	runNoSpinner  bool
)

var runCmd = &cobra.Command{
	Use:   "run [query...]",
	Short: "Generate a query fan-out",
	Long: "Generate synthetic sub-queries for a search query.\n\n" +
		"The query is taken from the arguments, or from stdin when it is \"-\" or omitted\n" +
		"and stdin is not a terminal.",
	Example: `  qforia run "best electric bikes for commuting"
  qforia run -m complex -f csv -o fanout.csv "how to start composting at home"
  echo "tokyo in winter" | qforia run -`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Search mode: simple (AI Overview) or complex (AI Mode)")
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "", "Model backend (gemini, claude)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model override (backend-specific)")
	runCmd.Flags().StringVar(&runAPIKey, "api-key", "", "API key (defaults to config or provider env var)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "Output format: table, csv, json, yaml, markdown")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Write the result to a file instead of stdout")
	runCmd.Flags().StringVar(&runSession, "session", "", "Session name the result is stored under")
	runCmd.Flags().StringVar(&runWebhook, "webhook", "", "Notification webhook URL")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "", "JSON extraction strategy: greedy or balanced")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Abort the model call after this long (0 = no limit)")
	runCmd.Flags().BoolVar(&runShowPrompt, "show-prompt", false, "Print the prompt sent to the model")
	runCmd.Flags().BoolVar(&runNoSpinner, "no-spinner", false, "Disable the progress spinner")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	format, err := export.ParseFormat(flagOrConfig(cmd, "format", runFormat, "defaults.format"))
	if err != nil {
		return err
	}
	if runOutput != "" && !cmd.Flags().Changed("format") {
		if guessed, ok := export.FormatForPath(runOutput); ok {
			format = guessed
		}
	}

	_, run, err := executeFanout(cmd.Context(), fanoutParams{
		Query:    query,
		Mode:     runMode,
		Backend:  runBackend,
		Model:    runModel,
		APIKey:   runAPIKey,
		Session:  runSession,
		Webhook:  runWebhook,
		Strategy: runStrategy,
		Timeout:  runTimeout,
		Spinner:  !runNoSpinner && ui.IsTerminal(os.Stderr),
	})
	out := cmd.OutOrStdout()
	if runShowPrompt && run.Prompt != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), run.Prompt)
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	return writeRun(out, cmd.ErrOrStderr(), format, runOutput, run)
}

// writeRun prints run in format, or saves it to path when path is set.
// Notices that would corrupt a machine-readable stream go to errOut.
func writeRun(out, errOut io.Writer, format export.Format, path string, run core.RunResult) error {
	if run.Result == nil {
		return errors.New("no result to write")
	}

	if path != "" && path != "-" {
		if format == export.FormatTable {
			format = export.FormatCSV
		}
		written, err := export.WriteFile(path, format, *run.Result)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %d queries to %s\n", run.Result.ActualCount(), written)
		if run.Result.ActualCount() == 0 {
			fmt.Fprintln(out, render.NoQueries())
		}
		if warn := render.MismatchWarning(*run.Result); warn != "" {
			fmt.Fprintln(out, warn)
		}
		return nil
	}

	if format == export.FormatTable {
		fmt.Fprint(out, render.Result(run, terminalWidth()))
		return nil
	}
	if err := writeStream(out, format, *run.Result); err != nil {
		return err
	}
	if run.Result.ActualCount() == 0 {
		fmt.Fprintln(errOut, render.NoQueries())
	}
	if warn := render.MismatchWarning(*run.Result); warn != "" {
		fmt.Fprintln(errOut, warn)
	}
	return nil
}

func writeStream(out io.Writer, format export.Format, result core.FanoutResult) error {
	if format == export.FormatMarkdown && out == os.Stdout && ui.IsTerminal(os.Stdout) {
		var buf bytes.Buffer
		if err := export.WriteMarkdown(&buf, result.Queries); err != nil {
			return err
		}
		styled, err := render.Markdown(buf.String(), terminalWidth())
		if err != nil {
			return err
		}
		fmt.Fprint(out, styled)
		return nil
	}
	return export.Write(out, format, result)
}

// readQuery joins args into the query, reading stdin for "-" or when no
// args are given and stdin is piped.
func readQuery(args []string, stdin io.Reader) (string, error) {
	useStdin := len(args) == 1 && args[0] == "-"
	if len(args) == 0 {
		if file, ok := stdin.(*os.File); ok && !ui.IsTerminal(file) {
			useStdin = true
		}
	}

	query := strings.Join(args, " ")
	if useStdin {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read query from stdin: %w", err)
		}
		query = string(data)
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("a search query is required, e.g. qforia run \"best hiking boots\"")
	}
	return query, nil
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	return width
}
