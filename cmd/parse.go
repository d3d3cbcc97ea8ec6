package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/export"
	"github.com/spf13/cobra"
)

var (
	parseStrategy string
	parseFormat   string
	parseOutput   string
	parseQuery    string
	parseMode     string
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Interpret saved model output without calling a model",
	Long: "Extract the fan-out JSON from raw model output stored in a file (or stdin\n" +
		"with \"-\") and render or export it like a live run.",
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&parseStrategy, "strategy", "", "JSON extraction strategy: greedy or balanced")
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "", "Output format: table, csv, json, yaml, markdown")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Write the result to a file instead of stdout")
	parseCmd.Flags().StringVar(&parseQuery, "query", "", "Original query, shown in the generation plan")
	parseCmd.Flags().StringVarP(&parseMode, "mode", "m", "", "Mode the output was generated with")

	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := readRaw(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	strategy, err := core.ParseStrategy(flagOrConfig(cmd, "strategy", parseStrategy, "parse.strategy"))
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(flagOrConfig(cmd, "format", parseFormat, "defaults.format"))
	if err != nil {
		return err
	}
	mode, err := core.ParseMode(flagOrConfig(cmd, "mode", parseMode, "defaults.mode"))
	if err != nil {
		return err
	}

	result, err := core.ParseFanoutWith(raw, core.ParseOptions{Strategy: strategy})
	if err != nil {
		return err
	}

	run := core.RunResult{
		Request: core.FanoutRequest{Query: strings.TrimSpace(parseQuery), Mode: mode},
		Raw:     raw,
		Result:  &result,
		Status:  core.StatusSuccess,
	}
	if result.ActualCount() == 0 {
		run.Status = core.StatusNoQueries
	}
	return writeRun(cmd.OutOrStdout(), cmd.ErrOrStderr(), format, parseOutput, run)
}

func readRaw(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read model output from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read model output: %w", err)
	}
	return string(data), nil
}
