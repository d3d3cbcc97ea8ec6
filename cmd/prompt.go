package cmd

import (
	"fmt"

	"github.com/goosewin/qforia/internal/config"
	"github.com/goosewin/qforia/internal/core"
	"github.com/spf13/cobra"
)

var promptMode string

var promptCmd = &cobra.Command{
	Use:   "prompt [query...]",
	Short: "Print the prompt that would be sent to the model",
	Long:  "Build the fan-out prompt for a query without calling any model.",
	RunE:  runPrompt,
}

func init() {
	promptCmd.Flags().StringVarP(&promptMode, "mode", "m", "", "Search mode: simple (AI Overview) or complex (AI Mode)")

	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, args []string) error {
	query, err := readQuery(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	mode, err := core.ParseMode(flagOrConfig(cmd, "mode", promptMode, "defaults.mode"))
	if err != nil {
		return err
	}
	template, err := core.ResolvePromptTemplate(config.GetString("prompt.template_file", ""))
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), core.RenderPromptTemplate(template, query, mode))
	return nil
}
