package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goosewin/qforia/internal/backend"
	"github.com/goosewin/qforia/internal/config"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available model backends",
	RunE:  runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}

func runBackends(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	names := backend.Names()
	if len(names) == 0 {
		fmt.Fprintln(out, "No backends registered")
		return nil
	}

	defaultName := config.GetString("defaults.backend", backend.DefaultName())

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tDEFAULT MODEL\tCREDENTIAL\tMODELS")
	fmt.Fprintln(writer, "----\t-------------\t----------\t------")

	for _, name := range names {
		instance, ok := backend.Get(name)
		if !ok {
			continue
		}
		label := name
		if name == defaultName {
			label += " *"
		}
		credential := "missing"
		if config.APIKey(instance.CredentialKey(), "") != "" {
			credential = "configured"
		}
		model := config.GetString(name+".model", backend.DefaultModel(instance))
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", label, model, credential, strings.Join(instance.GetModels(), ", "))
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "* default backend")
	fmt.Fprintln(out, "Usage: qforia run --backend <name> \"<query>\"")
	return nil
}
