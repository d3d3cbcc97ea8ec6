package cmd

import (
	"errors"
	"fmt"

	"github.com/goosewin/qforia/internal/export"
	"github.com/goosewin/qforia/internal/state"
	"github.com/spf13/cobra"
)

var (
	exportSession string
	exportFormat  string
	exportOutput  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the last fan-out result of a session",
	Long: "Write the last result of a session to a file. CSV is the default format\n" +
		"and " + export.DefaultFilename + " the default file name; use -o - for stdout.",
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportSession, "session", "", "Session to export")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "", "Export format: csv, json, yaml, markdown")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", export.DefaultFilename, "Output file, or - for stdout")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	session := flagOrConfig(cmd, "session", exportSession, "defaults.session")
	record, found, err := state.Get(session)
	if err != nil {
		return err
	}
	if !found || record.Result == nil {
		return fmt.Errorf("no result to export for session %q (run qforia run first)", session)
	}

	format := export.FormatCSV
	if exportFormat != "" {
		format, err = export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
	} else if guessed, ok := export.FormatForPath(exportOutput); ok {
		format = guessed
	}
	if format == export.FormatTable {
		return errors.New("table is not an export format; use qforia show")
	}

	if exportOutput == "-" {
		return export.Write(cmd.OutOrStdout(), format, *record.Result)
	}

	written, err := export.WriteFile(exportOutput, format, *record.Result)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d queries to %s\n", record.Result.ActualCount(), written)
	return nil
}
