package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/render"
	"github.com/goosewin/qforia/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	showSession string
	showList    bool
	showRaw     bool
	showDelete  bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the last fan-out result of a session",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showSession, "session", "", "Session to show")
	showCmd.Flags().BoolVarP(&showList, "list", "l", false, "List all sessions")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the raw model output instead of the table")
	showCmd.Flags().BoolVar(&showDelete, "delete", false, "Forget the session's last result")

	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	if marked, err := state.CleanupStale(state.CleanupMark); err != nil {
		logger.Warn("Could not clean up stale runs", zap.Error(err))
	} else if len(marked) > 0 {
		logger.Info("Marked interrupted runs", zap.Strings("sessions", marked))
	}

	out := cmd.OutOrStdout()
	if showList {
		return listSessions(out)
	}

	session := flagOrConfig(cmd, "session", showSession, "defaults.session")
	record, found, err := state.Get(session)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprint(out, render.Welcome())
		return nil
	}

	if showDelete {
		if record.Status == state.StatusRunning {
			return fmt.Errorf("session %q is still running (use qforia stop %s)", record.Session, record.Session)
		}
		if err := state.Delete(record.Session); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted session: %s\n", record.Session)
		return nil
	}

	if showRaw {
		fmt.Fprintln(out, record.Raw)
		return nil
	}

	switch record.Status {
	case state.StatusRunning:
		fmt.Fprintf(out, "Session %q is still running (pid %d, started %s).\n", record.Session, record.PID, record.StartedAt.Format(time.RFC3339))
		return nil
	case state.StatusInterrupted:
		color.New(color.FgYellow).Fprintf(out, "The last run of session %q was interrupted before it finished.\n", record.Session)
		return nil
	}

	run := record.Run()
	if run.Status == core.StatusFailed {
		color.New(color.FgRed).Fprintf(out, "The last run of session %q failed (%s): %s\n", record.Session, record.ErrorKind, record.Error)
		if record.Raw != "" {
			fmt.Fprintln(out, "Use --raw to see the model output.")
		}
		return nil
	}

	fmt.Fprint(out, render.Result(run, terminalWidth()))
	return nil
}

func listSessions(out io.Writer) error {
	records, err := state.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(writer, "SESSION\tSTATUS\tMODE\tQUERIES\tBACKEND\tSTARTED\tQUERY")
	fmt.Fprintln(writer, "-------\t------\t----\t-------\t-------\t-------\t-----")
	for _, record := range records {
		count := "-"
		if record.Result != nil {
			count = fmt.Sprintf("%d", record.Result.ActualCount())
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.Session,
			record.Status,
			record.Mode,
			count,
			record.Backend,
			record.StartedAt.Local().Format("2006-01-02 15:04"),
			truncate(record.Query, 48))
	}
	return writer.Flush()
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
