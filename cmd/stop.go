package cmd

import (
	"errors"
	"fmt"

	"github.com/goosewin/qforia/internal/state"
	"github.com/spf13/cobra"
)

var stopAll bool

var stopCmd = &cobra.Command{
	Use:   "stop [session]",
	Short: "Stop a running fan-out",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().BoolVarP(&stopAll, "all", "a", false, "Stop all running sessions")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if stopAll {
		if len(args) > 0 {
			return errors.New("pass a session name or --all, not both")
		}
		return stopAllSessions(cmd)
	}

	session := state.DefaultSession
	if len(args) == 1 && args[0] != "" {
		session = args[0]
	}

	_, stopped, err := state.Interrupt(session)
	if err != nil {
		return err
	}
	if !stopped {
		fmt.Fprintf(out, "Session %s is not running\n", session)
		return nil
	}
	fmt.Fprintf(out, "Stopped session: %s\n", session)
	return nil
}

func stopAllSessions(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	records, err := state.List()
	if err != nil {
		return err
	}

	stopped := 0
	for _, record := range records {
		if record.Status != state.StatusRunning {
			continue
		}
		_, ok, err := state.Interrupt(record.Session)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(out, "Stopped session: %s\n", record.Session)
			stopped++
		}
	}

	if stopped == 0 {
		fmt.Fprintln(out, "No running sessions to stop")
		return nil
	}
	fmt.Fprintf(out, "Stopped %d session(s)\n", stopped)
	return nil
}
