package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goosewin/qforia/internal/config"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the qforia log file",
	Long:  "Print the tail of the log file set with logging.file or --log-file.",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "F", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := logFile
	if path == "" {
		path = config.GetString("logging.file", "")
	}
	if path == "" {
		return errors.New("no log file configured (run: qforia config set logging.file <path>)")
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("log file does not exist: %s", path)
	}

	out := cmd.OutOrStdout()
	lines, err := tailLines(path, logsLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}

	if logsFollow {
		return followLogFile(cmd, path)
	}
	return nil
}

// tailLines returns the last limit lines of path, oldest first.
func tailLines(path string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ring := make([]string, limit)
	total := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ring[total%limit] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	if total <= limit {
		return ring[:total], nil
	}
	start := total % limit
	return append(ring[start:], ring[:start]...), nil
}

// followLogFile prints lines appended to path until the command is canceled.
func followLogFile(cmd *cobra.Command, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr == nil {
			fmt.Fprintln(out, strings.TrimRight(line, "\n"))
			offset += int64(len(line))
			continue
		}
		if readErr != io.EOF {
			return readErr
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return err
		}
		reader.Reset(file)
	}
}
