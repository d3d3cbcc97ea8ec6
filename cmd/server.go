package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goosewin/qforia/internal/config"
	"github.com/goosewin/qforia/internal/server"
	"github.com/goosewin/qforia/internal/state"
	"github.com/spf13/cobra"
)

var (
	serverHost  string
	serverPort  int
	serverToken string
	serverOpen  bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP fan-out API",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "127.0.0.1", "Host/IP to bind to")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Port number")
	serverCmd.Flags().StringVarP(&serverToken, "token", "t", "", "Authentication token")
	serverCmd.Flags().BoolVar(&serverOpen, "open", false, "Disable token requirement (use with caution)")

	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	host := flagOrConfig(cmd, "host", serverHost, "server.host")
	if host == "" {
		host = "127.0.0.1"
	}
	port := serverPort
	if !cmd.Flags().Changed("port") {
		port = config.GetInt("server.port", serverPort)
	}
	token := flagOrConfig(cmd, "token", serverToken, "server.token")
	open := serverOpen
	if !cmd.Flags().Changed("open") {
		open = parseBool(config.GetString("server.open", ""), serverOpen)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	if !isLocalhost(host) && token == "" && !open {
		return errors.New("token required when binding to non-localhost address (use --token or --open)")
	}
	if !isLocalhost(host) && open && token == "" {
		fmt.Fprintln(os.Stderr, "Warning: server exposed without authentication (--open flag used)")
		fmt.Fprintln(os.Stderr, "Anyone with network access can run fan-outs on your API key!")
	}

	printServerInfo(cmd, host, port, token)

	return server.StartServer(cmd.Context(), server.Options{
		Host:   host,
		Port:   port,
		Token:  token,
		Open:   open,
		Runner: server.RunnerFunc(serveFanout),
		Logger: logger,
	})
}

// serveFanout runs one API request through the same path as `qforia run`,
// without the spinner.
func serveFanout(ctx context.Context, req server.FanoutRequest) (state.Record, error) {
	record, _, err := executeFanout(ctx, fanoutParams{
		Query:   req.Query,
		Mode:    req.Mode,
		Backend: req.Backend,
		Model:   req.Model,
		Session: req.Session,
		Origin:  state.OriginServer,
	})
	return record, err
}

func printServerInfo(cmd *cobra.Command, host string, port int, token string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting qforia API server on %s:%d...\n", host, port)
	fmt.Fprintln(out, "Endpoints:")
	fmt.Fprintln(out, "  GET  /                      - Health check")
	fmt.Fprintln(out, "  POST /fanout                - Run a fan-out {\"query\", \"mode\"}")
	fmt.Fprintln(out, "  GET  /result/:session       - Last result of a session")
	fmt.Fprintln(out, "  GET  /result/:session/csv   - Last result as CSV")
	fmt.Fprintln(out, "  DELETE /result/:session     - Forget a session")
	fmt.Fprintln(out, "  GET  /prompt?q=&mode=       - Preview the prompt")
	if strings.TrimSpace(token) != "" {
		fmt.Fprintln(out, "Authentication: Bearer token required")
	} else {
		fmt.Fprintln(out, "Authentication: None (use --token to enable)")
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	fmt.Fprintln(out, "")
}

func isLocalhost(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}

func parseBool(value string, fallback bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		switch strings.ToLower(value) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
		return fallback
	}
	return parsed
}
