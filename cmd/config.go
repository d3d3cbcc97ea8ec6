package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goosewin/qforia/internal/config"
	"github.com/spf13/cobra"
)

var configShowSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Set a configuration value in the global config file",
	Example: "  qforia config set gemini.api_key AIza...\n  qforia config set defaults.mode complex",
	Args:    cobra.ExactArgs(2),
	RunE:    runConfigSet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration values",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config files are in use",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	configCmd.PersistentFlags().BoolVar(&configShowSecrets, "show-secrets", false, "Print API keys and tokens unmasked")

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	if key == "" {
		return errors.New("config key is required")
	}

	value, ok := config.GetConfig(key)
	if !ok {
		return fmt.Errorf("config key not found: %s", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), displayValue(key, value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	if key == "" {
		return errors.New("config key is required")
	}

	value := strings.TrimSpace(args[1])
	if value == "" {
		return errors.New("config value is required")
	}

	if err := config.SetConfig(key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated config: %s\n", key)
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	items, err := config.ListConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, key := range config.SortedKeys(items) {
		fmt.Fprintf(out, "%s=%s\n", key, displayValue(key, items[key]))
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths := config.CurrentPaths()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "default: %s\n", pathOrNone(paths.Default))
	fmt.Fprintf(out, "global:  %s\n", pathOrNone(paths.Global))
	fmt.Fprintf(out, "project: %s\n", pathOrNone(paths.Project))
	return nil
}

func displayValue(key, value string) string {
	if configShowSecrets {
		return value
	}
	return config.Redact(key, value)
}

func pathOrNone(path string) string {
	if path == "" {
		return "(none)"
	}
	return path
}
