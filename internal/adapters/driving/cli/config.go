package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		keys := configStore.Keys()
		if len(keys) == 0 {
			fmt.Fprintf(out, "No configuration set (%s).\n", configStore.Path())
			return nil
		}
		for _, key := range keys {
			value, _ := configStore.Get(key)
			fmt.Fprintf(out, "%s = %v\n", key, value)
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, ok := configStore.Get(args[0])
		if !ok {
			return fmt.Errorf("key %q is not set", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", value)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Values that parse as booleans, integers
or floats are stored typed; everything else is stored as a string.

Common keys:
  embedding.provider             openai or ollama
  embedding.api_key              API key for the openai provider
  embedding.model                embedding model name
  index.backend                  sqlite or chroma
  index.path                     sqlite database path
  index.url                      chroma server URL
  index.collection               chroma collection name
  retrieval.k                    maximum result count
  retrieval.gap_threshold        distance jump treated as a cliff
  retrieval.distance_threshold   margin over the best result
  retrieval.max_iterations       filtering re-query rounds
  retrieval.filtering            set to false to disable predicate filtering`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configStore.Set(args[0], parseConfigValue(args[1])); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s.\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// parseConfigValue infers a typed value from the command line argument.
func parseConfigValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
