package cmd

import (
	"fmt"
	"reflect"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/nekorec/blivec/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing the recorder's configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in TOML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  blivec config dump > config.toml

Configuration can be set via:
  - Config file (./config.toml, /etc/blivec/config.toml, $HOME/.blivec/config.toml)
  - Environment variables (BLIVEC_SERVER_PORT, BLIVEC_RECORDER_QUALITY, etc.)
  - Command-line flags (for serve's room/server options)

Environment variables use the BLIVEC_ prefix and underscores for nesting.
Example: server.port -> BLIVEC_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map keyed by its mapstructure tags, formatting
// config.Duration/config.ByteSize fields via their String methods so the
// dump reads like hand-written TOML rather than raw nanoseconds/bytes.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch iv := field.Interface().(type) {
		case fmt.Stringer:
			result[key] = iv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else if field.Kind() == reflect.Slice && field.Len() == 0 {
				// Omit empty slices (tasks, webhooks) from the template.
				continue
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	tomlData, err := toml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# blivec configuration file")
	fmt.Println("# =========================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 5MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides use the BLIVEC_ prefix, e.g.")
	fmt.Println("#   BLIVEC_SERVER_HOST, BLIVEC_SERVER_PORT, BLIVEC_SERVER_API_KEY")
	fmt.Println("#   BLIVEC_RECORDER_QUALITY, BLIVEC_RECORDER_STREAM_FORMAT")
	fmt.Println("#   BLIVEC_HEADER_COOKIE, BLIVEC_HEADER_USER_AGENT")
	fmt.Println("#   BLIVEC_LOGGING_LEVEL, BLIVEC_LOGGING_FORMAT")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(tomlData))

	return nil
}
