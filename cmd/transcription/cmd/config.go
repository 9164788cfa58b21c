package cmd

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/juniormartinxo/transcription/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing transcription configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  transcription config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, /etc/transcription, $HOME/.transcription)
  - Environment variables (TRANSCRIPTION_SERVER_PORT, TRANSCRIPTION_HISTORY_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the TRANSCRIPTION_ prefix and underscores for nesting.
Example: server.port -> TRANSCRIPTION_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map, formatting durations and byte
// sizes for human readability.
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
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// A real token can arrive via env even with no config file; never print it.
		if fieldType.Tag.Get("masq") == "secret" {
			if s, ok := field.Interface().(string); ok && s != "" {
				result[key] = "[REDACTED]"
			} else {
				result[key] = ""
			}
			continue
		}

		switch v := field.Interface().(type) {
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Defaults only, no file.
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# transcription Configuration File")
	fmt.Println("# ================================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("# Size format: 25MB, 1GB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   TRANSCRIPTION_SERVER_HOST, TRANSCRIPTION_SERVER_PORT")
	fmt.Println("#   TRANSCRIPTION_STORAGE_AUDIOS_DIR, TRANSCRIPTION_STORAGE_TRANSCRIPTIONS_DIR")
	fmt.Println("#   TRANSCRIPTION_SCHEDULER_MAX_CONCURRENT_TASKS")
	fmt.Println("#   TRANSCRIPTION_HISTORY_ENABLED, TRANSCRIPTION_HISTORY_DSN")
	fmt.Println("#   TRANSCRIPTION_LOGGING_LEVEL, TRANSCRIPTION_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
