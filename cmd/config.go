package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect sitepipe configuration",
	Long: `Inspect the resolved sitepipe configuration.

Examples:
  sitepipe config show                     # Show the resolved configuration
  sitepipe config show --format json
  sitepipe config validate                 # Validate .sitepipe.yml
  sitepipe config validate --file site.yml --strict`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after merging the file, SITEPIPE_* environment
variables, command-line flags and defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Check the configuration for errors such as malformed globs, unknown
style steps or ports out of range, and for risky settings such as output
directories inside a watched source tree.`,
	RunE: runConfigValidate,
}

var (
	configFormat string
	configFile   string
	configStrict bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
	configValidateCmd.Flags().StringVarP(&configFile, "file", "f", "", "Configuration file to validate (default is the active one)")
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "yaml", "yml":
		fmt.Fprintln(out, "# Resolved from file, environment, flags and defaults")
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(rt.config); err != nil {
			return err
		}
		return encoder.Close()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rt.config)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if configFile != "" {
		v = viper.New()
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file: %w", err)
		}
	} else if configReadErr != nil && !isConfigNotFound(configReadErr) {
		return fmt.Errorf("failed to read configuration file: %w", configReadErr)
	}

	config.SetDefaults(v)
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	validation := config.ValidateConfigWithDetails(&cfg)
	if validation.Valid && !validation.HasWarnings() {
		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	}

	fmt.Fprint(out, validation.String())
	if validation.HasErrors() {
		return fmt.Errorf("configuration validation failed with %d errors", len(validation.Errors))
	}
	if configStrict {
		return fmt.Errorf("configuration validation failed in strict mode with %d warnings", len(validation.Warnings))
	}
	fmt.Fprintf(out, "Configuration is valid with %d warnings. Use --strict to treat warnings as errors.\n",
		len(validation.Warnings))
	return nil
}
