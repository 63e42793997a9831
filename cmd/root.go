// Package cmd provides the command-line interface for sitepipe.
//
// Configuration is resolved from, highest priority first:
//
//  1. Command-line flags (--port, --log-level, ...)
//  2. SITEPIPE_<SECTION>_<OPTION> environment variables
//  3. The configuration file (--config, SITEPIPE_CONFIG_FILE or .sitepipe.yml)
//  4. Built-in defaults
package cmd

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	// configReadErr holds the result of reading the configuration file so
	// that commands can refuse a broken one.
	configReadErr error
)

// rootCmd builds the site, serves it and rebuilds on change when called
// without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sitepipe",
	Short: "Build a static site and serve it with live reload",
	Long: `sitepipe copies HTML pages, prefixes and minifies stylesheets and
optimizes images from a source tree into an output tree.

Run without a subcommand it builds everything once, serves the output
directory on the first free port and rebuilds whatever changes, reloading
connected browsers.

Examples:
  sitepipe                      # Build, serve and watch
  sitepipe --port 8080 --no-open
  sitepipe build                # Build once and exit
  sitepipe config show          # Print the resolved configuration`,
	SilenceUsage: true,
	RunE:         runLive,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitepipe.yml, can also use SITEPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().IntP("concurrency", "j", 0, "files processed in parallel per stage (0 means one per CPU)")

	addServerFlags(rootCmd)
}

// initConfig points the global Viper instance at the configuration file
// and binds the environment and command-line flags.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitepipe")
	}

	viper.SetEnvPrefix("SITEPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindFlags(rootCmd.PersistentFlags(), persistentFlagKeys)
	bindFlags(rootCmd.Flags(), serverFlagKeys)

	configReadErr = viper.ReadInConfig()
	if configReadErr == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// runtime is the configuration with the logger and reporter built from it.
type runtime struct {
	config   *config.Config
	logger   logging.Logger
	reporter errors.Reporter
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	// Without an explicit file a missing .sitepipe.yml means defaults.
	if configReadErr != nil && !isConfigNotFound(configReadErr) {
		return nil, fmt.Errorf("reading configuration file: %w", configReadErr)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	lc, err := cfg.LoggerConfig(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(lc)

	return &runtime{
		config:   cfg,
		logger:   logger,
		reporter: errors.NewConsoleReporter(logger, cmd.ErrOrStderr()),
	}, nil
}

func isConfigNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

func runLive(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	svc := services.NewLiveService(rt.config, rt.logger, rt.reporter)
	return svc.Live(cmd.Context(), services.LiveOptions{
		OnListening: func(url string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", rt.config.Paths.HTML.Dest, url)
		},
	})
}
