package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// persistentFlagKeys maps persistent flags to configuration keys.
var persistentFlagKeys = map[string]string{
	"log-level":   "log.level",
	"log-format":  "log.format",
	"concurrency": "concurrency",
}

// serverFlagKeys maps the dev server flags to configuration keys.
var serverFlagKeys = map[string]string{
	"host":          "server.host",
	"port":          "server.port",
	"port-attempts": "server.port_attempts",
	"open":          "server.open",
	"notify":        "server.notify",
	"debounce":      "watch.debounce",
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "localhost", "Host to bind to")
	cmd.Flags().IntP("port", "p", 3000, "First port to try")
	cmd.Flags().Int("port-attempts", 100, "Consecutive ports to try before giving up")
	cmd.Flags().Bool("open", true, "Open the browser once the server is listening")
	cmd.Flags().Bool("notify", false, "Show an in-page notice on reload")
	cmd.Flags().Duration("debounce", 100*time.Millisecond, "Quiet period before a changed file is rebuilt")

	// --no-open reads better on the command line than --open=false.
	cmd.Flags().Bool("no-open", false, "Don't open the browser")
}

// bindFlags binds every flag in keys that exists on fs. Only flags the user
// set override the file and environment; unset ones fall through to the
// configuration defaults.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
	if f := fs.Lookup("no-open"); f != nil && f.Changed {
		viper.Set("server.open", false)
	}
}
