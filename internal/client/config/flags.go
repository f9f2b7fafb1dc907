package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/flagx"
)

var knownFlags = []string{"-a", "-k", "-s", "-d", "-i", "-l", "-t"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   identity provider URL
//	-k string   provider anon key
//	-s string   application server URL
//	-d string   data directory
//	-i int      online check interval in seconds
//	-l string   log level (debug, info, warn, error)
//	-t string   OTLP/HTTP traces endpoint
//
// Other arguments are filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("sessionkeeper", flag.ContinueOnError)

	fs.StringVar(&cfg.ProviderURL, "a", cfg.ProviderURL, "identity provider URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "identity provider anon key")
	fs.StringVar(&cfg.AppURL, "s", cfg.AppURL, "application server URL")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.OTLPEndpoint, "t", cfg.OTLPEndpoint, "OTLP/HTTP traces endpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}
