package di

import (
	"go.uber.org/zap"

	"github.com/mikey/mailgraph/internal/config"
	"github.com/mikey/mailgraph/internal/logging"
)

// Options carries command line settings into the container
type Options struct {
	// ConfigFile selects an explicit config file instead of the search path
	ConfigFile string
	Verbose    bool
	JSONLog    bool
	// Overrides are applied on top of the loaded configuration
	Overrides map[string]interface{}
}

// loadConfig reads the configuration and applies flag overrides
func loadConfig(opts *Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.NewFromFile(opts.ConfigFile)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, err
	}

	for key, value := range opts.Overrides {
		cfg.Set(key, value)
	}
	return cfg, nil
}

// newLogger prefers the console logger when a flag asked for it, and the
// configured logger otherwise
func newLogger(opts *Options, cfg *config.Config) (*zap.Logger, error) {
	if opts.Verbose || opts.JSONLog {
		return logging.InitConsoleLogger(opts.Verbose, opts.JSONLog)
	}
	return logging.InitLogger(cfg)
}
