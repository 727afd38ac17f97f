package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/logger"
)

type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
	debug      bool

	loader *config.Loader
	cfg    *config.Config
	log    logger.Logger
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "mnemo",
		Short:         "Persistent memory substrate for agents",
		Long:          "mnemo stores agent memories, ranks them by relevance and decayed strength, and consolidates and tunes itself in the background.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log level")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts),
		newConsolidateCommand(opts),
		newEvolveCommand(opts),
		newStrengthCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load reads the dotenv file, then the layered configuration, and builds
// the logger.
func (o *globalOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	overrides := map[string]interface{}{}
	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}
	if o.debug {
		overrides["app.debug"] = true
		overrides["log.level"] = "debug"
	}

	o.loader = config.NewLoader()
	cfg, err := o.loader.Load(o.configPath, overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration:\n%w", err)
	}
	o.cfg = cfg

	o.log = logger.New(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	logger.SetGlobal(o.log)
	return nil
}
