// Package cmd implements the seedgen command line.
package cmd

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/config"
	"github.com/ekaya-inc/ekaya-seed/pkg/llm"
	"github.com/ekaya-inc/ekaya-seed/pkg/logging"
)

// factoryFunc builds the client factory for a loaded config.
type factoryFunc func(cfg *config.Config, logger *zap.Logger) llm.LLMClientFactory

func defaultFactory(cfg *config.Config, logger *zap.Logger) llm.LLMClientFactory {
	return llm.NewClientFactory(cfg.FactoryConfig(), logger)
}

// app is the state shared by every subcommand, set during PersistentPreRunE.
type app struct {
	version    string
	newFactory factoryFunc

	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the root command.
func Execute(version string) {
	root := newRootCmd(version, defaultFactory)
	if err := root.Execute(); err != nil {
		exitWithError(root.ErrOrStderr(), err)
	}
}

func newRootCmd(version string, newFactory factoryFunc) *cobra.Command {
	a := &app{version: version, newFactory: newFactory}

	root := &cobra.Command{
		Use:   "seedgen",
		Short: "Generate validated seed SQL for assessment question banks",
		Long: `seedgen - seed script generation for job positions and question banks

seedgen assigns primary keys locally, asks a language model to write the
INSERT statements, and validates every row, reference and key before the
script is released.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help/completion/version commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: "+config.DefaultPath+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging in console format")

	root.AddCommand(
		newGenerateCmd(a),
		newPromptCmd(a),
		newValidateCmd(a),
		newServeCmd(a),
		newCheckCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) load() error {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return configError("loading .env", err)
	}

	cfg, err := config.Load(a.cfgFile, a.version)
	if err != nil {
		return configError("loading configuration", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if a.verbose {
		level, format = "debug", "console"
	}
	logger, err := logging.NewLogger(level, format)
	if err != nil {
		return configError("creating logger", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// loadDotEnv loads each file that exists. Variables already set in the
// environment are left alone.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func (a *app) factory() llm.LLMClientFactory {
	return a.newFactory(a.cfg, a.logger)
}

// apiKey returns the flag value or the environment key for the model's provider.
func (a *app) apiKey(flagValue, model string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.cfg.APIKeyFor(model)
}
