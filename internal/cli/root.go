// Package cli implements the apollo command surface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariejan/apollo/internal/config"
	"github.com/ariejan/apollo/internal/engine"
	"github.com/ariejan/apollo/internal/logger"
)

type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
	eng *engine.Engine
}

// Execute runs the root command. Returns a process exit code.
func Execute() int {
	a := &app{}
	root := a.rootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "apollo",
		Short:         "Apollo is a local music-library manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.initCommand(),
		a.importCommand(),
		a.listCommand(),
		a.queryCommand(),
		a.statsCommand(),
		a.configCommand(),
		a.webCommand(),
		a.playlistCommand(),
		a.duplicatesCommand(),
	)
	return root
}

// setup loads configuration and builds the logger; used by every verb.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(logger.Options{
		Verbose:  a.verbose,
		FilePath: filepath.Join(config.DefaultDir(), "apollo.log"),
	})
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// openEngine assembles the full engine; callers must defer closeEngine.
func (a *app) openEngine() error {
	if err := a.setup(); err != nil {
		return err
	}
	eng, err := engine.New(a.cfg, a.log)
	if err != nil {
		return err
	}
	a.eng = eng
	return nil
}

func (a *app) closeEngine() {
	if a.eng != nil {
		if err := a.eng.Close(); err != nil {
			a.log.Warn("engine close failed", zap.Error(err))
		}
		a.eng = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
