package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/draftflow/internal/cli"
	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/config"
)

var version = "dev"

// app carries state shared by every command of one invocation.
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	interrupts *cli.InterruptHandler
	out        io.Writer
	errOut     io.Writer
	cfgFile    string
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		v:          viper.New(),
		interrupts: cli.NewInterruptHandler(errOut),
		out:        out,
		errOut:     errOut,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "draftflow",
		Short: "📊 Batched analytics over AI draft reviews",
		Long: `draftflow: reads AI-drafted support replies and their human reviews from a
row-limited store in concurrent page waves, then reports quality, trends,
category distribution, requirement correlation and draft flow.`,
		PersistentPreRunE: a.initConfig,
		SilenceUsage:      true,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	// Global flags
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.config/draftflow/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().String("driver", "", "store driver (sqlite, postgres, rest)")
	root.PersistentFlags().String("dsn", "", "sqlite path or postgres connection string")

	// Bind flags to viper
	_ = a.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = a.v.BindPFlag("store.driver", root.PersistentFlags().Lookup("driver"))
	_ = a.v.BindPFlag("store.dsn", root.PersistentFlags().Lookup("dsn"))

	// Add commands
	root.AddCommand(a.migrateCmd())
	root.AddCommand(a.importCmd())
	root.AddCommand(a.reportCmds()...)
	root.AddCommand(a.rowsCmd())
	root.AddCommand(a.snapshotCmd())
	root.AddCommand(a.serveCmd())
	root.AddCommand(versionCmd())
	return root
}

func main() {
	a := newApp(os.Stdout, os.Stderr)

	ctx, stop := a.interrupts.HandleInterrupts(context.Background(), true)
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}

func (a *app) initConfig(_ *cobra.Command, _ []string) error {
	config.SetDefaults(a.v)

	// Set up config file
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		dir, err := config.Dir()
		if err != nil {
			return err
		}
		// Search for config in standard locations
		a.v.AddConfigPath(dir)
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	// Read config file
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return common.NewUserError("configuration is invalid", err)
	}
	a.cfg = cfg

	// Set up logging
	level, err := common.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	if err := common.SetupLoggerTo(a.errOut, level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "draftflow version "+version)
		},
	}
}
