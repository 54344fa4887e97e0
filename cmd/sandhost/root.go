package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/sandtree/internal/infrastructure/config"
)

var rootCmd = &cobra.Command{
	Use:   "sandhost",
	Short: "Host a tree of nested script sandboxes",
	Long: `sandhost runs root sandboxes for a controller. Each sandbox can host
its own children, commands are routed down by path and events bubble up.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML or TOML configuration file")
	flags.String("engine", "", "Backend engine (goja, stub)")
	flags.String("sand", "", "Page hosted in every window")
	flags.String("pages-dir", "", "Directory of prelude pages (*.js)")
	flags.Duration("timeout", 0, "Per-operation sandbox timeout, 0 disables it")
	flags.Int("pool", 0, "Sandbox runtime pool size")
	flags.Bool("stdio", true, "Serve the controller protocol on stdin/stdout")
	flags.Bool("http", false, "Serve HTTP endpoints and the WebSocket controller")
	flags.String("host", "", "HTTP listen host")
	flags.StringP("port", "p", "", "HTTP listen port")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write logs to this file instead of stderr")
	flags.Bool("dev", false, "Development logging")
}

// loadConfig reads the environment or the --config file, then applies the
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	var (
		cfg *config.Config
		err error
	)
	if path, _ := flags.GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("engine") {
		cfg.Engine.Type, _ = flags.GetString("engine")
	}
	if flags.Changed("sand") {
		cfg.Engine.Sand, _ = flags.GetString("sand")
	}
	if flags.Changed("pages-dir") {
		cfg.Engine.PagesDir, _ = flags.GetString("pages-dir")
	}
	if flags.Changed("timeout") {
		cfg.Sandbox.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("pool") {
		cfg.Sandbox.PoolSize, _ = flags.GetInt("pool")
	}
	if flags.Changed("stdio") {
		cfg.Transport.Stdio, _ = flags.GetBool("stdio")
	}
	if flags.Changed("http") {
		cfg.Transport.HTTPEnabled, _ = flags.GetBool("http")
	}
	if flags.Changed("host") {
		cfg.Transport.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Transport.Port, _ = flags.GetString("port")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-file") {
		cfg.Logging.File, _ = flags.GetString("log-file")
	}
	if flags.Changed("dev") {
		cfg.Logging.Development, _ = flags.GetBool("dev")
	}
	return cfg, nil
}
