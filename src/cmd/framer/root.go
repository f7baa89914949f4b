// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/core"
	"github.com/devblok/framer/src/logging"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	configuration core.Configuration
)

var rootCmd = &cobra.Command{
	Use:   "framer",
	Short: "Frames-in-flight renderer",
	Long: `Framer renders a small scene with a fixed number of frames in flight,
on Vulkan or on the in-process soft device.

Configuration is read from framer.yaml, FRAMER_ environment variables
override it and a .env file is loaded before either.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfiguration,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.framer/framer.yaml or ./framer.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides logging.level")
}

func loadConfiguration(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "loading %s", envFile)
		}
	}
	envy.Reload()

	path := cfgFile
	if path == "" {
		path = envy.Get("FRAMER_CONFIG", "")
	}
	cfg, err := core.LoadConfiguration(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logging.Init(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return err
	}
	configuration = cfg
	return nil
}
