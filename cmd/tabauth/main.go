// Command tabauth runs the pieces of a tab-scoped session setup locally: a dev
// token issuer, a marker-checking edge guard, and a headless session that logs
// in and keeps its access token renewed.
//
// Configuration comes from flags, TABAUTH_* environment variables and an
// optional YAML file, in that order of precedence.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tabauth",
		Short:         "Tab-scoped session tooling for the blog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./tabauth.yaml if present)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	_ = viper.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", cmd.PersistentFlags().Lookup("log-format"))

	cmd.AddCommand(newIssuerCmd())
	cmd.AddCommand(newGuardCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newLoadtestCmd())

	return cmd
}

// initConfig reads the config file, if any, and binds TABAUTH_* variables.
// A missing default file is not an error; a missing --config file is.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("tabauth")
	}

	viper.SetEnvPrefix("TABAUTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return err
	}
	return nil
}
