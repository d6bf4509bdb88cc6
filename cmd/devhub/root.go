package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devhub/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devhub",
		Short:         "Stream and inspect agent runs",
		Long:          "devhub starts agent runs against a run stream server, renders their step logs live, and diffs the file changes they propose.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newDiffCmd())
	return root
}

// loadRuntimeConfig resolves configuration from devhub-config.json and
// DEVHUB_* environment variables via viper, falling back to package defaults.
func loadRuntimeConfig() config.RuntimeConfig {
	viper.SetConfigName("devhub-config")
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("server_url", config.DefaultServerURL)
	viper.SetDefault("context_lines", config.DefaultContextLines)

	viper.SetEnvPrefix("DEVHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env still apply.
	_ = viper.ReadInConfig()

	return config.RuntimeConfig{
		ServerURL:    strings.TrimRight(viper.GetString("server_url"), "/"),
		ContextLines: viper.GetInt("context_lines"),
	}
}
