package cmd

import (
	"context"

	"github.com/tokentwister/flashpool/config"
	"github.com/tokentwister/flashpool/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "twister",
	Short: "A flash loan pool with an in-process asset ledger",
	Long: `twister runs the TokenTwister flash loan protocol: a lending pool
that issues uncollateralized single-call loans, invokes the borrower's
strategy callback, and collects principal plus fee before control
returns -- or unwinds the whole operation.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (json or yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	if config.GetEnvWithDefault(config.EnvDebug, "") != "" {
		debug = true
	}
	utils.InitLogger(debug)
}
