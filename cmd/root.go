package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/seubert/gammalog/cmd/export"
	"github.com/seubert/gammalog/cmd/log"
	"github.com/seubert/gammalog/cmd/stats"
	"github.com/seubert/gammalog/internal/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gammalog",
	Short: "gammalog logs radiation and environment sensors",
	Long: `gammalog polls Geiger counters and environment sensors on a fixed
log cycle, stores the readings as a canonical time series and computes
statistics over arbitrary time windows.`,
}

func Execute() {
	logger.Initialize()
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func addSubCommandPalettes() {
	rootCmd.AddCommand(log.LogCmd)
	rootCmd.AddCommand(stats.StatsCmd)
	rootCmd.AddCommand(export.ExportCmd)
}

func init() {
	cobra.OnInitialize(initConfig)

	addSubCommandPalettes()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gammalog.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".gammalog")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
