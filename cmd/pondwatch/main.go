/*
pondwatch estimates the water level of a stormwater pond from a distance
sensor, cross-checked against a hydraulic model of the pond.
*/
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	const (
		defaultConfig   = ""
		configUsage     = "YAML configuration file; flags override it"
		defaultLogLevel = ""
		logLevelUsage   = "Log level: debug, info, warn, error (default from config)"
	)

	rootCmd := &cobra.Command{
		Use:          "pondwatch",
		Short:        "Fault-aware pond water level estimation",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", defaultConfig, configUsage)
	rootCmd.PersistentFlags().String("log-level", defaultLogLevel, logLevelUsage)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSummaryCmd())
	rootCmd.AddCommand(newErrorsCmd())
	rootCmd.AddCommand(newCalibrateCmd())
	rootCmd.AddCommand(newPumpCmd())

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
