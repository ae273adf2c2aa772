package main

import (
	"os"

	"github.com/mohammad-safakhou/tweetsense/config"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	var root = &cobra.Command{
		Use:           "tweetsense",
		Short:         "Sentiment analysis for posts matching a search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config/config.json)")

	root.AddCommand(serveCMD(), migrateCMD(), artifactsCMD(), cleanCMD(), tokenCMD())
	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// load reads the config and builds the service logger from it.
func load() (*config.Config, *logrus.Entry, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.NewLoggerWithService("tweetsense", cfg.General.LogLevel, cfg.General.LogFormat), nil
}
