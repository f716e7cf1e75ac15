package main

import (
	"fmt"
	"os"

	"github.com/melih/lighthouse-classroom/internal/config"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"

	v   = viper.New()
	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lighthouse",
	Short: "Lighthouse - serve uploaded content from per-resource containers",
	Long: `Lighthouse builds a small web-server image for every uploaded content
bundle, runs it on a host port of its own and rebuilds it when the content
changes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		cfg = loaded

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
			Output:     os.Stderr,
		})
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("Lighthouse version %s\nCommit: %s\n", Version, Commit))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON")
	flags.String("store-driver", config.DriverBolt, "Registry store driver (bolt, sqlite)")
	flags.String("store-path", "./data", "Data directory (bolt) or database file (sqlite)")
	flags.String("media-root", "./data/media", "Directory uploaded content is stored under")

	for key, flag := range map[string]string{
		"log.level":    "log-level",
		"log.json":     "log-json",
		"store.driver": "store-driver",
		"store.path":   "store-path",
		"media.root":   "media-root",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(teardownCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(recordsCmd)
}
