package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/burrowlabs/burrow/pkg/config"
	"github.com/burrowlabs/burrow/pkg/log"
	"github.com/burrowlabs/burrow/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - cluster membership and control-plane coordination",
	Long: `Burrow coordinates a distributed job-processing cluster of one
controller and many participants on top of etcd: membership registration
with automatic repair of crashed partial registrations, and asynchronous
control messages such as graceful shutdown.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("cluster", "", "Cluster name (overrides config)")
	rootCmd.PersistentFlags().String("node-id", "", "Node ID (overrides config)")
	rootCmd.PersistentFlags().StringSlice("etcd-endpoints", nil, "etcd endpoints (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	// Add subcommands
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(controllerCmd)
	rootCmd.AddCommand(participantCmd)
	rootCmd.AddCommand(shutdownCmd)
}

// loadConfig builds the effective configuration from the config file and
// flag overrides
func loadConfig(cmd *cobra.Command, role types.NodeRole) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if name, _ := cmd.Flags().GetString("cluster"); name != "" {
		cfg.Cluster.ClusterName = name
	}
	if nodeID, _ := cmd.Flags().GetString("node-id"); nodeID != "" {
		cfg.Node.NodeID = nodeID
	}
	if endpoints, _ := cmd.Flags().GetStringSlice("etcd-endpoints"); len(endpoints) > 0 {
		cfg.Etcd.Endpoints = endpoints
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if role != "" {
		cfg.Node.Role = role
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(strings.ToLower(cfg.LogLevel)),
		JSONOutput: cfg.LogJSON,
	})
	return cfg, nil
}
