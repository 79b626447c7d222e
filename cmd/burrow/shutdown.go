package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burrowlabs/burrow/pkg/cluster"
	"github.com/burrowlabs/burrow/pkg/types"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Request graceful shutdown of participant nodes",
	Long: `Connect as a controller and publish a shutdown control message.

The message is delivered asynchronously; targeted participants stop on
receipt. Use --node for a single participant or --all for every one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, types.RoleController)
		if err != nil {
			return err
		}

		target, _ := cmd.Flags().GetString("node")
		all, _ := cmd.Flags().GetBool("all")
		if (target == "") == !all {
			return fmt.Errorf("exactly one of --node or --all is required")
		}

		mgr, err := cluster.NewManager(&cluster.Config{
			Cluster: cfg.Cluster,
			NodeID:  cfg.Node.NodeID,
			Role:    types.RoleController,
			Dial:    etcdConfig(cfg).Dial(),
		})
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if err := mgr.ConnectWithRetry(ctx, cfg.Retry.MaxAttempts, cfg.Retry.Backoff()); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}
		defer mgr.Disconnect()

		scope := types.ScopeAllParticipants
		if target != "" {
			scope = types.ScopeSingleNode
		}
		if err := mgr.SendShutdownRequest(ctx, scope, target); err != nil {
			return err
		}

		if target != "" {
			fmt.Printf("✓ Shutdown requested for node %s\n", target)
		} else {
			fmt.Println("✓ Shutdown requested for all participants")
		}
		return nil
	},
}

func init() {
	shutdownCmd.Flags().String("node", "", "Target a single participant node ID")
	shutdownCmd.Flags().Bool("all", false, "Target all participants")
}
