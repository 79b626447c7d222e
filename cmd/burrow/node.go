package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrowlabs/burrow/pkg/cluster"
	"github.com/burrowlabs/burrow/pkg/config"
	"github.com/burrowlabs/burrow/pkg/coordination"
	"github.com/burrowlabs/burrow/pkg/events"
	"github.com/burrowlabs/burrow/pkg/log"
	"github.com/burrowlabs/burrow/pkg/metrics"
	"github.com/burrowlabs/burrow/pkg/registry"
	"github.com/burrowlabs/burrow/pkg/storage"
	"github.com/burrowlabs/burrow/pkg/types"
)

// Cluster commands
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the Burrow cluster",
}

var clusterInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Provision the cluster in the coordination store",
	Long: `Provision the cluster identity record in etcd.

Provisioning happens once per cluster; re-running against an already
provisioned cluster with the same identity is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, "")
		if err != nil {
			return err
		}
		appID, _ := cmd.Flags().GetString("application-id")
		if appID != "" {
			cfg.Cluster.ApplicationID = appID
		}

		ctx := cmd.Context()
		store, err := coordination.DialEtcd(ctx, etcdConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to reach etcd: %v", err)
		}
		defer store.Close()

		if err := registry.ProvisionCluster(ctx, store, cfg.Cluster); err != nil {
			return err
		}
		fmt.Printf("✓ Cluster %s provisioned\n", cfg.Cluster.ClusterName)
		return nil
	},
}

var controllerCmd = &cobra.Command{
	Use:   "controller",
	Short: "Run a controller node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, types.RoleController)
	},
}

var participantCmd = &cobra.Command{
	Use:   "participant",
	Short: "Run a participant node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd, types.RoleParticipant)
	},
}

func init() {
	clusterInitCmd.Flags().String("application-id", "", "Application ID recorded with the cluster")
	clusterCmd.AddCommand(clusterInitCmd)
}

func runNode(cmd *cobra.Command, role types.NodeRole) error {
	cfg, err := loadConfig(cmd, role)
	if err != nil {
		return err
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	var journal *storage.Journal
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data dir: %v", err)
		}
		journal, err = storage.NewJournal(cfg.DataDir)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	mgr, err := cluster.NewManager(&cluster.Config{
		Cluster: cfg.Cluster,
		NodeID:  cfg.Node.NodeID,
		Role:    role,
		Dial:    etcdConfig(cfg).Dial(),
		Journal: journal,
		Broker:  broker,
	})
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %v", err)
	}

	// Stream lifecycle events to the log
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		logger := log.WithComponent("events")
		for event := range sub {
			logger.Info().
				Str("type", string(event.Type)).
				Msg(event.Message)
		}
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger := log.WithComponent("metrics")
				logger.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	ctx := cmd.Context()
	if err := mgr.ConnectWithRetry(ctx, cfg.Retry.MaxAttempts, cfg.Retry.Backoff()); err != nil {
		return fmt.Errorf("failed to join cluster: %v", err)
	}

	fmt.Printf("✓ Node %s connected to cluster %s as %s\n", mgr.NodeID(), cfg.Cluster.ClusterName, role)
	fmt.Println("Node is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	reason := waitForStop(ctx, mgr, sigCh)
	if reason == stopSignal {
		fmt.Println("\nShutting down...")
		if err := mgr.Disconnect(); err != nil {
			return err
		}
	} else {
		fmt.Println("\nShutdown requested by controller, node stopped.")
	}
	return nil
}

type stopReason int

const (
	stopSignal stopReason = iota
	stopRemote
)

// waitForStop blocks until the process receives a signal or the manager is
// driven to Stopped by a shutdown control message
func waitForStop(ctx context.Context, mgr *cluster.Manager, sigCh <-chan os.Signal) stopReason {
	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()
	for {
		select {
		case <-sigCh:
			return stopSignal
		case <-ctx.Done():
			return stopSignal
		case <-poll.C:
			if mgr.IsStopped() {
				return stopRemote
			}
		}
	}
}

func etcdConfig(cfg *config.Config) coordination.EtcdConfig {
	return coordination.EtcdConfig{
		Endpoints:  cfg.Etcd.Endpoints,
		SessionTTL: cfg.Etcd.SessionTTL,
		Username:   cfg.Etcd.Username,
		Password:   cfg.Etcd.Password,
	}
}
