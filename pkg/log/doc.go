/*
Package log provides structured logging for Burrow using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and support
filtering by severity level.

# Usage

Initializing the logger (once, at process start):

	import "github.com/burrowlabs/burrow/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Component loggers:

	logger := log.WithComponent("registry")
	logger.Info().Str("node_id", nodeID).Msg("registration complete")

Node loggers carry node_id and role on every line:

	logger := log.WithNode("participant-1", "participant")
	logger.Warn().Err(err).Msg("connect attempt failed")

# Integration Points

This package integrates with:

  - pkg/cluster: connection lifecycle logging per node
  - pkg/registry: registration and repair logging
  - pkg/messaging: delivery loop and handler boundary logging
  - cmd/burrow: logger initialization from configuration
*/
package log
