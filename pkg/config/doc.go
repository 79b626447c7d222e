/*
Package config loads Burrow node configuration from YAML.

Configuration covers the cluster identity, the node identity and role, etcd
connection settings, the bounded connect retry policy, and the optional data
directory and metrics endpoint. Defaults apply for everything except the
cluster name.

# Example

	cluster:
	  cluster_name: jobs
	  application_id: payroll-batch
	node:
	  node_id: participant-1
	  role: participant
	etcd:
	  endpoints: ["localhost:2379"]
	  session_ttl: 15
	retry:
	  max_attempts: 5
	  policy: exponential
	  initial_backoff: 250ms
	  max_backoff: 5s
	data_dir: /var/lib/burrow
	metrics_addr: ":9090"
	log_level: info

The retry policy is deliberately configurable: "exponential" grows from
initial_backoff up to max_backoff, "fixed" waits initial_backoff every time.
Both are bounded by max_attempts, never by wall time.
*/
package config
