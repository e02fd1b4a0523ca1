package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qkv-io/qKV/lib/quorum"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the transport settings of the RPC listener.
type ServerTransportConfig struct {
	// Endpoint is the listen address: host:port for tcp/http, a socket
	// path for unix
	Endpoint string

	// TCP tuning
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	ReadBufferSize  int
	WriteBufferSize int
}

// ServerConfig holds all configuration parameters for one node.
type ServerConfig struct {
	// Node identity and membership
	NodeID         string
	ClusterMembers map[string]string // nodeID -> endpoint, this node included

	// Replication parameters
	ReplicationFactor int  // n: replicas per key
	WriteQuorum       int  // w: acks per write
	ReadQuorum        int  // r: responses per read
	SloppyQuorum      bool // park failed writes as hints
	VNodes            int  // virtual nodes per physical node on the ring

	// Background maintenance
	AntiEntropyIntervalSec int
	AntiEntropyBuckets     int
	HandoffRetentionSec    int
	TombstoneRetentionSec  int

	// Snapshot persistence
	DataDir             string
	SnapshotIntervalSec int

	// RPC settings
	TimeoutSecond int64
	Transport     ServerTransportConfig

	// Metrics HTTP endpoint, empty disables the listener
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Endpoint returns this node's own listen address. The transport endpoint
// wins if set, otherwise the membership entry is used.
func (c *ServerConfig) Endpoint() string {
	if c.Transport.Endpoint != "" {
		return c.Transport.Endpoint
	}
	return c.ClusterMembers[c.NodeID]
}

// QuorumConfig converts the replication parameters into a quorum.Config.
func (c *ServerConfig) QuorumConfig() quorum.Config {
	return quorum.Config{
		N:       c.ReplicationFactor,
		W:       c.WriteQuorum,
		R:       c.ReadQuorum,
		Timeout: time.Duration(c.TimeoutSecond) * time.Second,
		Sloppy:  c.SloppyQuorum,
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Node identity
	addSection("Node Identity")
	addField("Node ID", c.NodeID)
	addField("Endpoint", c.Endpoint())

	// Replication parameters
	addSection("Replication")
	addField("Replication Factor (n)", strconv.Itoa(c.ReplicationFactor))
	addField("Write Quorum (w)", strconv.Itoa(c.WriteQuorum))
	addField("Read Quorum (r)", strconv.Itoa(c.ReadQuorum))
	addField("Sloppy Quorum", strconv.FormatBool(c.SloppyQuorum))
	addField("Virtual Nodes", strconv.Itoa(c.VNodes))

	// Background maintenance
	addSection("Maintenance")
	addField("Anti-Entropy Interval", fmt.Sprintf("%d sec", c.AntiEntropyIntervalSec))
	addField("Anti-Entropy Buckets", strconv.Itoa(c.AntiEntropyBuckets))
	addField("Handoff Retention", fmt.Sprintf("%d sec", c.HandoffRetentionSec))
	addField("Tombstone Retention", fmt.Sprintf("%d sec", c.TombstoneRetentionSec))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Snapshot Interval", fmt.Sprintf("%d sec", c.SnapshotIntervalSec))

	// RPC settings
	addSection("RPC Server")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Cluster membership
	addSection("Cluster")
	var ids []string
	for id := range c.ClusterMembers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		addField(id, c.ClusterMembers[id])
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the transport settings of an RPC client.
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int
	RetryCount             int

	// TCP tuning
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
	ReadBufferSize  int
	WriteBufferSize int
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	connectionsPerEP := c.Transport.ConnectionsPerEndpoint
	if connectionsPerEP < 1 {
		connectionsPerEP = 1
	}
	addField("Connections Per Endpoint", strconv.Itoa(connectionsPerEP))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
