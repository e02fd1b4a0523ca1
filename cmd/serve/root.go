package serve

import (
	"fmt"
	"strings"

	cmdUtil "github.com/qkv-io/qKV/cmd/util"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
	"github.com/qkv-io/qKV/rpc/server"
	"github.com/qkv-io/qKV/rpc/transport"
	"github.com/qkv-io/qKV/rpc/transport/http"
	"github.com/qkv-io/qKV/rpc/transport/tcp"
	"github.com/qkv-io/qKV/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a qKV node",
		Long:    `Start a qKV node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is QKV_<flag> (e.g. QKV_WRITE_QUORUM=2)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "node-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("NodeID is the unique identifier of this node (e.g. 'node-1'). It must appear in the cluster members list"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("ClusterMembers is a comma-separated list of node addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'. This node itself must be included"))

	key = "replication-factor"
	ServeCmd.PersistentFlags().Int(key, 3, cmdUtil.WrapString("ReplicationFactor (n) is the number of replicas that store each key"))

	key = "write-quorum"
	ServeCmd.PersistentFlags().Int(key, 2, cmdUtil.WrapString("WriteQuorum (w) is the number of replica acknowledgements required before a write succeeds. w+r must be greater than n"))

	key = "read-quorum"
	ServeCmd.PersistentFlags().Int(key, 2, cmdUtil.WrapString("ReadQuorum (r) is the number of replica responses required before a read succeeds. w+r must be greater than n"))

	key = "sloppy-quorum"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("SloppyQuorum enables hinted handoff: writes that miss a preference-list replica are parked locally and delivered once the replica is reachable again"))

	key = "vnodes"
	ServeCmd.PersistentFlags().Int(key, 128, cmdUtil.WrapString("VNodes is the number of virtual nodes each physical node occupies on the consistent-hash ring"))

	key = "anti-entropy-interval"
	ServeCmd.PersistentFlags().Int(key, 30, cmdUtil.WrapString("Interval in seconds between anti-entropy rounds. Set to 0 to disable background synchronization"))

	key = "anti-entropy-buckets"
	ServeCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Number of digest buckets used to compare replica contents during anti-entropy. All nodes must use the same value"))

	key = "handoff-retention"
	ServeCmd.PersistentFlags().Int(key, 3600, cmdUtil.WrapString("How long (in seconds) parked hints are retained before they expire"))

	key = "tombstone-retention"
	ServeCmd.PersistentFlags().Int(key, 86400, cmdUtil.WrapString("How long (in seconds) deletion markers are retained before they are garbage collected"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("DataDir is the directory used for storing snapshots of the local store. Leave empty to run purely in memory"))

	key = "snapshot-interval"
	ServeCmd.PersistentFlags().Int(key, 300, cmdUtil.WrapString("Interval in seconds between snapshots of the local store (requires data-dir)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address on which Prometheus metrics are exposed (e.g. 'localhost:9100'). Leave empty to disable metrics"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for replica-to-replica requests"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address on which the node listens (e.g. 0.0.0.0:8080, /tmp/qkv.sock, ...). Defaults to this node's cluster member address"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.NodeID = viper.GetString("node-id")
	serveCmdConfig.ReplicationFactor = viper.GetInt("replication-factor")
	serveCmdConfig.WriteQuorum = viper.GetInt("write-quorum")
	serveCmdConfig.ReadQuorum = viper.GetInt("read-quorum")
	serveCmdConfig.SloppyQuorum = viper.GetBool("sloppy-quorum")
	serveCmdConfig.VNodes = viper.GetInt("vnodes")
	serveCmdConfig.AntiEntropyIntervalSec = viper.GetInt("anti-entropy-interval")
	serveCmdConfig.AntiEntropyBuckets = viper.GetInt("anti-entropy-buckets")
	serveCmdConfig.HandoffRetentionSec = viper.GetInt("handoff-retention")
	serveCmdConfig.TombstoneRetentionSec = viper.GetInt("tombstone-retention")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SnapshotIntervalSec = viper.GetInt("snapshot-interval")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.NodeID == "" {
		return fmt.Errorf("node-id is required")
	}

	// parse cluster members
	clusterMembers := viper.GetString("cluster-members")
	if clusterMembers == "" {
		return fmt.Errorf("cluster-members is required")
	}
	serveCmdConfig.ClusterMembers = make(map[string]string)
	for _, member := range strings.Split(clusterMembers, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		serveCmdConfig.ClusterMembers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	// test if this node is in the cluster members
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.NodeID]; !ok {
		return fmt.Errorf("no address found for node ID %q in cluster members", serveCmdConfig.NodeID)
	}

	// the replication factor can not exceed the cluster size
	if serveCmdConfig.ReplicationFactor > len(serveCmdConfig.ClusterMembers) {
		return fmt.Errorf("replication factor %d exceeds cluster size %d", serveCmdConfig.ReplicationFactor, len(serveCmdConfig.ClusterMembers))
	}

	// check the quorum safety condition (w+r > n)
	return serveCmdConfig.QuorumConfig().Validate()
}

// run starts the qKV node
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// parse the transport (the peer client transport must match the
	// server transport since all nodes speak the same protocol)
	var t transport.IRPCServerTransport
	var clientTransports server.ClientTransportFactory
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
		clientTransports = http.NewHttpClientTransport
	case "tcp":
		t = tcp.NewTCPServerTransport()
		clientTransports = tcp.NewTCPClientTransport
	case "unix":
		t = unix.NewUnixServerTransport(64 * 1024)
		clientTransports = unix.NewUnixClientTransport
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		clientTransports,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("qkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

}
