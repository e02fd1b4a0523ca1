package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"os/signal"
	"syscall"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/qkv-io/qKV/lib/antientropy"
	"github.com/qkv-io/qKV/lib/handoff"
	"github.com/qkv-io/qKV/lib/quorum"
	"github.com/qkv-io/qKV/lib/repair"
	"github.com/qkv-io/qKV/lib/ring"
	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/store/mstore"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
	"github.com/qkv-io/qKV/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

const snapshotFileName = "snapshot.qkv"

// ClientTransportFactory creates a fresh client transport for dialing one
// peer node. Each peer gets its own transport instance.
type ClientTransportFactory func() transport.IRPCClientTransport

// NewRPCServer creates a new RPC server node
// It takes a config, a server transport, a serializer and a factory for
// client transports (used to dial the other cluster members) as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//		tcp.NewTCPClientTransport,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	serverTransport transport.IRPCServerTransport,
	srlzr serializer.IRPCSerializer,
	clientTransports ClientTransportFactory,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:           config,
		transport:        serverTransport,
		serializer:       srlzr,
		clientTransports: clientTransports,
		replicas:         xsync.NewMapOf[string, *remoteReplica](),
		stopCh:           make(chan struct{}),
	}
}

type RPCServer struct {
	config           common.ServerConfig
	transport        transport.IRPCServerTransport
	serializer       serializer.IRPCSerializer
	clientTransports ClientTransportFactory

	store       store.IReplicaStore
	ring        *ring.Ring
	coordinator *quorum.Coordinator
	handoff     *handoff.Manager
	antiEntropy *antientropy.Service
	replicas    *xsync.MapOf[string, *remoteReplica]
	adapters    []IRPCServerAdapter

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// --------------------------------------------------------------------------
// Assembly
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {

	// Init loggers
	common.InitLoggers(s.config.LogLevel)

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE STORE

	s.store = mstore.NewMemoryStore(&mstore.Options{
		TombstoneRetention: time.Duration(s.config.TombstoneRetentionSec) * time.Second,
	})
	if err := s.loadSnapshot(); err != nil {
		return err
	}

	// CREATE RING

	members := s.config.ClusterMembers
	if _, ok := members[s.config.NodeID]; !ok {
		return fmt.Errorf("node %q is not part of the cluster members", s.config.NodeID)
	}
	nodes := make([]ring.Node, 0, len(members))
	for id, addr := range members {
		nodes = append(nodes, ring.Node{ID: id, Addr: addr})
	}
	s.ring = ring.NewRing(s.config.VNodes)
	s.ring.SetNodes(nodes)

	// CREATE PEER CLIENTS

	/*
		Note: peer connections are dialed lazily on first use. A peer that is
		down at startup must not keep this node from serving, the quorum
		logic absorbs the failure and hinted handoff catches the write up
		later.
	*/

	for id, addr := range members {
		if id == s.config.NodeID {
			continue
		}
		s.replicas.Store(id, newRemoteReplica(id, addr, s.config, s.clientTransports, s.serializer))
	}

	// CREATE HINTED HANDOFF

	s.handoff = handoff.NewManager(
		time.Duration(s.config.HandoffRetentionSec)*time.Second,
		func(targetID string) (handoff.Replica, error) {
			replica, err := s.replicaByID(targetID)
			if err != nil {
				return nil, err
			}
			return replica, nil
		},
	)

	// CREATE COORDINATOR

	coordinator, err := quorum.NewCoordinator(
		s.config.QuorumConfig(),
		s.config.NodeID,
		s.resolveReplicas,
		repair.NewReadRepairer(timeout),
		s.handoff,
	)
	if err != nil {
		return err
	}
	s.coordinator = coordinator

	// CREATE ANTI-ENTROPY

	s.antiEntropy = antientropy.NewService(
		s.store,
		s.antiEntropyPeers,
		time.Duration(s.config.AntiEntropyIntervalSec)*time.Second,
		s.config.AntiEntropyBuckets,
	)

	// CREATE ADAPTERS

	s.adapters = []IRPCServerAdapter{
		NewCoordinatorServerAdapter(s.coordinator, timeout),
		NewReplicaServerAdapter(s.store, s.config.AntiEntropyBuckets),
	}

	Logger.Infof("qKV node %s setup completed successfully", s.config.NodeID)

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// resolveReplicas maps a key's ring preference list to replica clients. The
// local node is served without a transport round trip.
func (s *RPCServer) resolveReplicas(key string) []quorum.ReplicaClient {
	preference := s.ring.PreferenceList(key, s.config.ReplicationFactor)

	clients := make([]quorum.ReplicaClient, 0, len(preference))
	for _, node := range preference {
		if node.ID == s.config.NodeID {
			clients = append(clients, quorum.NewLocalReplica(node.ID, s.store))
			continue
		}
		if replica, ok := s.replicas.Load(node.ID); ok {
			clients = append(clients, replica)
		}
	}
	return clients
}

// replicaByID resolves a node ID to its client, used by hinted handoff. The
// local node never receives hints from itself.
func (s *RPCServer) replicaByID(targetID string) (*remoteReplica, error) {
	replica, ok := s.replicas.Load(targetID)
	if !ok {
		return nil, fmt.Errorf("unknown cluster member %q", targetID)
	}
	return replica, nil
}

// antiEntropyPeers returns all other cluster members as sync partners.
func (s *RPCServer) antiEntropyPeers() []antientropy.Peer {
	peers := make([]antientropy.Peer, 0, s.replicas.Size())
	s.replicas.Range(func(_ string, replica *remoteReplica) bool {
		peers = append(peers, replica)
		return true
	})
	return peers
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Decode the request
		err := s.serializer.Deserialize(req, &msg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to deserialize request: %s", err),
			}
		} else {
			respMsg = *s.handleMessage(&msg)
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			}
			val, _ = s.serializer.Serialize(respMsg)
		}
		return val
	})
}

// handleMessage routes a request to the first adapter responsible for its
// message type.
func (s *RPCServer) handleMessage(msg *common.Message) *common.Message {
	countRequest(msg.MsgType)
	for _, adapter := range s.adapters {
		if adapter.Handles(msg.MsgType) {
			resp := adapter.Handle(msg)
			if resp.Err != "" {
				countError(msg.MsgType)
			}
			return resp
		}
	}
	countError(msg.MsgType)
	return common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", msg.MsgType))
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// loadSnapshot restores the store from the data directory if a snapshot
// exists. A missing data dir or snapshot file is not an error.
func (s *RPCServer) loadSnapshot() error {
	if s.config.DataDir == "" {
		return nil
	}

	path := filepath.Join(s.config.DataDir, snapshotFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %v", err)
	}
	defer f.Close()

	if err := s.store.Load(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to load snapshot: %v", err)
	}

	Logger.Infof("Restored store from snapshot %s", path)
	return nil
}

// saveSnapshot writes the store state to a temp file and renames it into
// place so a crash mid-write never corrupts the previous snapshot.
func (s *RPCServer) saveSnapshot() error {
	if s.config.DataDir == "" {
		return nil
	}

	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %v", err)
	}

	path := filepath.Join(s.config.DataDir, snapshotFileName)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %v", err)
	}

	if err := s.store.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to save snapshot: %v", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot file: %v", err)
	}

	return os.Rename(tmp, path)
}

// snapshotLoop periodically persists the store state.
func (s *RPCServer) snapshotLoop() {
	defer s.wg.Done()

	interval := time.Duration(s.config.SnapshotIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.saveSnapshot(); err != nil {
				Logger.Errorf("Snapshot failed: %v", err)
				continue
			}
			Logger.Debugf("Snapshot written in %s", time.Since(start))
		}
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Serve starts the RPC server
// This function initializes the node (store, ring, coordinator, hinted
// handoff, anti-entropy) and then blocks on the transport layer
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}

	// Start background maintenance
	s.antiEntropy.Start()

	if s.config.DataDir != "" && s.config.SnapshotIntervalSec > 0 {
		s.wg.Add(1)
		go s.snapshotLoop()
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetrics()
	}

	return s.transport.Listen(s.config)
}

// Stop shuts down background maintenance, persists a final snapshot and
// closes the store and all peer connections.
func (s *RPCServer) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)

		if s.antiEntropy != nil {
			s.antiEntropy.Stop()
		}
		if s.handoff != nil {
			s.handoff.Close()
		}
		s.wg.Wait()

		if saveErr := s.saveSnapshot(); saveErr != nil {
			err = saveErr
		}

		s.replicas.Range(func(_ string, replica *remoteReplica) bool {
			replica.Close()
			return true
		})

		if s.store != nil {
			if closeErr := s.store.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}
	})
	return err
}
