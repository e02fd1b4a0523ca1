package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/qkv-io/qKV/lib/quorum"
	"github.com/qkv-io/qKV/rpc/client"
	"github.com/qkv-io/qKV/rpc/common"
	"github.com/qkv-io/qKV/rpc/serializer"
	"github.com/qkv-io/qKV/rpc/transport"
	"github.com/qkv-io/qKV/rpc/transport/inmem"
)

// testCluster is a three node cluster wired over the in-process transport.
type testCluster struct {
	network   *inmem.Network
	servers   []*RPCServer
	members   map[string]string
	serialize serializer.IRPCSerializer
}

func newTestCluster(t *testing.T, sloppy bool) *testCluster {
	t.Helper()

	network := inmem.NewNetwork()
	members := map[string]string{
		"node-1": "ep-1",
		"node-2": "ep-2",
		"node-3": "ep-3",
	}

	c := &testCluster{
		network:   network,
		members:   members,
		serialize: serializer.NewJSONSerializer(),
	}

	for id := range members {
		config := common.ServerConfig{
			NodeID:                 id,
			ClusterMembers:         members,
			ReplicationFactor:      3,
			WriteQuorum:            2,
			ReadQuorum:             2,
			SloppyQuorum:           sloppy,
			VNodes:                 32,
			AntiEntropyIntervalSec: 3600, // effectively off for these tests
			AntiEntropyBuckets:     64,
			HandoffRetentionSec:    60,
			TombstoneRetentionSec:  3600,
			TimeoutSecond:          2,
			LogLevel:               "error",
		}

		s := NewRPCServer(
			config,
			inmem.NewServerTransport(network),
			c.serialize,
			func() transport.IRPCClientTransport { return inmem.NewClientTransport(network) },
		)
		c.servers = append(c.servers, s)

		go func() {
			if err := s.Serve(); err != nil {
				t.Errorf("server failed: %v", err)
			}
		}()
	}

	t.Cleanup(func() {
		for _, s := range c.servers {
			s.Stop()
		}
		network.Shutdown()
	})

	// Wait until every node answers
	for id := range members {
		kv := c.kvClient(t, id)
		waitFor(t, fmt.Sprintf("node %s up", id), func() bool {
			_, err := kv.Info()
			return err == nil
		})
		kv.Close()
	}

	return c
}

// kvClient creates a client talking to a single node.
func (c *testCluster) kvClient(t *testing.T, nodeID string) client.IKVClient {
	t.Helper()
	kv, err := client.NewKVClient(
		c.clientConfig(nodeID),
		inmem.NewClientTransport(c.network),
		c.serialize,
	)
	if err != nil {
		t.Fatalf("failed to create kv client for %s: %v", nodeID, err)
	}
	return kv
}

// replicaClient creates a raw replica client for inspecting one node's
// local store.
func (c *testCluster) replicaClient(t *testing.T, nodeID string) client.IReplicaClient {
	t.Helper()
	r, err := client.NewReplicaClient(
		nodeID,
		c.clientConfig(nodeID),
		inmem.NewClientTransport(c.network),
		c.serialize,
	)
	if err != nil {
		t.Fatalf("failed to create replica client for %s: %v", nodeID, err)
	}
	return r
}

func (c *testCluster) clientConfig(nodeID string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 2,
		Transport: common.ClientTransportConfig{
			Endpoints: []string{c.members[nodeID]},
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestClusterPutGetDelete(t *testing.T) {
	c := newTestCluster(t, false)

	kv := c.kvClient(t, "node-1")
	defer kv.Close()

	// Blind write
	vector, err := kv.Put("greeting", []byte("hello"), nil)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if len(vector) == 0 {
		t.Fatal("put returned an empty version vector")
	}

	// Read from a different node
	kv2 := c.kvClient(t, "node-2")
	defer kv2.Close()

	versions, readCtx, found, err := kv2.Get("greeting")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if len(versions) != 1 || !bytes.Equal(versions[0].Value, []byte("hello")) {
		t.Fatalf("unexpected versions: %v", versions)
	}

	// Update with the read context
	if _, err := kv2.Put("greeting", []byte("hi"), readCtx); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	versions, readCtx, found, err = kv.Get("greeting")
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if !found || len(versions) != 1 || !bytes.Equal(versions[0].Value, []byte("hi")) {
		t.Fatalf("update did not supersede: found=%v versions=%v", found, versions)
	}

	// Delete with the read context
	if _, err := kv.Delete("greeting", readCtx); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, _, found, err = kv2.Get("greeting")
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if found {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestClusterConcurrentWritesSurfaceAsSiblings(t *testing.T) {
	c := newTestCluster(t, false)

	kv1 := c.kvClient(t, "node-1")
	defer kv1.Close()
	kv2 := c.kvClient(t, "node-2")
	defer kv2.Close()
	kv3 := c.kvClient(t, "node-3")
	defer kv3.Close()

	// Two blind writes coordinated by different nodes are concurrent
	if _, err := kv1.Put("conflict", []byte("left"), nil); err != nil {
		t.Fatalf("put via node-1 failed: %v", err)
	}
	if _, err := kv2.Put("conflict", []byte("right"), nil); err != nil {
		t.Fatalf("put via node-2 failed: %v", err)
	}

	versions, readCtx, found, err := kv3.Get("conflict")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if len(versions) != 2 {
		t.Fatalf("expected two siblings, got %d: %v", len(versions), versions)
	}

	// Resolving with the merged context collapses the siblings
	if _, err := kv3.Put("conflict", []byte("resolved"), readCtx); err != nil {
		t.Fatalf("resolving put failed: %v", err)
	}

	versions, _, found, err = kv1.Get("conflict")
	if err != nil {
		t.Fatalf("get after resolve failed: %v", err)
	}
	if !found || len(versions) != 1 || !bytes.Equal(versions[0].Value, []byte("resolved")) {
		t.Fatalf("resolution did not converge: found=%v versions=%v", found, versions)
	}
}

func TestClusterWriteSucceedsWithOneNodeDown(t *testing.T) {
	c := newTestCluster(t, false)

	c.network.Partition("ep-3")

	kv := c.kvClient(t, "node-1")
	defer kv.Close()

	vector, err := kv.Put("degraded", []byte("still works"), nil)
	if err != nil {
		t.Fatalf("put with one node down failed: %v", err)
	}
	if len(vector) == 0 {
		t.Fatal("put returned an empty version vector")
	}

	versions, _, found, err := kv.Get("degraded")
	if err != nil {
		t.Fatalf("get with one node down failed: %v", err)
	}
	if !found || len(versions) != 1 || !bytes.Equal(versions[0].Value, []byte("still works")) {
		t.Fatalf("unexpected read result: found=%v versions=%v", found, versions)
	}
}

func TestClusterQuorumFailure(t *testing.T) {
	c := newTestCluster(t, false)

	c.network.Partition("ep-2")
	c.network.Partition("ep-3")

	kv := c.kvClient(t, "node-1")
	defer kv.Close()

	if _, err := kv.Put("unreachable", []byte("v"), nil); err == nil {
		t.Fatal("expected write quorum failure with two nodes down")
	}
	if _, _, _, err := kv.Get("unreachable"); err == nil {
		t.Fatal("expected read quorum failure with two nodes down")
	}
}

func TestClusterUnreachableNodeErrorIsTyped(t *testing.T) {
	c := newTestCluster(t, false)

	c.network.Partition("ep-3")

	replica := c.replicaClient(t, "node-3")
	defer replica.Close()

	err := replica.Ping(context.Background())
	if err == nil {
		t.Fatal("expected ping to a partitioned node to fail")
	}
	if !errors.Is(err, quorum.ErrNodeUnreachable) {
		t.Errorf("transport failure not marked as node unreachable: %v", err)
	}
}

func TestClusterSloppyQuorumHandoff(t *testing.T) {
	c := newTestCluster(t, true)

	c.network.Partition("ep-3")

	kv := c.kvClient(t, "node-1")
	defer kv.Close()

	if _, err := kv.Put("parked", []byte("catch up later"), nil); err != nil {
		t.Fatalf("sloppy put failed: %v", err)
	}

	// The missed write is parked as a hint; once the node is back the
	// handoff manager replays it
	c.network.Heal("ep-3")

	replica := c.replicaClient(t, "node-3")
	defer replica.Close()

	waitFor(t, "hint delivery to node-3", func() bool {
		siblings, found, err := replica.Get(context.Background(), "parked")
		if err != nil || !found {
			return false
		}
		for _, s := range siblings {
			if bytes.Equal(s.Value, []byte("catch up later")) {
				return true
			}
		}
		return false
	})
}
