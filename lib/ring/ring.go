package ring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/qkv-io/qKV/lib/util"
)

const defaultVNodesPerNode = 128

// Node represents a physical node in the cluster.
type Node struct {
	ID   string
	Addr string
}

func (n Node) String() string {
	return fmt.Sprintf("Node{ID: %s, Addr: %s}", n.ID, n.Addr)
}

// vnode is a virtual node, one of many ring positions of a physical node.
type vnode struct {
	hash   uint64
	nodeID string
}

// Ring implements consistent hashing with virtual nodes. All methods are
// safe for concurrent use.
//
// Rings on different nodes must agree on key placement, so all hashing uses
// seed zero regardless of the process-local hash seed.
type Ring struct {
	mu            sync.RWMutex
	vnodesPerNode int
	vnodes        []vnode // sorted by hash
	nodes         map[string]Node
}

// NewRing creates an empty ring. vnodesPerNode <= 0 selects the default of
// 128 virtual nodes per physical node.
func NewRing(vnodesPerNode int) *Ring {
	if vnodesPerNode <= 0 {
		vnodesPerNode = defaultVNodesPerNode
	}
	return &Ring{
		vnodesPerNode: vnodesPerNode,
		nodes:         make(map[string]Node),
	}
}

// SetNodes rebuilds the ring with exactly the given membership. The result
// is deterministic: the same node set always produces the same ring.
func (r *Ring) SetNodes(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes = make(map[string]Node, len(nodes))
	r.vnodes = make([]vnode, 0, len(nodes)*r.vnodesPerNode)

	for _, node := range nodes {
		r.nodes[node.ID] = node
		r.appendVNodes(node.ID)
	}
	r.sortVNodes()
}

// AddNode adds a node to the ring. Adding an existing node is a no-op.
func (r *Ring) AddNode(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return
	}
	r.nodes[node.ID] = node
	r.appendVNodes(node.ID)
	r.sortVNodes()
}

// RemoveNode removes a node and all its virtual nodes from the ring.
// Removing an unknown node is a no-op.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; !exists {
		return
	}
	delete(r.nodes, nodeID)

	kept := r.vnodes[:0]
	for _, v := range r.vnodes {
		if v.nodeID != nodeID {
			kept = append(kept, v)
		}
	}
	r.vnodes = kept
}

// ResponsibleNode returns the node owning the given key, i.e. the first
// entry of its preference list. The second return value is false if the
// ring is empty.
func (r *Ring) ResponsibleNode(key string) (Node, bool) {
	nodes := r.PreferenceList(key, 1)
	if len(nodes) == 0 {
		return Node{}, false
	}
	return nodes[0], true
}

// PreferenceList returns the first n distinct physical nodes walking
// clockwise from the key's ring position. If the ring holds fewer than n
// nodes, all of them are returned.
func (r *Ring) PreferenceList(key string, n int) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 || n <= 0 {
		return nil
	}

	keyHash := util.HashString(key, 0)
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].hash >= keyHash
	})
	if idx == len(r.vnodes) {
		idx = 0 // wrap around
	}

	seen := make(map[string]struct{}, n)
	result := make([]Node, 0, n)
	for i := 0; i < len(r.vnodes) && len(result) < n; i++ {
		nodeID := r.vnodes[(idx+i)%len(r.vnodes)].nodeID
		if _, dup := seen[nodeID]; dup {
			continue
		}
		seen[nodeID] = struct{}{}
		result = append(result, r.nodes[nodeID])
	}
	return result
}

// Nodes returns all physical nodes currently in the ring, sorted by ID.
func (r *Ring) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// Size returns the number of physical nodes in the ring.
func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// appendVNodes adds the virtual nodes for nodeID. Caller must hold r.mu.
func (r *Ring) appendVNodes(nodeID string) {
	for i := 0; i < r.vnodesPerNode; i++ {
		r.vnodes = append(r.vnodes, vnode{
			hash:   util.HashString(fmt.Sprintf("%s-vnode-%d", nodeID, i), 0),
			nodeID: nodeID,
		})
	}
}

func (r *Ring) sortVNodes() {
	sort.Slice(r.vnodes, func(i, j int) bool { return r.vnodes[i].hash < r.vnodes[j].hash })
}
