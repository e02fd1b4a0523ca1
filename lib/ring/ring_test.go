package ring

import (
	"fmt"
	"testing"
)

func testNodes(n int) []Node {
	nodes := make([]Node, n)
	for i := range nodes {
		nodes[i] = Node{ID: fmt.Sprintf("n%d", i+1), Addr: fmt.Sprintf("host%d:8080", i+1)}
	}
	return nodes
}

func TestEmptyRing(t *testing.T) {
	r := NewRing(0)

	if _, ok := r.ResponsibleNode("key"); ok {
		t.Error("empty ring returned a responsible node")
	}
	if got := r.PreferenceList("key", 3); len(got) != 0 {
		t.Errorf("empty ring returned a preference list: %v", got)
	}
}

func TestPreferenceListDistinctNodes(t *testing.T) {
	r := NewRing(64)
	r.SetNodes(testNodes(5))

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		list := r.PreferenceList(key, 3)
		if len(list) != 3 {
			t.Fatalf("key %q: got %d nodes, want 3", key, len(list))
		}
		seen := make(map[string]bool)
		for _, node := range list {
			if seen[node.ID] {
				t.Fatalf("key %q: duplicate node %s in preference list", key, node.ID)
			}
			seen[node.ID] = true
		}
	}
}

func TestPreferenceListClampedToMembership(t *testing.T) {
	r := NewRing(64)
	r.SetNodes(testNodes(2))

	if got := r.PreferenceList("key", 5); len(got) != 2 {
		t.Errorf("got %d nodes, want all 2", len(got))
	}
}

func TestDeterministicPlacement(t *testing.T) {
	a := NewRing(64)
	b := NewRing(64)

	// membership order must not matter
	nodes := testNodes(4)
	a.SetNodes(nodes)
	b.SetNodes([]Node{nodes[2], nodes[0], nodes[3], nodes[1]})

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		la := a.PreferenceList(key, 3)
		lb := b.PreferenceList(key, 3)
		for j := range la {
			if la[j].ID != lb[j].ID {
				t.Fatalf("key %q: rings disagree (%v vs %v)", key, la, lb)
			}
		}
	}
}

func TestResponsibleNodeIsListHead(t *testing.T) {
	r := NewRing(64)
	r.SetNodes(testNodes(5))

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, ok := r.ResponsibleNode(key)
		if !ok {
			t.Fatalf("no responsible node for %q", key)
		}
		if list := r.PreferenceList(key, 3); list[0].ID != node.ID {
			t.Fatalf("key %q: ResponsibleNode %s != list head %s", key, node.ID, list[0].ID)
		}
	}
}

func TestAddRemoveNode(t *testing.T) {
	r := NewRing(64)
	r.SetNodes(testNodes(3))

	r.AddNode(Node{ID: "n4", Addr: "host4:8080"})
	if r.Size() != 4 {
		t.Fatalf("size after add = %d, want 4", r.Size())
	}
	// idempotent
	r.AddNode(Node{ID: "n4", Addr: "other:9999"})
	if r.Size() != 4 {
		t.Fatalf("duplicate add changed size to %d", r.Size())
	}

	r.RemoveNode("n4")
	r.RemoveNode("n4")
	if r.Size() != 3 {
		t.Fatalf("size after remove = %d, want 3", r.Size())
	}
	for i := 0; i < 100; i++ {
		for _, node := range r.PreferenceList(fmt.Sprintf("key-%d", i), 3) {
			if node.ID == "n4" {
				t.Fatal("removed node still appears in preference lists")
			}
		}
	}
}

// Removing a node must only remap keys that listed it, never shuffle
// placements between surviving nodes.
func TestMinimalMovementOnRemove(t *testing.T) {
	r := NewRing(128)
	r.SetNodes(testNodes(5))

	before := make(map[string]string)
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%d", i)
		node, _ := r.ResponsibleNode(key)
		before[key] = node.ID
	}

	r.RemoveNode("n3")

	moved := 0
	for key, prev := range before {
		node, _ := r.ResponsibleNode(key)
		if node.ID != prev {
			moved++
			if prev != "n3" {
				t.Fatalf("key %q moved from surviving node %s to %s", key, prev, node.ID)
			}
		}
	}
	if moved == 0 {
		t.Error("expected some keys to move off the removed node")
	}
}

func TestDistribution(t *testing.T) {
	r := NewRing(128)
	r.SetNodes(testNodes(4))

	counts := make(map[string]int)
	const keys = 4000
	for i := 0; i < keys; i++ {
		node, _ := r.ResponsibleNode(fmt.Sprintf("key-%d", i))
		counts[node.ID]++
	}

	// with 128 vnodes each node should stay well within 2x of its fair share
	fair := keys / 4
	for id, count := range counts {
		if count < fair/2 || count > fair*2 {
			t.Errorf("node %s owns %d of %d keys, fair share is %d", id, count, keys, fair)
		}
	}
}
