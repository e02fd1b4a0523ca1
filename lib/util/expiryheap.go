// This file provides a keyed min-heap for deadline scheduling.
//
// The implementation combines a binary heap with a hash map: O(log n) for
// deadline operations (push, pop, update), O(1) for key lookups and O(log n)
// for key-based removal. The store's garbage collector uses it to find the
// tombstones whose retention window has lapsed without scanning the whole
// key space, while still being able to drop a scheduled entry directly when
// the key is overwritten by a live value.
//
// Note: this type is not thread-safe; callers must synchronize externally.
package util

import (
	"container/heap"
	"strconv"
)

// deadlineItem is a single scheduled key with its due time (unix nanoseconds)
type deadlineItem struct {
	Key   string // the store key this deadline belongs to
	DueAt int64  // priority in the heap, smallest first
	index int    // index in the heap, maintained by the heap package
}

func (i *deadlineItem) String() string {
	return "{Key: " + i.Key + ", DueAt: " + strconv.FormatInt(i.DueAt, 10) + "}"
}

// ExpiryHeap implements a deadline-ordered priority queue with both heap
// operations and key-based access.
type ExpiryHeap struct {
	items    []*deadlineItem          // The actual heap slice
	itemsMap map[string]*deadlineItem // Map for O(1) access by key
}

// NewExpiryHeap creates a new deadline queue
func NewExpiryHeap() *ExpiryHeap {
	return &ExpiryHeap{
		items:    make([]*deadlineItem, 0),
		itemsMap: make(map[string]*deadlineItem),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *ExpiryHeap) Len() int { return len(h.items) }

// Less compares items by due time, earliest first (part of heap.Interface)
func (h *ExpiryHeap) Less(i, j int) bool {
	return h.items[i].DueAt < h.items[j].DueAt
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *ExpiryHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (h *ExpiryHeap) Push(x interface{}) {
	n := len(h.items)
	it := x.(*deadlineItem)
	it.index = n
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

// Pop removes and returns the earliest item (part of heap.Interface)
func (h *ExpiryHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	it.index = -1   // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// Schedule adds a deadline for a key or updates the existing one
func (h *ExpiryHeap) Schedule(key string, dueAt int64) {
	// Check if the key is already scheduled
	if it, exists := h.itemsMap[key]; exists {
		// Update the due time and fix the heap
		it.DueAt = dueAt
		heap.Fix(h, it.index)
		return
	}

	heap.Push(h, &deadlineItem{
		Key:   key,
		DueAt: dueAt,
	})
}

// Remove drops the deadline for a key.
// Returns the due time and whether the key was scheduled.
func (h *ExpiryHeap) Remove(key string) (int64, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(h, it.index)
	return it.DueAt, true
}

// PopDue removes and returns the earliest key if its deadline is at or
// before now. The boolean return reports whether a key was popped.
func (h *ExpiryHeap) PopDue(now int64) (string, bool) {
	if len(h.items) == 0 || h.items[0].DueAt > now {
		return "", false
	}
	it := heap.Pop(h).(*deadlineItem)
	return it.Key, true
}

// Contains checks if a key is scheduled
func (h *ExpiryHeap) Contains(key string) bool {
	_, exists := h.itemsMap[key]
	return exists
}
