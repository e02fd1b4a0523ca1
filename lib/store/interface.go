package store

import (
	"fmt"
	"io"

	"github.com/qkv-io/qKV/lib/vclock"
)

// --------------------------------------------------------------------------
// Versioned Values
// --------------------------------------------------------------------------

// VersionedValue is a single version of a key: the value bytes, the version
// vector it was written under, and whether it is a deletion tombstone.
// A key holds a set of these (siblings) while concurrent writes are
// unresolved.
type VersionedValue struct {
	Value     []byte
	Clock     vclock.Clock
	Tombstone bool
}

// Copy returns a deep copy so stored state never aliases caller memory.
func (v VersionedValue) Copy() VersionedValue {
	var value []byte
	if v.Value != nil {
		value = append([]byte(nil), v.Value...)
	}
	return VersionedValue{
		Value:     value,
		Clock:     v.Clock.Copy(),
		Tombstone: v.Tombstone,
	}
}

// MergedClock folds the vectors of a sibling set into one clock. Callers use
// it as the read context for a follow-up write so that the write dominates
// everything the reader observed.
func MergedClock(siblings []VersionedValue) vclock.Clock {
	merged := vclock.New()
	for _, s := range siblings {
		merged.Merge(s.Clock)
	}
	return merged
}

// --------------------------------------------------------------------------
// Apply Results
// --------------------------------------------------------------------------

// ApplyResult describes what a dominance-gated write did to the local
// sibling set. StaleIgnored is an expected outcome, not a failure: the
// incoming version was already covered by stored state.
type ApplyResult int

const (
	// Applied: the incoming version dominated all stored siblings and
	// replaced them.
	Applied ApplyResult = iota
	// AppliedSibling: the incoming version was concurrent with at least one
	// stored sibling and was retained alongside them.
	AppliedSibling
	// StaleIgnored: the incoming version was dominated by (or equal to) a
	// stored sibling and was dropped.
	StaleIgnored
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case AppliedSibling:
		return "sibling"
	case StaleIgnored:
		return "stale"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// StoreFactory is a function type that creates a new replica store.
// This is used to abstract store creation from the server assembly.
type StoreFactory func() IReplicaStore

// IReplicaStore is the interface for a single replica's versioned key-value
// storage. All write operations are gated on version-vector dominance so
// that applying the same version twice, or applying versions in any order,
// converges to the same sibling set.
type IReplicaStore interface {
	// Put applies one versioned value to the key's sibling set:
	//   - dominates all stored siblings -> replaces them (Applied)
	//   - dominated by or equal to a stored sibling -> dropped (StaleIgnored)
	//   - concurrent with a stored sibling -> retained as a new sibling
	// Tombstones move through the same rules as ordinary values.
	Put(key string, value VersionedValue) (ApplyResult, error)

	// PutMerged applies a whole sibling set (from read repair or
	// anti-entropy) through the same dominance rules. Idempotent: applying
	// an already-stored set changes nothing.
	PutMerged(key string, siblings []VersionedValue) error

	// Get returns deep copies of the current sibling set and the merged
	// clock across them. loaded is false when the key is unknown (a key
	// holding only tombstones is still loaded so replicas can converge
	// on the deletion).
	Get(key string) (siblings []VersionedValue, merged vclock.Clock, loaded bool, err error)

	// ForEach calls fn for every key with a copy of its sibling set until fn
	// returns false. Used by anti-entropy to build digests and bucket dumps.
	ForEach(fn func(key string, siblings []VersionedValue) bool) error

	// Save persists the current state to the provided io.Writer.
	Save(w io.Writer) error

	// Load restores state from an io.Reader, replacing current contents.
	Load(r io.Reader) error

	// GetStoreInfo returns metadata about the store.
	GetStoreInfo() (StoreInfo, error)

	// Close stops background work (tombstone GC) and releases resources.
	Close() error
}

// StoreInfo carries store metadata for diagnostics.
type StoreInfo struct {
	Keys      int    `json:"keys"`
	Siblings  int    `json:"siblings"`
	SizeBytes int    `json:"size_bytes"`
	Engine    string `json:"engine"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	case RetCCorruptSnapshot:
		errorCode = "CorruptSnapshot"
	case RetCClosed:
		errorCode = "Closed"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("ReplicaStoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation (bad arguments).
	RetCCorruptSnapshot                 // 3: Snapshot data could not be decoded.
	RetCClosed                          // 4: Operation on a closed store.
)
