package common

import (
	"encoding/json"
	"fmt"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

// --------------------------------------------------------------------------
// Wire Types
// --------------------------------------------------------------------------

// Sibling is the wire form of one versioned value.
type Sibling struct {
	Value     []byte            `json:"value,omitempty"`
	Vector    map[string]uint64 `json:"vector,omitempty"`
	Tombstone bool              `json:"tombstone,omitempty"`
}

// Record is the wire form of one key's full sibling set, used by
// anti-entropy transfers.
type Record struct {
	Key      string    `json:"key"`
	Siblings []Sibling `json:"siblings,omitempty"`
}

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key    string            `json:"key,omitempty"`    // Used for: Put, Get, Delete, replica ops
	Value  []byte            `json:"value,omitempty"`  // Used for: Put (request)
	Vector map[string]uint64 `json:"vector,omitempty"` // Causal context (requests) or result version (responses)

	// Replication fields
	Siblings  []Sibling `json:"siblings,omitempty"`  // Used for: Get responses, replica Put/Merge
	Records   []Record  `json:"records,omitempty"`   // Used for: anti-entropy Pull responses, Push requests
	Digest    []uint64  `json:"digest,omitempty"`    // Used for: Digest responses
	BucketIDs []uint64  `json:"bucketIds,omitempty"` // Used for: Pull requests
	Buckets   uint32    `json:"buckets,omitempty"`   // Digest resolution, must match on both sides

	// Response only fields
	Ok     bool   `json:"ok,omitempty"`     // Used for: Get, replica Get responses (key known)
	Result uint8  `json:"result,omitempty"` // Used for: replica Put responses (store.ApplyResult)
	Err    string `json:"err,omitempty"`    // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info responses, available to additional adapters
}

// --------------------------------------------------------------------------
// Conversion Helpers
// --------------------------------------------------------------------------

// SiblingFromValue converts a stored versioned value to its wire form.
func SiblingFromValue(v store.VersionedValue) Sibling {
	return Sibling{Value: v.Value, Vector: v.Clock, Tombstone: v.Tombstone}
}

// ToValue converts a wire sibling back to a versioned value.
func (s Sibling) ToValue() store.VersionedValue {
	return store.VersionedValue{Value: s.Value, Clock: vclock.Clock(s.Vector), Tombstone: s.Tombstone}
}

// SiblingsFromValues converts a sibling set to wire form.
func SiblingsFromValues(values []store.VersionedValue) []Sibling {
	if values == nil {
		return nil
	}
	siblings := make([]Sibling, len(values))
	for i, v := range values {
		siblings[i] = SiblingFromValue(v)
	}
	return siblings
}

// ValuesFromSiblings converts a wire sibling set back to versioned values.
func ValuesFromSiblings(siblings []Sibling) []store.VersionedValue {
	if siblings == nil {
		return nil
	}
	values := make([]store.VersionedValue, len(siblings))
	for i, s := range siblings {
		values[i] = s.ToValue()
	}
	return values
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewPutRequest creates a new client-facing Put request. vector carries the
// client's causal context from a preceding Get and may be nil.
func NewPutRequest(key string, value []byte, vector map[string]uint64) *Message {
	return &Message{
		MsgType: MsgTKVPut,
		Key:     key,
		Value:   value,
		Vector:  vector,
	}
}

// NewPutResponse creates a new Put response carrying the version vector of
// the accepted write.
func NewPutResponse(vector map[string]uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVPut,
		Vector:  vector,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewGetRequest creates a new client-facing Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response. siblings holds the winning
// versions, vector the merged causal context the client passes back on its
// next write, ok whether the key exists.
func NewGetResponse(siblings []Sibling, vector map[string]uint64, ok bool, err error) *Message {
	msg := &Message{
		MsgType:  MsgTKVGet,
		Siblings: siblings,
		Vector:   vector,
		Ok:       ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDeleteRequest creates a new client-facing Delete request
func NewDeleteRequest(key string, vector map[string]uint64) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
		Vector:  vector,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(vector map[string]uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVDelete,
		Vector:  vector,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewInfoRequest creates a new store info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTKVInfo}
}

// NewInfoResponse creates a new store info response, meta holds the
// JSON-encoded store info
func NewInfoResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTKVInfo,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewReplicaPutRequest creates a replica-to-replica Put request carrying a
// fully versioned value.
func NewReplicaPutRequest(key string, sibling Sibling) *Message {
	return &Message{
		MsgType:  MsgTRepPut,
		Key:      key,
		Siblings: []Sibling{sibling},
	}
}

// NewReplicaPutResponse creates a replica Put response. result is the
// store.ApplyResult of the local merge.
func NewReplicaPutResponse(result store.ApplyResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTRepPut,
		Result:  uint8(result),
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewReplicaGetRequest creates a replica-to-replica Get request
func NewReplicaGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTRepGet,
		Key:     key,
	}
}

// NewReplicaGetResponse creates a replica Get response returning the raw
// local sibling set.
func NewReplicaGetResponse(siblings []Sibling, ok bool, err error) *Message {
	msg := &Message{
		MsgType:  MsgTRepGet,
		Siblings: siblings,
		Ok:       ok,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewReplicaMergeRequest creates a replica Merge request, used by read
// repair and hinted handoff.
func NewReplicaMergeRequest(key string, siblings []Sibling) *Message {
	return &Message{
		MsgType:  MsgTRepMerge,
		Key:      key,
		Siblings: siblings,
	}
}

// NewReplicaMergeResponse creates a replica Merge response
func NewReplicaMergeResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTRepMerge,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewDigestRequest creates an anti-entropy digest request
func NewDigestRequest(buckets uint32) *Message {
	return &Message{
		MsgType: MsgTAEDigest,
		Buckets: buckets,
	}
}

// NewDigestResponse creates an anti-entropy digest response
func NewDigestResponse(digest []uint64, err error) *Message {
	msg := &Message{
		MsgType: MsgTAEDigest,
		Digest:  digest,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPullRequest creates an anti-entropy pull request for the records in
// the given buckets.
func NewPullRequest(buckets uint32, bucketIDs []uint64) *Message {
	return &Message{
		MsgType:   MsgTAEPull,
		Buckets:   buckets,
		BucketIDs: bucketIDs,
	}
}

// NewPullResponse creates an anti-entropy pull response
func NewPullResponse(records []Record, err error) *Message {
	msg := &Message{
		MsgType: MsgTAEPull,
		Records: records,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPushRequest creates an anti-entropy push request
func NewPushRequest(records []Record) *Message {
	return &Message{
		MsgType: MsgTAEPush,
		Records: records,
	}
}

// NewPushResponse creates an anti-entropy push response
func NewPushResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTAEPush,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewPingRequest creates a liveness probe request
func NewPingRequest() *Message {
	return &Message{MsgType: MsgTPing}
}

// NewPingResponse creates a liveness probe response
func NewPingResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTPing,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTKVPut:
		return "put"
	case MsgTKVGet:
		return "get"
	case MsgTKVDelete:
		return "delete"
	case MsgTKVInfo:
		return "info"
	case MsgTRepPut:
		return "replicaPut"
	case MsgTRepGet:
		return "replicaGet"
	case MsgTRepMerge:
		return "replicaMerge"
	case MsgTAEDigest:
		return "digest"
	case MsgTAEPull:
		return "pull"
	case MsgTAEPush:
		return "push"
	case MsgTPing:
		return "ping"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "put":
		*t = MsgTKVPut
	case "get":
		*t = MsgTKVGet
	case "delete":
		*t = MsgTKVDelete
	case "info":
		*t = MsgTKVInfo
	case "replicaPut":
		*t = MsgTRepPut
	case "replicaGet":
		*t = MsgTRepGet
	case "replicaMerge":
		*t = MsgTRepMerge
	case "digest":
		*t = MsgTAEDigest
	case "pull":
		*t = MsgTAEPull
	case "push":
		*t = MsgTAEPush
	case "ping":
		*t = MsgTPing
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Client-facing quorum operations

	MsgTKVPut    // Coordinated quorum write
	MsgTKVGet    // Coordinated quorum read
	MsgTKVDelete // Coordinated quorum delete (tombstone write)
	MsgTKVInfo   // Local store info

	// Replica-to-replica operations

	MsgTRepPut   // Apply a versioned value on one replica
	MsgTRepGet   // Read one replica's raw sibling set
	MsgTRepMerge // Fold a sibling set into one replica

	// Anti-entropy operations

	MsgTAEDigest // Fetch the bucket digest
	MsgTAEPull   // Fetch records for differing buckets
	MsgTAEPush   // Merge records into the remote store

	// Liveness

	MsgTPing // Probe used by hinted handoff

	// Custom operations

	MsgTCustom // Custom operation type
)
