package serializer

import (
	"reflect"
	"testing"

	"github.com/qkv-io/qKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request with causal context
		{
			MsgType: common.MsgTKVPut,
			Key:     "test-key",
			Value:   []byte("test-value"),
			Vector:  map[string]uint64{"node-1": 3, "node-2": 1},
		},

		// Get response with two concurrent siblings
		{
			MsgType: common.MsgTKVGet,
			Key:     "test-key",
			Siblings: []common.Sibling{
				{Value: []byte("a"), Vector: map[string]uint64{"node-1": 2}},
				{Value: []byte("b"), Vector: map[string]uint64{"node-2": 1}},
			},
			Vector: map[string]uint64{"node-1": 2, "node-2": 1},
			Ok:     true,
		},

		// Replica put response
		{
			MsgType: common.MsgTRepPut,
			Result:  2,
			Ok:      true,
		},

		// Anti-entropy digest response
		{
			MsgType: common.MsgTAEDigest,
			Digest:  []uint64{0, 0xDEADBEEF, 42},
			Buckets: 3,
		},

		// Anti-entropy pull request
		{
			MsgType:   common.MsgTAEPull,
			BucketIDs: []uint64{1, 7, 42},
			Buckets:   1024,
		},

		// Anti-entropy push with records, including a tombstone
		{
			MsgType: common.MsgTAEPush,
			Records: []common.Record{
				{
					Key: "alpha",
					Siblings: []common.Sibling{
						{Value: []byte("v1"), Vector: map[string]uint64{"node-1": 1}},
					},
				},
				{
					Key: "beta",
					Siblings: []common.Sibling{
						{Vector: map[string]uint64{"node-2": 4}, Tombstone: true},
					},
				},
			},
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},

		// Info response with meta payload
		{
			MsgType: common.MsgTKVInfo,
			Ok:      true,
			Meta:    []byte(`{"keys":10}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty strings and zero values",
			msg: common.Message{
				MsgType: common.MsgTKVPut,
				Key:     "",
				Value:   []byte{},
				Ok:      false,
				Err:     "",
				Meta:    []byte{},
			},
		},
		{
			name: "Message with empty key but Ok=true",
			msg: common.Message{
				MsgType: common.MsgTKVGet,
				Key:     "",
				Ok:      true,
				Value:   nil,
			},
		},
		{
			name: "Message with empty vector but not nil",
			msg: common.Message{
				MsgType: common.MsgTKVPut,
				Key:     "test",
				Vector:  map[string]uint64{},
			},
		},
		{
			name: "Message with sibling carrying an empty value",
			msg: common.Message{
				MsgType: common.MsgTRepMerge,
				Key:     "test",
				Siblings: []common.Sibling{
					{Value: []byte{}, Vector: map[string]uint64{"node-1": 1}},
				},
			},
		},
		{
			name: "Message with empty digest slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTAEDigest,
				Digest:  []uint64{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// Verify scalar fields
			if tc.msg.Key != result.Key {
				t.Errorf("Key mismatch: expected '%s', got '%s'", tc.msg.Key, result.Key)
			}
			if tc.msg.Ok != result.Ok {
				t.Errorf("Ok mismatch: expected %v, got %v", tc.msg.Ok, result.Ok)
			}
			if tc.msg.Result != result.Result {
				t.Errorf("Result mismatch: expected %d, got %d", tc.msg.Result, result.Result)
			}
			if tc.msg.Err != result.Err {
				t.Errorf("Err mismatch: expected '%s', got '%s'", tc.msg.Err, result.Err)
			}
			if tc.msg.MsgType != result.MsgType {
				t.Errorf("MsgType mismatch: expected %v, got %v", tc.msg.MsgType, result.MsgType)
			}
			if tc.msg.Buckets != result.Buckets {
				t.Errorf("Buckets mismatch: expected %d, got %d", tc.msg.Buckets, result.Buckets)
			}

			// Byte slices may round trip as either nil or empty
			if len(tc.msg.Value) != len(result.Value) {
				t.Errorf("Value length mismatch: expected %d, got %d", len(tc.msg.Value), len(result.Value))
			}
			if len(tc.msg.Meta) != len(result.Meta) {
				t.Errorf("Meta length mismatch: expected %d, got %d", len(tc.msg.Meta), len(result.Meta))
			}

			// Sibling sets compare structurally
			if len(tc.msg.Siblings) != len(result.Siblings) {
				t.Fatalf("Siblings length mismatch: expected %d, got %d", len(tc.msg.Siblings), len(result.Siblings))
			}
			for i := range tc.msg.Siblings {
				if tc.msg.Siblings[i].Tombstone != result.Siblings[i].Tombstone {
					t.Errorf("Sibling %d tombstone mismatch", i)
				}
				if len(tc.msg.Siblings[i].Value) != len(result.Siblings[i].Value) {
					t.Errorf("Sibling %d value length mismatch", i)
				}
				if !reflect.DeepEqual(tc.msg.Siblings[i].Vector, result.Siblings[i].Vector) {
					t.Errorf("Sibling %d vector mismatch: expected %v, got %v",
						i, tc.msg.Siblings[i].Vector, result.Siblings[i].Vector)
				}
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Only message type and half the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Truncated vector",
			data:        []byte{1, 0, 4, 0, 0, 0, 2}, // Claims two vector entries but no data
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
