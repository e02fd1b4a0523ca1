package serializer

import (
	"fmt"
	"testing"

	"github.com/qkv-io/qKV/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"SmallKeyOnly": {
			MsgType: common.MsgTKVGet,
			Key:     "k",
		},
		"MediumKeyOnly": {
			MsgType: common.MsgTKVGet,
			Key:     "medium-length-key-for-testing",
		},
		"SmallValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   []byte("v"),
			Vector:  map[string]uint64{"node-1": 1},
		},
		"MediumValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   []byte("medium length value for testing serialization"),
			Vector:  map[string]uint64{"node-1": 12, "node-2": 4, "node-3": 7},
		},
		"LargeValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   make([]byte, 1024), // 1KB of data
			Vector:  map[string]uint64{"node-1": 12, "node-2": 4, "node-3": 7},
		},
		"VeryLargeValue": {
			MsgType: common.MsgTKVPut,
			Key:     "key",
			Value:   make([]byte, 1024*16), // 16KB of data
			Vector:  map[string]uint64{"node-1": 12, "node-2": 4, "node-3": 7},
		},
		"SiblingSet": {
			MsgType: common.MsgTKVGet,
			Key:     "conflicted-key",
			Siblings: []common.Sibling{
				{Value: []byte("version-a"), Vector: map[string]uint64{"node-1": 3, "node-2": 1}},
				{Value: []byte("version-b"), Vector: map[string]uint64{"node-2": 2, "node-3": 1}},
				{Value: []byte("version-c"), Vector: map[string]uint64{"node-3": 4}},
			},
			Ok: true,
		},
		"Digest": {
			MsgType: common.MsgTAEDigest,
			Digest:  makeDigest(1024),
			Buckets: 1024,
		},
		"RecordBatch": {
			MsgType: common.MsgTAEPush,
			Records: makeRecords(64),
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// makeDigest creates a digest slice with deterministic non-zero contents
func makeDigest(buckets int) []uint64 {
	digest := make([]uint64, buckets)
	for i := range digest {
		digest[i] = uint64(i) * 0x9E3779B97F4A7C15
	}
	return digest
}

// makeRecords creates a batch of records as transferred during anti-entropy
func makeRecords(n int) []common.Record {
	records := make([]common.Record, n)
	for i := range records {
		records[i] = common.Record{
			Key: fmt.Sprintf("key-%04d", i),
			Siblings: []common.Sibling{
				{Value: []byte("payload for anti entropy transfer"), Vector: map[string]uint64{"node-1": uint64(i)}},
			},
		}
	}
	return records
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
