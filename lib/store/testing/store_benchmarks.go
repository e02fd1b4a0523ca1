package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/vclock"
)

// RunReplicaStoreBenchmarks runs a benchmark suite for an IReplicaStore
// implementation. The factory must return a fresh, empty store per call.
func RunReplicaStoreBenchmarks(b *testing.B, name string, factory store.StoreFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Put", func(b *testing.B) {
			benchmarkPut(b, factory())
		})

		b.Run("PutDominating", func(b *testing.B) {
			benchmarkPutDominating(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("GetWithSiblings", func(b *testing.B) {
			benchmarkGetWithSiblings(b, factory())
		})

		b.Run("SaveLoad", func(b *testing.B) {
			benchmarkSaveLoad(b, factory)
		})
	})
}

func benchmarkPut(b *testing.B, s store.IReplicaStore) {
	defer s.Close()
	value := []byte("benchmark value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", i)
		v := store.VersionedValue{Value: value, Clock: vclock.Clock{"n1": 1}}
		if _, err := s.Put(key, v); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func benchmarkPutDominating(b *testing.B, s store.IReplicaStore) {
	defer s.Close()
	value := []byte("benchmark value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := store.VersionedValue{Value: value, Clock: vclock.Clock{"n1": uint64(i + 1)}}
		if _, err := s.Put("hot", v); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func benchmarkGet(b *testing.B, s store.IReplicaStore) {
	defer s.Close()

	const keys = 1000
	for i := 0; i < keys; i++ {
		v := store.VersionedValue{Value: []byte("value"), Clock: vclock.Clock{"n1": 1}}
		if _, err := s.Put(fmt.Sprintf("key-%d", i), v); err != nil {
			b.Fatalf("setup Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := s.Get(fmt.Sprintf("key-%d", i%keys)); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func benchmarkGetWithSiblings(b *testing.B, s store.IReplicaStore) {
	defer s.Close()

	// four concurrent siblings per key
	for n := 0; n < 4; n++ {
		v := store.VersionedValue{
			Value: []byte(fmt.Sprintf("value-%d", n)),
			Clock: vclock.Clock{fmt.Sprintf("n%d", n): 1},
		}
		if _, err := s.Put("forked", v); err != nil {
			b.Fatalf("setup Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := s.Get("forked"); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

func benchmarkSaveLoad(b *testing.B, factory store.StoreFactory) {
	src := factory()
	defer src.Close()

	for i := 0; i < 10000; i++ {
		v := store.VersionedValue{Value: []byte("snapshot value"), Clock: vclock.Clock{"n1": 1}}
		if _, err := src.Put(fmt.Sprintf("key-%d", i), v); err != nil {
			b.Fatalf("setup Put failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := src.Save(&buf); err != nil {
			b.Fatalf("Save failed: %v", err)
		}
		dst := factory()
		if err := dst.Load(&buf); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		dst.Close()
	}
}
