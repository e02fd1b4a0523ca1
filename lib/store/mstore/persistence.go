package mstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/qkv-io/qKV/lib/store"
	"github.com/qkv-io/qKV/lib/store/mstore/internal"
	"github.com/qkv-io/qKV/lib/vclock"
)

const (
	magicNum     = "QKVDB\x00" // File format identifier
	storeVersion = 1           // Snapshot format version
)

// Save persists the store to the writer as a versioned binary snapshot.
// Concurrent reading and writing is allowed during Save; the snapshot is a
// point-in-time view per key, not across keys.
func (s *mstoreImpl) Save(w io.Writer) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}

	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type recordToSave struct {
		key      string
		siblings []store.VersionedValue
	}

	// Collect deep copies of all sibling sets first so the entry count is
	// known before the header is written
	var records []recordToSave
	for _, shard := range s.shards {
		shard.Data.Range(func(key string, record internal.Record) bool {
			siblings := make([]store.VersionedValue, len(record.Siblings))
			for i, sib := range record.Siblings {
				siblings[i] = sib.Copy()
			}
			records = append(records, recordToSave{key, siblings})
			return true
		})
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint8(storeVersion)); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(records))); err != nil {
		return err
	}

	for _, item := range records {
		if err := writeBytes(bw, []byte(item.key)); err != nil {
			return err
		}

		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.siblings))); err != nil {
			return err
		}

		for _, sib := range item.siblings {
			if err := writeSibling(bw, sib); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores the store from the reader, replacing all current contents.
//
// Thread-safety: This function is not thread-safe and should not be called
// concurrently with any other operation.
func (s *mstoreImpl) Load(r io.Reader) error {
	if s.closed.Load() {
		return store.NewError(store.RetCClosed, "store is closed")
	}

	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return store.NewError(store.RetCCorruptSnapshot, "invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != storeVersion {
		return store.NewError(store.RetCCorruptSnapshot,
			fmt.Sprintf("unsupported snapshot version: %d (expected %d)", version, storeVersion))
	}

	// Reset all shards. The GC goroutines stay running; tombstone records
	// loaded below are re-announced through the event queues.
	for _, shard := range s.shards {
		shard.Data.Clear()
	}

	var recordCount uint64
	if err := binary.Read(br, binary.LittleEndian, &recordCount); err != nil {
		return err
	}

	for i := uint64(0); i < recordCount; i++ {
		keyBytes, err := readBytes(br)
		if err != nil {
			return err
		}
		key := string(keyBytes)

		var siblingCount uint32
		if err := binary.Read(br, binary.LittleEndian, &siblingCount); err != nil {
			return err
		}

		siblings := make([]store.VersionedValue, siblingCount)
		for j := range siblings {
			if siblings[j], err = readSibling(br); err != nil {
				return err
			}
		}

		record := internal.Record{Siblings: siblings}
		shard := s.shardFor(key)
		shard.Data.Store(key, record)
		s.notify(shard, key, record)
	}

	return nil
}

// --------------------------------------------------------------------------
// Wire helpers
// --------------------------------------------------------------------------

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeSibling(w io.Writer, sib store.VersionedValue) error {
	var tombstone uint8
	if sib.Tombstone {
		tombstone = 1
	}
	if err := binary.Write(w, binary.LittleEndian, tombstone); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(sib.Clock))); err != nil {
		return err
	}
	for id, counter := range sib.Clock {
		if err := writeBytes(w, []byte(id)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, counter); err != nil {
			return err
		}
	}

	return writeBytes(w, sib.Value)
}

func readSibling(r io.Reader) (store.VersionedValue, error) {
	var sib store.VersionedValue

	var tombstone uint8
	if err := binary.Read(r, binary.LittleEndian, &tombstone); err != nil {
		return sib, err
	}
	sib.Tombstone = tombstone == 1

	var clockLen uint32
	if err := binary.Read(r, binary.LittleEndian, &clockLen); err != nil {
		return sib, err
	}
	sib.Clock = vclock.New()
	for i := uint32(0); i < clockLen; i++ {
		id, err := readBytes(r)
		if err != nil {
			return sib, err
		}
		var counter uint64
		if err := binary.Read(r, binary.LittleEndian, &counter); err != nil {
			return sib, err
		}
		sib.Clock[string(id)] = counter
	}

	value, err := readBytes(r)
	if err != nil {
		return sib, err
	}
	sib.Value = value
	return sib, nil
}
