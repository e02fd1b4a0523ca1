package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/qkv-io/qKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey       uint16 = 1 << 0
	hasValue     uint16 = 1 << 1
	hasVector    uint16 = 1 << 2
	hasSiblings  uint16 = 1 << 3
	hasRecords   uint16 = 1 << 4
	hasDigest    uint16 = 1 << 5
	hasBucketIDs uint16 = 1 << 6
	hasBuckets   uint16 = 1 << 7
	hasOk        uint16 = 1 << 8
	hasResult    uint16 = 1 << 9
	hasErr       uint16 = 1 << 10
	hasMeta      uint16 = 1 << 11
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Header: 1 byte MsgType + 2 bytes flags, filled in at the end
	buf := make([]byte, 3, 64)
	buf[0] = byte(msg.MsgType)

	var flags uint16

	if msg.Key != "" {
		flags |= hasKey
		buf = appendBytes(buf, []byte(msg.Key))
	}
	if msg.Value != nil {
		flags |= hasValue
		buf = appendBytes(buf, msg.Value)
	}
	if msg.Vector != nil {
		flags |= hasVector
		buf = appendVector(buf, msg.Vector)
	}
	if msg.Siblings != nil {
		flags |= hasSiblings
		buf = appendSiblings(buf, msg.Siblings)
	}
	if msg.Records != nil {
		flags |= hasRecords
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Records)))
		for _, record := range msg.Records {
			buf = appendBytes(buf, []byte(record.Key))
			buf = appendSiblings(buf, record.Siblings)
		}
	}
	if msg.Digest != nil {
		flags |= hasDigest
		buf = appendUint64s(buf, msg.Digest)
	}
	if msg.BucketIDs != nil {
		flags |= hasBucketIDs
		buf = appendUint64s(buf, msg.BucketIDs)
	}
	if msg.Buckets > 0 {
		flags |= hasBuckets
		buf = binary.BigEndian.AppendUint32(buf, msg.Buckets)
	}
	if msg.Ok {
		flags |= hasOk
		buf = append(buf, 1)
	}
	if msg.Result > 0 {
		flags |= hasResult
		buf = append(buf, msg.Result)
	}
	if msg.Err != "" {
		flags |= hasErr
		buf = appendBytes(buf, []byte(msg.Err))
	}
	if msg.Meta != nil {
		flags |= hasMeta
		buf = appendBytes(buf, msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(buf[1:3], flags)

	return buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 3 {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])

	r := &reader{data: data, pos: 3}

	// Reset all optional fields so a reused message carries nothing over
	*msg = common.Message{MsgType: msg.MsgType}

	if flags&hasKey != 0 {
		key, err := r.bytes("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}
	if flags&hasValue != 0 {
		value, err := r.bytes("value")
		if err != nil {
			return err
		}
		msg.Value = value
	}
	if flags&hasVector != 0 {
		vector, err := r.vector()
		if err != nil {
			return err
		}
		msg.Vector = vector
	}
	if flags&hasSiblings != 0 {
		siblings, err := r.siblings()
		if err != nil {
			return err
		}
		msg.Siblings = siblings
	}
	if flags&hasRecords != 0 {
		count, err := r.uint32("record count")
		if err != nil {
			return err
		}
		records := make([]common.Record, count)
		for i := range records {
			key, err := r.bytes("record key")
			if err != nil {
				return err
			}
			siblings, err := r.siblings()
			if err != nil {
				return err
			}
			records[i] = common.Record{Key: string(key), Siblings: siblings}
		}
		msg.Records = records
	}
	if flags&hasDigest != 0 {
		digest, err := r.uint64s("digest")
		if err != nil {
			return err
		}
		msg.Digest = digest
	}
	if flags&hasBucketIDs != 0 {
		bucketIDs, err := r.uint64s("bucket ids")
		if err != nil {
			return err
		}
		msg.BucketIDs = bucketIDs
	}
	if flags&hasBuckets != 0 {
		buckets, err := r.uint32("buckets")
		if err != nil {
			return err
		}
		msg.Buckets = buckets
	}
	if flags&hasOk != 0 {
		ok, err := r.byte("ok flag")
		if err != nil {
			return err
		}
		msg.Ok = ok != 0
	}
	if flags&hasResult != 0 {
		result, err := r.byte("result")
		if err != nil {
			return err
		}
		msg.Result = result
	}
	if flags&hasErr != 0 {
		errStr, err := r.bytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(errStr)
	}
	if flags&hasMeta != 0 {
		meta, err := r.bytes("meta")
		if err != nil {
			return err
		}
		msg.Meta = meta
	}

	return nil
}

// --------------------------------------------------------------------------
// Append Helpers
// --------------------------------------------------------------------------

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendVector(buf []byte, vector map[string]uint64) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(vector)))
	for id, counter := range vector {
		buf = appendBytes(buf, []byte(id))
		buf = binary.BigEndian.AppendUint64(buf, counter)
	}
	return buf
}

func appendSiblings(buf []byte, siblings []common.Sibling) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(siblings)))
	for _, sibling := range siblings {
		var tombstone byte
		if sibling.Tombstone {
			tombstone = 1
		}
		buf = append(buf, tombstone)
		buf = appendVector(buf, sibling.Vector)
		buf = appendBytes(buf, sibling.Value)
	}
	return buf
}

func appendUint64s(buf []byte, values []uint64) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(values)))
	for _, v := range values {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	return buf
}

// --------------------------------------------------------------------------
// Read Helpers
// --------------------------------------------------------------------------

// reader is a bounds-checked cursor over the serialized data
type reader struct {
	data []byte
	pos  int
}

func (r *reader) byte(what string) (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", what)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint32(what string) (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", what)
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64(what string) (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("data too short for %s", what)
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes(what string) ([]byte, error) {
	length, err := r.uint32(what + " length")
	if err != nil {
		return nil, err
	}
	if r.pos+int(length) > len(r.data) {
		return nil, fmt.Errorf("data too short for %s data", what)
	}
	if length == 0 {
		return nil, nil
	}
	b := make([]byte, length)
	copy(b, r.data[r.pos:r.pos+int(length)])
	r.pos += int(length)
	return b, nil
}

func (r *reader) vector() (map[string]uint64, error) {
	count, err := r.uint32("vector size")
	if err != nil {
		return nil, err
	}
	vector := make(map[string]uint64, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.bytes("vector id")
		if err != nil {
			return nil, err
		}
		counter, err := r.uint64("vector counter")
		if err != nil {
			return nil, err
		}
		vector[string(id)] = counter
	}
	return vector, nil
}

func (r *reader) siblings() ([]common.Sibling, error) {
	count, err := r.uint32("sibling count")
	if err != nil {
		return nil, err
	}
	siblings := make([]common.Sibling, count)
	for i := range siblings {
		tombstone, err := r.byte("tombstone flag")
		if err != nil {
			return nil, err
		}
		vector, err := r.vector()
		if err != nil {
			return nil, err
		}
		value, err := r.bytes("sibling value")
		if err != nil {
			return nil, err
		}
		siblings[i] = common.Sibling{Value: value, Vector: vector, Tombstone: tombstone == 1}
	}
	return siblings, nil
}

func (r *reader) uint64s(what string) ([]uint64, error) {
	count, err := r.uint32(what + " count")
	if err != nil {
		return nil, err
	}
	values := make([]uint64, count)
	for i := range values {
		if values[i], err = r.uint64(what); err != nil {
			return nil, err
		}
	}
	return values, nil
}
