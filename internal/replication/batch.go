// Package replication moves dirty field state between peers: the encoder
// drains a world's dirty set into batches, Apply decodes batches into the
// registered members of another world.
package replication

import (
	"errors"
	"fmt"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
)

// Version is the batch format version.
const Version = 1

// entryOverhead is the RefID and length prefix in front of every entry.
const entryOverhead = 8 + 4

// batchHeader is version, source domain, tick and entry count.
const batchHeader = 1 + 1 + 8 + 4

var (
	ErrVersion = errors.New("unsupported batch version")
	ErrTrailer = errors.New("trailing bytes after batch")
)

// Entry is the encoded value of one member.
type Entry struct {
	ID   refid.RefID
	Data []byte
}

// Batch is the set of member values one peer sends for one tick.
type Batch struct {
	Source  byte
	Tick    uint64
	Entries []Entry
}

// Size is the encoded length of b.
func (b *Batch) Size() int {
	n := batchHeader
	for _, e := range b.Entries {
		n += entryOverhead + len(e.Data)
	}
	return n
}

// MarshalBinary encodes b:
// [u8 version][u8 source][u64 tick][u32 count] then per entry
// [u64 RefID][u32 len][len bytes].
func (b *Batch) MarshalBinary() ([]byte, error) {
	w := field.NewWriter()
	w.WriteU8(Version)
	w.WriteU8(b.Source)
	w.WriteU64(b.Tick)
	w.WriteU32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.WriteRefID(e.ID)
		w.WriteU32(uint32(len(e.Data)))
		w.WriteBytes(e.Data)
	}
	return w.Bytes(), nil
}

// ParseBatch decodes a batch produced by MarshalBinary.
func ParseBatch(data []byte) (*Batch, error) {
	r := field.NewReader(data)
	if v := r.ReadU8(); r.Err() == nil && v != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	b := &Batch{Source: r.ReadU8(), Tick: r.ReadU64()}
	count := r.ReadU32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("batch header: %w", err)
	}
	if int(count) > r.Remaining()/entryOverhead {
		return nil, fmt.Errorf("batch claims %d entries in %d bytes", count, r.Remaining())
	}
	b.Entries = make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		id := r.ReadRefID()
		n := r.ReadU32()
		raw := r.ReadBytes(int(n))
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		b.Entries = append(b.Entries, Entry{ID: id, Data: raw})
	}
	if r.Remaining() != 0 {
		return nil, ErrTrailer
	}
	return b, nil
}
