package field

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/slotworld/datamodel/internal/core/refid"
)

// ErrShortBuffer is reported by Reader when a value runs past the input.
var ErrShortBuffer = errors.New("field data truncated")

// ErrTrailingBytes is reported by Load when data continues past the value.
var ErrTrailingBytes = errors.New("trailing bytes after value")

// Writer serializes member values. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// WriteU8 writes 1 byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
		return
	}
	w.WriteU8(0)
}

// WriteU32 writes 4 bytes little-endian.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteU64 writes 8 bytes little-endian.
func (w *Writer) WriteU64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }
func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteUvarint writes a varint length or count.
func (w *Writer) WriteUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteString writes a varint length followed by the UTF-8 bytes as given.
func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteRefID writes the raw 64-bit id.
func (w *Writer) WriteRefID(id refid.RefID) { w.WriteU64(uint64(id)) }

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the written content.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the current length.
func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the writer, keeping its buffer.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Reader reads member values written by Writer. The first short read sets a
// sticky error and every later read returns zero values.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrShortBuffer
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadU8 reads 1 byte.
func (r *Reader) ReadU8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadBool() bool { return r.ReadU8() != 0 }

// ReadU32 reads 4 bytes little-endian.
func (r *Reader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadU64 reads 8 bytes little-endian.
func (r *Reader) ReadU64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadI32() int32   { return int32(r.ReadU32()) }
func (r *Reader) ReadI64() int64   { return int64(r.ReadU64()) }
func (r *Reader) ReadF32() float32 { return math.Float32frombits(r.ReadU32()) }
func (r *Reader) ReadF64() float64 { return math.Float64frombits(r.ReadU64()) }

// ReadUvarint reads a varint written by WriteUvarint.
func (r *Reader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		r.err = ErrShortBuffer
		r.off = len(r.data)
		return 0
	}
	r.off += n
	return v
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() string {
	n := r.ReadUvarint()
	if n > uint64(r.Remaining()) {
		r.err = ErrShortBuffer
		r.off = len(r.data)
		return ""
	}
	return string(r.take(int(n)))
}

func (r *Reader) ReadRefID() refid.RefID { return refid.RefID(r.ReadU64()) }

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first read error.
func (r *Reader) Err() error { return r.err }
