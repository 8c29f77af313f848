package replication

import (
	"cmp"
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/world"
)

// Checksum hashes every live replicated member of w, in RefID order, as
// [u64 RefID][u32 len][value]. Two peers holding the same replicated state
// produce the same sum regardless of local-only elements.
func Checksum(w *world.World) [blake2b.Size256]byte {
	var members []field.Member
	for _, el := range w.Registry().Snapshot() {
		if m, ok := el.(field.Member); ok && !m.ReferenceID().IsLocal() && !m.IsDestroyed() {
			members = append(members, m)
		}
	}
	slices.SortFunc(members, func(a, b field.Member) int {
		return cmp.Compare(a.ReferenceID(), b.ReferenceID())
	})

	h, _ := blake2b.New256(nil)
	val := field.NewWriter()
	head := field.NewWriter()
	for _, m := range members {
		val.Reset()
		m.Encode(val)
		head.Reset()
		head.WriteRefID(m.ReferenceID())
		head.WriteU32(uint32(val.Len()))
		h.Write(head.Bytes())
		h.Write(val.Bytes())
	}
	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
