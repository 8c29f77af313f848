package refid

import (
	"fmt"
	"strconv"
	"strings"
)

// RefID encodes an 8-bit allocation domain in the upper bits and a 56-bit
// sequence in the lower bits. Zero is the null reference.
type RefID uint64

const (
	SequenceBits = 56
	SequenceMask = uint64(1)<<SequenceBits - 1
)

// Reserved domains. 1..MaxPeerDomain belong to connected peers.
const (
	DomainAuthority byte = 0
	MaxPeerDomain   byte = 253
	DomainLocal     byte = 254
	DomainReserved  byte = 255
)

// Null is the universal empty reference.
const Null RefID = 0

// FromParts packs a domain and sequence. Sequence bits above 56 are dropped.
func FromParts(domain byte, seq uint64) RefID {
	return RefID(uint64(domain)<<SequenceBits | seq&SequenceMask)
}

func (id RefID) Domain() byte     { return byte(uint64(id) >> SequenceBits) }
func (id RefID) Sequence() uint64 { return uint64(id) & SequenceMask }
func (id RefID) IsNull() bool     { return id == Null }

// IsLocal reports whether id lives in the never-replicated domain.
func (id RefID) IsLocal() bool { return id.Domain() == DomainLocal }

// String renders as ID<domain>:<hex sequence>, e.g. "ID0:1F".
func (id RefID) String() string {
	if id.IsNull() {
		return "null"
	}
	return "ID" + strconv.FormatUint(uint64(id.Domain()), 10) + ":" +
		strings.ToUpper(strconv.FormatUint(id.Sequence(), 16))
}

// Parse is the inverse of String.
func Parse(s string) (RefID, error) {
	if s == "null" || s == "" {
		return Null, nil
	}
	rest, ok := strings.CutPrefix(s, "ID")
	if !ok {
		return Null, fmt.Errorf("parse refid %q: missing ID prefix", s)
	}
	dom, seq, ok := strings.Cut(rest, ":")
	if !ok {
		return Null, fmt.Errorf("parse refid %q: missing separator", s)
	}
	d, err := strconv.ParseUint(dom, 10, 8)
	if err != nil {
		return Null, fmt.Errorf("parse refid %q domain: %w", s, err)
	}
	q, err := strconv.ParseUint(seq, 16, 64)
	if err != nil {
		return Null, fmt.Errorf("parse refid %q sequence: %w", s, err)
	}
	if q > SequenceMask {
		return Null, fmt.Errorf("parse refid %q: sequence exceeds 56 bits", s)
	}
	return FromParts(byte(d), q), nil
}
