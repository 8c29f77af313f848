package refid

import "errors"

// ErrNoFreeDomain is returned when all peer domains are taken.
var ErrNoFreeDomain = errors.New("no free peer allocation domain")

// PeerDomains assigns the peer domains 1..MaxPeerDomain, one per connected
// peer. The authority is always domain 0 and never appears here.
type PeerDomains struct {
	used [int(MaxPeerDomain) + 1]bool
}

func NewPeerDomains() *PeerDomains {
	return &PeerDomains{}
}

// Acquire returns the lowest free peer domain.
func (p *PeerDomains) Acquire() (byte, error) {
	for d := 1; d <= int(MaxPeerDomain); d++ {
		if !p.used[d] {
			p.used[d] = true
			return byte(d), nil
		}
	}
	return 0, ErrNoFreeDomain
}

// Release frees a domain. Releasing a free or reserved domain is a no-op.
func (p *PeerDomains) Release(domain byte) {
	if domain == DomainAuthority || domain > MaxPeerDomain {
		return
	}
	p.used[domain] = false
}

// InUse reports whether domain is currently assigned.
func (p *PeerDomains) InUse(domain byte) bool {
	if domain > MaxPeerDomain {
		return false
	}
	return p.used[domain]
}
