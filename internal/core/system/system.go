// Package system orders the host-level systems that run around a world tick.
package system

import "time"

// Phase defines execution ordering within a single host tick.
type Phase int

const (
	PhaseInput    Phase = iota // 0: apply incoming replication batches
	PhaseSimulate              // 1: world tick (five scheduler phases)
	PhaseOutput                // 2: drain dirty set, build outgoing batch
	PhasePersist               // 3: periodic snapshot
	PhaseCleanup               // 4: purge confirmed trash
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseSimulate:
		return "simulate"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is the interface every host system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
