package lifecycle

import "github.com/dray-io/droplife/internal/drop"

// DefaultReplicationFactor is the number of live copies a precious drop needs
// to become Solid.
const DefaultReplicationFactor = 2

// Policy decides when a drop needs more copies and how to classify it.
type Policy interface {
	// Wants reports whether d needs another copy, given the number of
	// usable copies of its OID already registered (d included).
	Wants(d *drop.Drop, copies int) bool

	// Classify returns the phase for the copies of a precious OID when live
	// completed copies exist.
	Classify(live int) drop.Phase

	// Target is the number of copies the policy aims for.
	Target() int
}

// CopyPolicy replicates precious drops until Factor copies exist.
// Non-precious drops are never replicated and stay Gas.
type CopyPolicy struct {
	Factor int
}

func (p CopyPolicy) Target() int {
	if p.Factor <= 0 {
		return DefaultReplicationFactor
	}
	return p.Factor
}

func (p CopyPolicy) Wants(d *drop.Drop, copies int) bool {
	return d.Precious() && copies < p.Target()
}

func (p CopyPolicy) Classify(live int) drop.Phase {
	if live >= p.Target() {
		return drop.PhaseSolid
	}
	return drop.PhaseGas
}
