package drop

// Status is the production state of a drop.
type Status int

const (
	StatusInitialized Status = iota
	StatusWriting
	StatusCompleted
	StatusError
	StatusExpired
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusWriting:
		return "writing"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusExpired:
		return "expired"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Finished reports whether the producer side is done with the drop,
// successfully or not.
func (s Status) Finished() bool {
	return s >= StatusCompleted
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusInitialized, StatusWriting, StatusCompleted, StatusError, StatusExpired, StatusDeleted}
}

// Phase is the durability classification of a drop.
type Phase int

const (
	// PhaseGas is a single copy that has not been replicated or verified.
	PhaseGas Phase = iota
	// PhaseSolid is content held by the required number of verified copies.
	PhaseSolid
	// PhaseLost is content that could not be found when verified.
	PhaseLost
)

func (p Phase) String() string {
	switch p {
	case PhaseGas:
		return "gas"
	case PhaseSolid:
		return "solid"
	case PhaseLost:
		return "lost"
	default:
		return "unknown"
	}
}

// Phases lists every phase.
func Phases() []Phase {
	return []Phase{PhaseGas, PhaseSolid, PhaseLost}
}
