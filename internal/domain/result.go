package domain

type EnqueueOutcome int

const (
	Added EnqueueOutcome = iota
	AlreadyPresent
	RejectedFull
	RejectedBlocked
)

func (o EnqueueOutcome) String() string {
	switch o {
	case Added:
		return "added"
	case AlreadyPresent:
		return "already_present"
	case RejectedFull:
		return "rejected_full"
	case RejectedBlocked:
		return "rejected_blocked"
	}
	return "unknown"
}

// EnqueueResult: los rechazos son valores, no errores.
type EnqueueResult struct {
	Outcome  EnqueueOutcome
	Member   Member
	Restored bool // volvió dentro del período de gracia
}

func (r EnqueueResult) Rejected() bool {
	return r.Outcome == RejectedFull || r.Outcome == RejectedBlocked
}

// Admission es lo que la política externa opina de un usuario para una cola.
type Admission struct {
	Blocked  bool
	Priority bool
}
