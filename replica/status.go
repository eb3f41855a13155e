package replica

// Status is the replica lifecycle phase. A replica starts Idle, runs Normal
// while its ordering protocol is current, drops to OutOfDate while a state or
// log transfer fills a gap, and sits in Joining while its own quorum
// admission is in flight.
type Status int32

const (
	Idle Status = iota
	Normal
	OutOfDate
	Joining
	ShuttingDown
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Normal:
		return "Normal"
	case OutOfDate:
		return "OutOfDate"
	case Joining:
		return "Joining"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Status(?)"
	}
}
