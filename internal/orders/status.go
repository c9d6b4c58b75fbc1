package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDelivered Status = "delivered"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusAccepted: true},
	StatusAccepted:  {StatusDelivered: true},
	StatusDelivered: {},
}

// CanTransition reports whether from -> to is a legal forward step. The
// lifecycle is strictly pending -> accepted -> delivered; no regression,
// no repeats.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether an order in this status is eligible for archival.
func (s Status) Terminal() bool { return s == StatusDelivered }
