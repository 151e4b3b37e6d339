package domain

// Status is the derived position of a tag in the supply chain. It is never
// stored; StatusOf recomputes it from the stage timestamps on every read.
type Status int

const (
	StatusAtSlaughterhouse Status = iota
	StatusWithTrader
	StatusDispatchedToTannery
	StatusAtTannery
	StatusDispatchedFromTannery
	StatusAtGarment
	StatusDispatchedFromGarment
)

var statusNames = [...]string{
	StatusAtSlaughterhouse:      "at_slaughterhouse",
	StatusWithTrader:            "with_trader",
	StatusDispatchedToTannery:   "dispatched_to_tannery",
	StatusAtTannery:             "at_tannery",
	StatusDispatchedFromTannery: "dispatched_from_tannery",
	StatusAtGarment:             "at_garment",
	StatusDispatchedFromGarment: "dispatched_from_garment",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// StatusOf derives a Status from stage timestamps and product linkage.
// The latest stage reached wins; a product link implies the tag has left
// the garment stage.
func StatusOf(st StageTimes, linked bool) Status {
	switch {
	case linked || st.GarmentDispatched != nil:
		return StatusDispatchedFromGarment
	case st.GarmentArrived != nil:
		return StatusAtGarment
	case st.TanneryDispatched != nil:
		return StatusDispatchedFromTannery
	case st.TanneryArrived != nil:
		return StatusAtTannery
	case st.TraderDispatched != nil:
		return StatusDispatchedToTannery
	case st.TraderArrived != nil:
		return StatusWithTrader
	default:
		return StatusAtSlaughterhouse
	}
}

// Describe renders a status for people reading a trace. destination is the
// tannery dispatch destination and is only used once the tag has left the
// tannery.
func (s Status) Describe(destination string) string {
	switch s {
	case StatusAtSlaughterhouse:
		return "In slaughterhouse"
	case StatusWithTrader:
		return "With trader"
	case StatusDispatchedToTannery:
		return "Dispatched to tannery"
	case StatusAtTannery:
		return "At tannery"
	case StatusDispatchedFromTannery:
		if destination == "" {
			return "Dispatched from tannery"
		}
		return "Dispatched to " + destination
	case StatusAtGarment:
		return "At garment facility"
	case StatusDispatchedFromGarment:
		return "Dispatched from garment"
	}
	return "Unknown"
}
