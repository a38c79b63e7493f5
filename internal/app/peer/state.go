package peer

type State int32

const (
	StateNew State = iota
	StateOffering
	StateAwaitingOffer
	StateAnswering
	StateConnected
	StateClosed
)

var stateNames = [...]string{"new", "offering", "awaiting-offer", "answering", "connected", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
