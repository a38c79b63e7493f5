package core

// SignalKind classifies negotiation payloads on the wire.
type SignalKind int

const (
	SignalOffer SignalKind = iota
	SignalAnswer
	SignalCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalCandidate:
		return "ice_candidate"
	}
	return "unknown"
}

// LinkEvent is everything a connection primitive reports about one remote peer.
// The set is closed: Offer, Answer, IceCandidate, Connected, StreamAttached,
// Closed and Faulted.
type LinkEvent interface {
	linkEvent()
}

// Signal is the subset of LinkEvent that travels through the gateway.
type Signal interface {
	LinkEvent
	Kind() SignalKind
}

type Offer struct {
	SDP string
}

type Answer struct {
	SDP string
}

// IceCandidate mirrors RTCIceCandidateInit.
type IceCandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type Connected struct{}

type StreamAttached struct {
	Stream Stream
}

type Closed struct{}

type Faulted struct {
	Err error
}

func (Offer) linkEvent()          {}
func (Answer) linkEvent()         {}
func (IceCandidate) linkEvent()   {}
func (Connected) linkEvent()      {}
func (StreamAttached) linkEvent() {}
func (Closed) linkEvent()         {}
func (Faulted) linkEvent()        {}

func (Offer) Kind() SignalKind        { return SignalOffer }
func (Answer) Kind() SignalKind       { return SignalAnswer }
func (IceCandidate) Kind() SignalKind { return SignalCandidate }
