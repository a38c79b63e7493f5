package core

// Conn is the peer-to-peer connection primitive bound to one PeerLink.
// Signal is asynchronous: results come back as LinkEvents through the
// emit callback given to ConnFactory.Create.
type Conn interface {
	Signal(sig Signal) error
	// ReplaceTrack swaps old for next on the sender that owns old.
	ReplaceTrack(old, next Track, owner Stream) error
	// AddTrack attaches a new outgoing track, renegotiating if needed.
	AddTrack(t Track, owner Stream) error
	// Destroy releases the connection. It is idempotent and emits nothing.
	Destroy()
}

type ConnFactory interface {
	Create(initiator bool, outgoing Stream, emit func(LinkEvent)) (Conn, error)
}
