package peer

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/core/coretest"
	"github.com/dkeye/Meet/internal/domain"
)

type mockHooks struct {
	forwarded []core.Signal
	connected int
	streams   []core.Stream
	faults    []error
	closed    int
}

func (h *mockHooks) Forward(_ *Link, sig core.Signal) { h.forwarded = append(h.forwarded, sig) }
func (h *mockHooks) Connected(*Link)                  { h.connected++ }
func (h *mockHooks) Stream(_ *Link, s core.Stream)    { h.streams = append(h.streams, s) }
func (h *mockHooks) Fault(_ *Link, err error)         { h.faults = append(h.faults, err) }
func (h *mockHooks) Closed(*Link)                     { h.closed++ }

func inline(fn func()) { fn() }

func newTestLinks(t *testing.T) (*Links, *coretest.ConnFactory, *mockHooks) {
	t.Helper()
	f := &coretest.ConnFactory{}
	h := &mockHooks{}
	return NewLinks(f, inline, h, 0), f, h
}

func fakeConn(t *testing.T, l *Link) *coretest.Conn {
	t.Helper()
	c, ok := l.Conn().(*coretest.Conn)
	if !ok {
		t.Fatalf("unexpected conn type %T", l.Conn())
	}
	return c
}

func TestInitiatorPath(t *testing.T) {
	links, _, hooks := newTestLinks(t)
	l, err := links.Open("2", true, coretest.NewAVStream("cam"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.State() != StateOffering {
		t.Fatalf("state = %v, want offering", l.State())
	}
	conn := fakeConn(t, l)
	if !conn.Initiator {
		t.Fatal("conn should be created as initiator")
	}

	conn.Emit(core.Offer{SDP: "o"})
	if len(hooks.forwarded) != 1 || hooks.forwarded[0].Kind() != core.SignalOffer {
		t.Fatalf("forwarded = %v, want one offer", hooks.forwarded)
	}

	if err := l.Deliver(core.Answer{SDP: "a"}); err != nil {
		t.Fatalf("Deliver answer: %v", err)
	}
	conn.Emit(core.Connected{})
	if l.State() != StateConnected || hooks.connected != 1 {
		t.Fatalf("state = %v connected hooks = %d", l.State(), hooks.connected)
	}

	l.Close()
	if l.State() != StateClosed || !conn.Destroyed() {
		t.Fatal("Close should destroy the connection")
	}
}

func TestResponderPathQueuesEarlyCandidates(t *testing.T) {
	links, _, _ := newTestLinks(t)
	l, err := links.Open("1", false, coretest.NewAVStream("cam"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if l.State() != StateAwaitingOffer {
		t.Fatalf("state = %v, want awaiting-offer", l.State())
	}
	conn := fakeConn(t, l)

	if err := l.Deliver(core.IceCandidate{Candidate: "c1"}); err != nil {
		t.Fatalf("Deliver candidate: %v", err)
	}
	if len(conn.Received()) != 0 || l.Pending() != 1 {
		t.Fatalf("candidate should be queued before the offer, received=%d pending=%d", len(conn.Received()), l.Pending())
	}

	if err := l.Deliver(core.Offer{SDP: "o"}); err != nil {
		t.Fatalf("Deliver offer: %v", err)
	}
	if l.State() != StateAnswering {
		t.Fatalf("state = %v, want answering", l.State())
	}
	got := conn.Received()
	if len(got) != 2 || got[0].Kind() != core.SignalOffer || got[1].Kind() != core.SignalCandidate {
		t.Fatalf("conn received %v, want offer then candidate", got)
	}
	if l.Pending() != 0 {
		t.Fatal("pending queue not flushed")
	}
}

func TestUnexpectedSignalsAreRejected(t *testing.T) {
	links, _, _ := newTestLinks(t)
	initiator, _ := links.Open("2", true, nil)
	if err := initiator.Deliver(core.Offer{SDP: "glare"}); !errors.Is(err, ErrUnexpectedSignal) {
		t.Fatalf("offer on offering initiator = %v, want ErrUnexpectedSignal", err)
	}

	responder, _ := links.Open("0", false, nil)
	if err := responder.Deliver(core.Answer{SDP: "a"}); !errors.Is(err, ErrUnexpectedSignal) {
		t.Fatalf("answer on responder = %v, want ErrUnexpectedSignal", err)
	}
}

func TestClosedLinkIgnoresEverything(t *testing.T) {
	links, _, hooks := newTestLinks(t)
	l, _ := links.Open("2", true, nil)
	conn := fakeConn(t, l)
	l.Close()
	l.Close()

	if err := l.Deliver(core.Answer{SDP: "late"}); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("Deliver on closed link = %v, want ErrLinkClosed", err)
	}
	conn.Emit(core.Connected{})
	conn.Emit(core.Offer{SDP: "late"})
	if hooks.connected != 0 || len(hooks.forwarded) != 0 {
		t.Fatal("closed link must not report stale completions")
	}
	if l.State() != StateClosed {
		t.Fatalf("state = %v, want closed", l.State())
	}
}

func TestOpenIsIdempotentPerRemote(t *testing.T) {
	links, factory, _ := newTestLinks(t)
	a, _ := links.Open("2", true, nil)
	b, _ := links.Open("2", true, nil)
	if a != b || factory.Count() != 1 || links.Len() != 1 {
		t.Fatalf("expected a single link, got %d conns and %d links", factory.Count(), links.Len())
	}
	if links.Remove("2") == nil || links.Remove("2") != nil {
		t.Fatal("Remove should close once and then report nothing")
	}
}

func TestCreateFailureLeavesNoLink(t *testing.T) {
	links, factory, _ := newTestLinks(t)
	factory.Err = errors.New("no ice servers")
	if _, err := links.Open("2", true, nil); err == nil {
		t.Fatal("expected create error")
	}
	if links.Len() != 0 {
		t.Fatal("failed link must not be kept")
	}
}

func TestSendVideoReplacesOrAdds(t *testing.T) {
	links, _, _ := newTestLinks(t)
	cam := coretest.NewAVStream("cam")
	screen := coretest.NewStream("screen", coretest.NewTrack("screen-video", core.TrackVideo))

	l, _ := links.Open("2", true, cam)
	conn := fakeConn(t, l)
	if err := l.SendVideo(screen.Video(), screen); err != nil {
		t.Fatalf("SendVideo: %v", err)
	}
	if len(conn.Replaced) != 1 || conn.Replaced[0].Old != cam.Video() || conn.Replaced[0].Owner != cam {
		t.Fatalf("expected replace of camera track owned by camera stream, got %+v", conn.Replaced)
	}
	if l.Video() != screen.Video() {
		t.Fatal("link should now carry the screen track")
	}

	audioOnly, _ := links.Open("3", true, coretest.NewStream("mic", coretest.NewTrack("a", core.TrackAudio)))
	aconn := fakeConn(t, audioOnly)
	if err := audioOnly.SendVideo(screen.Video(), screen); err != nil {
		t.Fatalf("SendVideo: %v", err)
	}
	if len(aconn.Added) != 1 || len(aconn.Replaced) != 0 {
		t.Fatal("link without outgoing video should add the track")
	}
}

func TestSendVideoFailureKeepsPreviousTrack(t *testing.T) {
	links, _, _ := newTestLinks(t)
	cam := coretest.NewAVStream("cam")
	l, _ := links.Open("2", true, cam)
	fakeConn(t, l).ReplaceErr = errors.New("sender gone")

	err := l.SendVideo(coretest.NewTrack("s", core.TrackVideo), nil)
	var le *LinkError
	if !errors.As(err, &le) || le.Op != "replace-track" || le.Peer != "2" {
		t.Fatalf("err = %v, want LinkError replace-track", err)
	}
	if l.Video() != cam.Video() {
		t.Fatal("failed replace must keep the previous track")
	}
}

func TestConnectTimeoutFaultsLink(t *testing.T) {
	f := &coretest.ConnFactory{}
	h := &mockHooks{}
	posted := make(chan func(), 1)
	links := NewLinks(f, func(fn func()) { posted <- fn }, h, 10*time.Millisecond)

	if _, err := links.Open(domain.UserID("2"), true, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	select {
	case fn := <-posted:
		fn()
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	if len(h.faults) != 1 || !errors.Is(h.faults[0], ErrConnectTimeout) {
		t.Fatalf("faults = %v, want ErrConnectTimeout", h.faults)
	}
}

func TestConnectedLinkDisarmsTimeout(t *testing.T) {
	f := &coretest.ConnFactory{}
	h := &mockHooks{}
	posted := make(chan func(), 4)
	links := NewLinks(f, func(fn func()) { posted <- fn }, h, 20*time.Millisecond)

	l, _ := links.Open("2", true, nil)
	fakeConn(t, l).Emit(core.Connected{})
	(<-posted)()
	if l.State() != StateConnected {
		t.Fatalf("state = %v", l.State())
	}
	select {
	case fn := <-posted:
		fn()
	case <-time.After(60 * time.Millisecond):
	}
	if len(h.faults) != 0 {
		t.Fatalf("connected link faulted: %v", h.faults)
	}
}

func TestCloseAllDestroysEveryConn(t *testing.T) {
	links, factory, _ := newTestLinks(t)
	for _, id := range []domain.UserID{"1", "3", "4"} {
		if _, err := links.Open(id, true, nil); err != nil {
			t.Fatal(err)
		}
	}
	links.CloseAll()
	if links.Len() != 0 {
		t.Fatalf("Len() = %d after CloseAll", links.Len())
	}
	for i, c := range factory.Conns {
		if !c.Destroyed() {
			t.Fatalf("conn %d not destroyed", i)
		}
	}
}
