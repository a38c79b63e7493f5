package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gorilla/websocket"
)

var testRoom = domain.Room{Token: "tok", LocalID: "1"}

// relay starts a websocket server running serve for each connection.
func relay(t *testing.T, serve func(ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		serve(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type events struct {
	mu  sync.Mutex
	got []core.GatewayEvent
}

func (e *events) handle(ev core.GatewayEvent) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) list() []core.GatewayEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.GatewayEvent(nil), e.got...)
}

func TestClientJoinRoundTrip(t *testing.T) {
	joined := make(chan Message, 1)
	url := relay(t, func(ws *websocket.Conn) {
		var m Message
		if err := ws.ReadJSON(&m); err != nil {
			t.Errorf("relay read: %v", err)
			return
		}
		joined <- m
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"room_info","participants":[{"id":"1","username":"me","is_you":true}]}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus_without_handler"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_joined","username":"no id"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"user_joined","user_id":"2","username":"Bob"}`))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = ws.ReadMessage()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Options{URL: url})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.JoinRoom(testRoom, "me"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	var evs events
	if err := c.Run(ctx, evs.handle); err != nil {
		t.Fatalf("Run: %v", err)
	}

	m := <-joined
	if m.Type != "join_room" || m.RoomToken != "tok" || m.UserID != "1" || m.Username != "me" {
		t.Fatalf("join message = %+v", m)
	}
	got := evs.list()
	if len(got) != 2 {
		t.Fatalf("events = %#v, want room_info and user_joined", got)
	}
	if info, ok := got[0].(core.RoomInfo); !ok || len(info.Members) != 1 || !info.Members[0].Self {
		t.Fatalf("first event = %#v", got[0])
	}
	if got[1] != (core.UserJoined{ID: "2", Username: "Bob"}) {
		t.Fatalf("second event = %#v", got[1])
	}
	if err := c.TrySend([]byte("{}")); !errors.Is(err, ErrClosed) {
		t.Fatalf("TrySend after run = %v, want ErrClosed", err)
	}
}

func TestClientReportsDroppedConnection(t *testing.T) {
	url := relay(t, func(ws *websocket.Conn) {
		// Drop the TCP connection without a close frame.
		_ = ws.UnderlyingConn().Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Options{URL: url})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	var evs events
	if err := c.Run(ctx, evs.handle); err == nil {
		t.Fatal("Run should fail on a dropped connection")
	}
	got := evs.list()
	if len(got) != 1 {
		t.Fatalf("events = %#v", got)
	}
	if _, ok := got[0].(core.Disconnected); !ok {
		t.Fatalf("event = %#v, want Disconnected", got[0])
	}
}

func TestClientCloseIsNotADisconnect(t *testing.T) {
	seen := make(chan string, 4)
	url := relay(t, func(ws *websocket.Conn) {
		defer close(seen)
		for {
			var m Message
			if err := ws.ReadJSON(&m); err != nil {
				return
			}
			seen <- m.Type
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, Options{URL: url})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	done := make(chan error, 1)
	var evs events
	go func() { done <- c.Run(ctx, evs.handle) }()

	if err := c.LeaveRoom(testRoom); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if typ := <-seen; typ != "leave_room" {
		t.Fatalf("relay received %q", typ)
	}
	c.Close()
	if err := <-done; err != nil {
		t.Fatalf("Run after Close = %v", err)
	}
	if typ, ok := <-seen; ok {
		t.Fatalf("unexpected frame %q after close", typ)
	}
	if len(evs.list()) != 0 {
		t.Fatal("a requested close must not be reported as a disconnect")
	}
}

// idle returns a client on a live socket with no pumps running, so
// queued frames can be read straight from its send channel.
func idle(t *testing.T, opts Options) *Client {
	t.Helper()
	url := relay(t, func(ws *websocket.Conn) { _, _, _ = ws.ReadMessage() })
	opts.URL = url
	c, err := Dial(context.Background(), opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func next(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("queued frame: %v", err)
		}
		return m
	default:
		t.Fatal("nothing queued")
		return nil
	}
}

func TestOutgoingShapes(t *testing.T) {
	c := idle(t, Options{})

	if err := c.SendMediaState(testRoom, domain.FlagAudio, false); err != nil {
		t.Fatal(err)
	}
	m := next(t, c)
	if m["type"] != "toggle_audio" || m["is_muted"] != true || m["room_token"] != "tok" || m["user_id"] != "1" {
		t.Fatalf("toggle_audio = %v", m)
	}

	if err := c.SendMediaState(testRoom, domain.FlagVideo, true); err != nil {
		t.Fatal(err)
	}
	if m := next(t, c); m["type"] != "toggle_video" || m["is_off"] != false {
		t.Fatalf("toggle_video = %v", m)
	}
	if err := c.SendMediaState(testRoom, domain.FlagScreen, true); err == nil {
		t.Fatal("screen flag is not a toggle")
	}

	mid := "0"
	if err := c.SendSignal("2", "1", core.IceCandidate{Candidate: "candidate:x", SDPMid: &mid}); err != nil {
		t.Fatal(err)
	}
	m = next(t, c)
	cand, _ := m["candidate"].(map[string]any)
	if m["type"] != "ice_candidate" || m["to"] != "2" || m["from"] != "1" || cand["candidate"] != "candidate:x" || cand["sdpMid"] != "0" {
		t.Fatalf("ice_candidate = %v", m)
	}

	if err := c.SendSignal("2", "1", core.Offer{SDP: testSDP}); err != nil {
		t.Fatal(err)
	}
	m = next(t, c)
	offer, _ := m["offer"].(map[string]any)
	if m["type"] != "offer" || offer["type"] != "offer" || offer["sdp"] != testSDP {
		t.Fatalf("offer = %v", m)
	}

	if err := c.SendScreenShare(testRoom, "me", true); err != nil {
		t.Fatal(err)
	}
	if m := next(t, c); m["type"] != "screen_share_started" || m["username"] != "me" {
		t.Fatalf("screen share = %v", m)
	}
}

func TestSendBackpressure(t *testing.T) {
	c := idle(t, Options{SendBuffer: 1})
	if err := c.SendChat(testRoom, "one"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.SendChat(testRoom, "two"); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("second send = %v, want ErrBackpressure", err)
	}
}

func TestChatRateLimited(t *testing.T) {
	c := idle(t, Options{ChatLimit: 2, ChatInterval: time.Hour})
	for i := range 2 {
		if err := c.SendChat(testRoom, "hi"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	err := c.SendChat(testRoom, "hi")
	var retry *RetryError
	if !errors.Is(err, ErrRateLimited) || !errors.As(err, &retry) || retry.After <= 0 {
		t.Fatalf("third send = %v, want a RetryError", err)
	}
}
