package signal

import (
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

const testSDP = "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

// jsonSDP is testSDP escaped for embedding in a JSON string literal.
const jsonSDP = `v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n`

func TestDecodeSignals(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"offer","from":7,"offer":{"type":"offer","sdp":"` + jsonSDP + `"}}`))
	if err != nil {
		t.Fatalf("Decode offer: %v", err)
	}
	sr, ok := ev.(core.SignalReceived)
	if !ok || sr.From != "7" || sr.To != "" {
		t.Fatalf("offer decoded as %#v", ev)
	}
	if offer, ok := sr.Signal.(core.Offer); !ok || offer.SDP != testSDP {
		t.Fatalf("offer signal = %#v", sr.Signal)
	}

	ev, err = Decode([]byte(`{"type":"answer","from":"b","to":"a","answer":{"type":"answer","sdp":"` + jsonSDP + `"}}`))
	if err != nil {
		t.Fatalf("Decode answer: %v", err)
	}
	if sr := ev.(core.SignalReceived); sr.To != "a" || sr.Signal.Kind() != core.SignalAnswer {
		t.Fatalf("answer decoded as %#v", ev)
	}
}

func TestDecodeCandidateShapes(t *testing.T) {
	for name, raw := range map[string]string{
		"flat":   `{"type":"ice_candidate","from":"a","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`,
		"nested": `{"type":"ice_candidate","from":"a","candidate":{"type":"candidate","candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			ev, err := Decode([]byte(raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			c, ok := ev.(core.SignalReceived).Signal.(core.IceCandidate)
			if !ok {
				t.Fatalf("signal = %#v", ev)
			}
			if c.Candidate != "candidate:1 1 udp 1 10.0.0.1 5000 typ host" {
				t.Fatalf("candidate = %q", c.Candidate)
			}
			if c.SDPMid == nil || *c.SDPMid != "0" || c.SDPMLineIndex == nil || *c.SDPMLineIndex != 0 {
				t.Fatalf("mid/index = %v/%v", c.SDPMid, c.SDPMLineIndex)
			}
		})
	}
}

func TestDecodeRoomInfo(t *testing.T) {
	raw := `{"type":"room_info","room":{"id":3,"name":"Math","token":"tok"},"participants":[
		{"id":"1","username":"Ann","role":"host","is_you":false},
		{"id":2,"username":"Bob","role":"participant","is_you":true,"video_enabled":false}]}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	info := ev.(core.RoomInfo)
	if len(info.Members) != 2 {
		t.Fatalf("members = %+v", info.Members)
	}
	ann, bob := info.Members[0], info.Members[1]
	if ann.ID != "1" || ann.Username != "Ann" || ann.Role != "host" || ann.Self || ann.VideoEnabled != nil {
		t.Fatalf("ann = %+v", ann)
	}
	if bob.ID != "2" || !bob.Self || bob.VideoEnabled == nil || *bob.VideoEnabled {
		t.Fatalf("bob = %+v", bob)
	}
}

func TestDecodeRoomEvents(t *testing.T) {
	cases := []struct {
		raw  string
		want core.GatewayEvent
	}{
		{`{"type":"user_joined","user_id":"5","username":"Eve"}`, core.UserJoined{ID: "5", Username: "Eve"}},
		{`{"type":"user_left","user_id":5}`, core.UserLeft{ID: "5"}},
		{`{"type":"user_audio_changed","user_id":"5","is_muted":true}`, core.MediaStateChanged{ID: "5", Flag: domain.FlagAudio, Enabled: false}},
		{`{"type":"user_video_changed","user_id":"5","is_off":false}`, core.MediaStateChanged{ID: "5", Flag: domain.FlagVideo, Enabled: true}},
		{`{"type":"screen_share_started","user_id":"5","username":"Eve"}`, core.ScreenShareChanged{ID: "5", Username: "Eve", Started: true}},
		{`{"type":"screen_share_stopped","user_id":"5"}`, core.ScreenShareChanged{ID: "5"}},
		{`{"type":"error","message":"room not found"}`, core.GatewayError{Message: "room not found"}},
	}
	for _, tc := range cases {
		ev, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.raw, err)
		}
		if ev != tc.want {
			t.Fatalf("Decode(%s) = %#v, want %#v", tc.raw, ev, tc.want)
		}
	}
}

func TestDecodeChatTimestamp(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"new_chat_message","user_id":"5","message":"hi","timestamp":"2024-03-01T10:20:30.123456"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg := ev.(core.ChatReceived)
	if msg.From != "5" || msg.Text != "hi" {
		t.Fatalf("chat = %+v", msg)
	}
	if msg.At.Year() != 2024 || msg.At.Hour() != 10 || msg.At.Nanosecond() != 123456000 {
		t.Fatalf("timestamp = %v", msg.At)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"user_id":"5"}`,
		`{"type":"user_left"}`,
		`{"type":"user_audio_changed","user_id":"5"}`,
		`{"type":"offer","offer":{"type":"offer","sdp":"` + jsonSDP + `"}}`,
		`{"type":"offer","from":"a","offer":{"type":"offer","sdp":"garbage"}}`,
		`{"type":"offer","from":"a","offer":{"type":"answer","sdp":"` + jsonSDP + `"}}`,
		`{"type":"answer","from":"a"}`,
		`{"type":"ice_candidate","from":"a"}`,
		`{"type":"room_info","participants":[{"username":"ghost"}]}`,
		`{"type":"user_left","user_id":"` + strings.Repeat("a", domain.MaxUserIDLen+1) + `"}`,
	} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s) = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestDecodeIgnoresUnknownTypes(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"room_created","room":{"id":1}}`))
	if ev != nil || err != nil {
		t.Fatalf("Decode = %#v, %v", ev, err)
	}
}
