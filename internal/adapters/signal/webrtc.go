package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/sdp/v3"
)

// description mirrors RTCSessionDescriptionInit.
type description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// candidate accepts both the bare candidate init and the
// {"type":"candidate","candidate":{...}} shape some peers forward.
type candidate struct {
	core.IceCandidate
}

func (c *candidate) UnmarshalJSON(b []byte) error {
	var nested struct {
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(b, &nested); err != nil {
		return err
	}
	if len(nested.Candidate) > 0 && nested.Candidate[0] == '{' {
		return json.Unmarshal(nested.Candidate, &c.IceCandidate)
	}
	return json.Unmarshal(b, &c.IceCandidate)
}

func (c *Client) SendSignal(to, from domain.UserID, sig core.Signal) error {
	m := Message{Type: sig.Kind().String(), To: wireID(to), From: wireID(from)}
	switch s := sig.(type) {
	case core.Offer:
		m.Offer = &description{Type: "offer", SDP: s.SDP}
	case core.Answer:
		m.Answer = &description{Type: "answer", SDP: s.SDP}
	case core.IceCandidate:
		m.Candidate = &candidate{IceCandidate: s}
	default:
		return fmt.Errorf("send signal: unsupported %T", sig)
	}
	return c.sendMessage(m)
}

func decodeSignal(m Message) (core.GatewayEvent, error) {
	from, err := m.From.user()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type, err)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: %s without from", ErrMalformed, m.Type)
	}
	to, err := m.To.user()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type, err)
	}

	var sig core.Signal
	switch m.Type {
	case "offer":
		if err := validDescription(m.Offer, "offer"); err != nil {
			return nil, err
		}
		sig = core.Offer{SDP: m.Offer.SDP}
	case "answer":
		if err := validDescription(m.Answer, "answer"); err != nil {
			return nil, err
		}
		sig = core.Answer{SDP: m.Answer.SDP}
	case "ice_candidate":
		if m.Candidate == nil {
			return nil, fmt.Errorf("%w: ice_candidate without candidate", ErrMalformed)
		}
		sig = m.Candidate.IceCandidate
	}
	return core.SignalReceived{From: from, To: to, Signal: sig}, nil
}

// validDescription rejects payloads that are not parseable SDP.
func validDescription(d *description, want string) error {
	if d == nil || d.SDP == "" {
		return fmt.Errorf("%w: %s without sdp", ErrMalformed, want)
	}
	if d.Type != "" && d.Type != want {
		return fmt.Errorf("%w: %s carries a %q description", ErrMalformed, want, d.Type)
	}
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(d.SDP)); err != nil {
		return fmt.Errorf("%w: %s sdp: %v", ErrMalformed, want, err)
	}
	return nil
}
