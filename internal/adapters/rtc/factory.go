// Package rtc implements the peer connection primitive on pion/webrtc.
package rtc

import (
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/sdp/v3"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ICEServers []string
	// MediaSetup registers codecs on the engine. Nil registers pion's defaults.
	MediaSetup func(*webrtc.MediaEngine) error
	// ICE timeouts; zero keeps pion's defaults.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	IncludeLoopback     bool
	// Net replaces the host network stack, as vnet does in tests.
	Net transport.Net
	// LoggerFactory receives pion's logs; nil routes them to zerolog.
	LoggerFactory logging.LoggerFactory
}

func DefaultWebRTCConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		servers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	}
}

// Factory creates one pion PeerConnection per link, all sharing an API.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

var _ core.ConnFactory = (*Factory)(nil)

func NewFactory(c Config) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	setup := c.MediaSetup
	if setup == nil {
		setup = func(me *webrtc.MediaEngine) error { return me.RegisterDefaultCodecs() }
	}
	if err := setup(me); err != nil {
		return nil, fmt.Errorf("media engine: %w", err)
	}
	if err := me.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("audio level extension: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	if c.DisconnectedTimeout > 0 && c.FailedTimeout > 0 {
		se.SetICETimeouts(c.DisconnectedTimeout, c.FailedTimeout, 2*time.Second)
	}
	se.SetIncludeLoopbackCandidate(c.IncludeLoopback)
	if c.Net != nil {
		se.SetNet(c.Net)
	}
	se.LoggerFactory = c.LoggerFactory
	if se.LoggerFactory == nil {
		se.LoggerFactory = loggerFactory{}
	}

	log.Info().Str("module", "rtc").Strs("ice_servers", c.ICEServers).Msg("webrtc api ready")
	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
		cfg: DefaultWebRTCConfig(c.ICEServers),
	}, nil
}

// Create opens a PeerConnection carrying outgoing. An initiator starts
// negotiating at once; a responder waits for the remote offer.
func (f *Factory) Create(initiator bool, outgoing core.Stream, emit func(core.LinkEvent)) (core.Conn, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := newConnection(pc, initiator, emit)
	if err := c.attach(outgoing); err != nil {
		c.Destroy()
		return nil, err
	}
	c.start()
	return c, nil
}
