package domain

type MediaFlag int

const (
	FlagAudio MediaFlag = iota
	FlagVideo
	FlagScreen
)

func (f MediaFlag) String() string {
	switch f {
	case FlagAudio:
		return "audio"
	case FlagVideo:
		return "video"
	case FlagScreen:
		return "screen"
	}
	return "unknown"
}

// Participant represents one member of the room, the local user included.
// No transport or lifecycle logic here.
type Participant struct {
	ID            UserID `json:"id"`
	DisplayName   string `json:"username"`
	Role          string `json:"role,omitempty"`
	AudioEnabled  bool   `json:"audio_enabled"`
	VideoEnabled  bool   `json:"video_enabled"`
	SharingScreen bool   `json:"sharing_screen"`
	Local         bool   `json:"is_you"`
}

// NewParticipant returns a remote participant with media on, which is
// what a peer announces by default until it says otherwise.
func NewParticipant(id UserID, name string) Participant {
	return Participant{ID: id, DisplayName: name, AudioEnabled: true, VideoEnabled: true}
}

func (p Participant) Flag(f MediaFlag) bool {
	switch f {
	case FlagAudio:
		return p.AudioEnabled
	case FlagVideo:
		return p.VideoEnabled
	case FlagScreen:
		return p.SharingScreen
	}
	return false
}

func (p *Participant) SetFlag(f MediaFlag, v bool) {
	switch f {
	case FlagAudio:
		p.AudioEnabled = v
	case FlagVideo:
		p.VideoEnabled = v
	case FlagScreen:
		p.SharingScreen = v
	}
}
