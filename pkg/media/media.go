package media

import "errors"

// DefaultPacketTime applies when a description carries no a=ptime.
const DefaultPacketTime = 20

var ErrNoAudio = errors.New("no audio media in description")

//Description sdp
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Codec is one audio format offered in a description.
type Codec struct {
	Payload   int
	Name      string
	ClockRate int
}
