// Package mock builds the session descriptions the simulator negotiates
// between its fake endpoints.
package mock

import (
	"time"

	"github.com/pixelbender/go-sdp/sdp"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/media"
)

// Endpoint describes one simulated phone.
type Endpoint struct {
	Name  string
	Host  string
	Port  int
	PTime int64
}

// Offer returns the audio offer of e: G.711 plus telephone-event, sent every
// e.PTime milliseconds.
func (e Endpoint) Offer() (*media.Description, error) {
	id := time.Now().UnixNano() / 1e6
	sess := &sdp.Session{
		Origin: &sdp.Origin{
			Username:       e.Name,
			Address:        e.Host,
			SessionID:      id,
			SessionVersion: id,
		},
		Name:   "jbsim",
		Timing: &sdp.Timing{Start: time.Time{}, Stop: time.Time{}},
		Connection: &sdp.Connection{
			Address: e.Host,
		},
		Media: []*sdp.Media{
			{
				Connection: []*sdp.Connection{{Address: e.Host}},
				Mode:       sdp.SendRecv,
				Type:       "audio",
				Port:       e.Port,
				Proto:      "RTP/AVP",
				Format: []*sdp.Format{
					{Payload: 0, Name: "PCMU", ClockRate: 8000},
					{Payload: 8, Name: "PCMA", ClockRate: 8000},
					{Payload: 101, Name: "telephone-event", ClockRate: 8000, Params: []string{"0-16"}},
				},
			},
		},
	}

	desc := sess.String()
	if e.PTime > 0 {
		var err error
		if desc, err = media.WithPacketTime(desc, e.PTime); err != nil {
			return nil, err
		}
	}
	return &media.Description{Type: "offer", SDP: desc}, nil
}
