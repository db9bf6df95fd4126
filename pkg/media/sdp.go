package media

import (
	"fmt"
	"strconv"
	"strings"

	gosdp "github.com/pixelbender/go-sdp/sdp"
	"github.com/pion/sdp/v3"
)

const ptimeAttr = "ptime"

// PacketTime returns the packetization time of the first audio stream in
// desc in milliseconds. A media level a=ptime wins over a session level one;
// without either DefaultPacketTime is returned.
func PacketTime(desc string) (int64, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(desc)); err != nil {
		return 0, fmt.Errorf("parse sdp: %w", err)
	}
	md := firstAudio(&sd)
	if md == nil {
		return 0, ErrNoAudio
	}
	value, ok := md.Attribute(ptimeAttr)
	if !ok {
		value, ok = sd.Attribute(ptimeAttr)
	}
	if !ok {
		return DefaultPacketTime, nil
	}
	ptime, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || ptime <= 0 {
		return 0, fmt.Errorf("bad a=ptime:%s", value)
	}
	return ptime, nil
}

// WithPacketTime returns desc with a=ptime set on every audio stream.
func WithPacketTime(desc string, ptime int64) (string, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal([]byte(desc)); err != nil {
		return "", fmt.Errorf("parse sdp: %w", err)
	}
	found := false
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		found = true
		attrs := md.Attributes[:0]
		for _, a := range md.Attributes {
			if a.Key != ptimeAttr {
				attrs = append(attrs, a)
			}
		}
		md.Attributes = attrs
		md.WithValueAttribute(ptimeAttr, strconv.FormatInt(ptime, 10))
	}
	if !found {
		return "", ErrNoAudio
	}
	out, err := sd.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode sdp: %w", err)
	}
	return string(out), nil
}

func firstAudio(sd *sdp.SessionDescription) *sdp.MediaDescription {
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			return md
		}
	}
	return nil
}

// AudioCodecs lists the formats of the first audio stream in desc.
func AudioCodecs(desc string) ([]Codec, error) {
	sess, err := gosdp.Parse([]byte(desc))
	if err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}
	for _, m := range sess.Media {
		if m.Type != "audio" {
			continue
		}
		codecs := make([]Codec, 0, len(m.Format))
		for _, f := range m.Format {
			codecs = append(codecs, Codec{Payload: int(f.Payload), Name: f.Name, ClockRate: int(f.ClockRate)})
		}
		return codecs, nil
	}
	return nil, ErrNoAudio
}
