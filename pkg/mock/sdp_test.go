package mock_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/media"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/mock"
)

func TestOffer(t *testing.T) {
	offer, err := mock.Endpoint{Name: "alice", Host: "127.0.0.1", Port: 4000, PTime: 30}.Offer()
	require.NoError(t, err)
	require.Equal(t, "offer", offer.Type)

	ptime, err := media.PacketTime(offer.SDP)
	require.NoError(t, err)
	require.EqualValues(t, 30, ptime)

	codecs, err := media.AudioCodecs(offer.SDP)
	require.NoError(t, err)
	require.Len(t, codecs, 3)
	require.Equal(t, 0, codecs[0].Payload)
	require.Equal(t, 101, codecs[2].Payload)
}
