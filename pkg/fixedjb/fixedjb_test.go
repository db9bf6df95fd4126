package fixedjb_test

import (
	"testing"

	"github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/fixedjb"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/frame"
)

var logger *log.LogrusLogger

func init() {
	logrusNew := logrus.New()
	logrusNew.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		ForceColors:     true,
		ForceFormatting: true,
	}
	logrusNew.SetLevel(logrus.DebugLevel)
	logger = log.NewLogrusLogger(logrusNew, "fixedjb_test", nil)
}

func voice(ts int64) *frame.Frame {
	return frame.New(frame.Voice, ts, 20, []byte{0xd5})
}

func newJB() *fixedjb.FixedJB {
	return fixedjb.New(fixedjb.Config{}, fixedjb.WithLogger(logger))
}

func expect(t *testing.T, jb *fixedjb.FixedJB, now int64, want fixedjb.Return, ts int64) {
	t.Helper()
	f, r := jb.Get(now, 20)
	require.Equal(t, want, r, "get at %d", now)
	if want == fixedjb.OK || want == fixedjb.Drop {
		require.EqualValues(t, ts, f.Timestamp)
		f.Release()
	} else {
		require.Nil(t, f)
	}
}

func TestDefaults(t *testing.T) {
	jb := newJB()
	require.EqualValues(t, fixedjb.DefaultSize, jb.Info().Delay)
}

func TestConstantDelay(t *testing.T) {
	jb := newJB()
	require.Equal(t, fixedjb.OK, jb.PutFirst(voice(0), 0))
	require.Equal(t, fixedjb.OK, jb.Put(voice(20), 20))
	require.EqualValues(t, 200, jb.Next())

	expect(t, jb, 100, fixedjb.NoFrame, 0)
	expect(t, jb, 200, fixedjb.OK, 0)
	require.EqualValues(t, 220, jb.Next())
	expect(t, jb, 220, fixedjb.OK, 20)

	// nothing left: keep interpolating at the frame cadence
	expect(t, jb, 240, fixedjb.Interp, 0)
	require.EqualValues(t, 260, jb.Next())

	info := jb.Info()
	require.EqualValues(t, 2, info.FramesIn)
	require.EqualValues(t, 2, info.FramesOut)
	require.EqualValues(t, 1, info.FramesInterp)
}

func TestGapInterpolatedAndLateDropped(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)
	jb.Put(voice(60), 60)

	expect(t, jb, 200, fixedjb.OK, 0)
	expect(t, jb, 220, fixedjb.OK, 20)
	expect(t, jb, 240, fixedjb.Interp, 0)

	late := voice(40)
	require.Equal(t, fixedjb.Drop, jb.Put(late, 245))
	late.Release()

	expect(t, jb, 260, fixedjb.OK, 60)
}

func TestOverlapDropped(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)

	f := voice(10)
	require.Equal(t, fixedjb.Drop, jb.Put(f, 30))
	f.Release()
	require.Equal(t, 2, jb.Len())
}

func TestExpiredFramesDropped(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)

	expect(t, jb, 250, fixedjb.Drop, 0)
	expect(t, jb, 250, fixedjb.Drop, 20)
	expect(t, jb, 250, fixedjb.Interp, 0)
	require.EqualValues(t, 2, jb.Info().FramesDropped)
}

func TestTimestampJumpResyncs(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)
	require.Equal(t, fixedjb.OK, jb.Put(voice(5000), 40))
	require.EqualValues(t, 1, jb.Info().Resyncs)

	expect(t, jb, 200, fixedjb.OK, 0)
	expect(t, jb, 220, fixedjb.OK, 20)
	expect(t, jb, 240, fixedjb.OK, 5000)
}

func TestForcedResync(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)

	jb.SetForceResync()
	require.Equal(t, fixedjb.OK, jb.Put(voice(30), 25))

	expect(t, jb, 200, fixedjb.OK, 0)
	expect(t, jb, 220, fixedjb.OK, 20)
	expect(t, jb, 240, fixedjb.OK, 30)
}

func TestRemoveAndDestroy(t *testing.T) {
	jb := newJB()
	jb.PutFirst(voice(0), 0)
	jb.Put(voice(20), 20)
	jb.Put(voice(40), 40)

	f, r := jb.Remove()
	require.Equal(t, fixedjb.OK, r)
	require.EqualValues(t, 0, f.Timestamp)
	f.Release()

	jb.Destroy()
	require.Zero(t, jb.Len())
	_, r = jb.Remove()
	require.Equal(t, fixedjb.NoFrame, r)
}
