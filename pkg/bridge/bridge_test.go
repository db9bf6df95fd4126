package bridge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/abstractjb"
	"github.com/cloudwebrtc/go-jitterbuf/pkg/bridge"
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
	logger = log.NewLogrusLogger(logrusNew, "bridge_test", nil)
}

type phone struct {
	name  string
	props abstractjb.Properties

	mu    sync.Mutex
	heard []int64
}

func (p *phone) Name() string {
	return p.name
}

func (p *phone) Properties() abstractjb.Properties {
	return p.props
}

func (p *phone) Write(f *frame.Frame) error {
	if f.Kind != frame.Voice || f.Interpolated {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heard = append(p.heard, f.Timestamp)
	return nil
}

func (p *phone) Heard() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.heard...)
}

func newBridge(t *testing.T, opts ...bridge.Option) (*bridge.Bridge, *phone) {
	t.Helper()
	conf := abstractjb.DefaultConfig()
	conf.Enabled = true
	conf.Impl = "fixed"
	conf.MaxSize = 40

	alice := &phone{name: "SIP/alice", props: abstractjb.Properties{CreatesJitter: true}}
	bob := &phone{name: "Local/bob"}
	a := abstractjb.NewLeg(alice, conf, abstractjb.WithLogger(logger))
	b := abstractjb.NewLeg(bob, conf, abstractjb.WithLogger(logger))
	opts = append([]bridge.Option{bridge.WithLogger(logger), bridge.WithMaxWait(50)}, opts...)
	return bridge.New(a, b, opts...), bob
}

func TestBridgeDelivers(t *testing.T) {
	var stats abstractjb.Stats
	br, bob := newBridge(t, bridge.WithOnTeardown(func(a, b *abstractjb.Leg) {
		stats, _ = b.Stats()
	}))
	require.Equal(t, bridge.Idle, br.State())

	errc := make(chan error, 1)
	go func() {
		errc <- br.Run(context.Background())
	}()
	require.Eventually(t, br.IsRunning, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, br.Run(context.Background()), bridge.ErrRunning)

	require.NoError(t, br.Feed(bridge.A, frame.New(frame.Voice, 0, 20, nil)))
	require.NoError(t, br.Feed(bridge.A, frame.New(frame.Voice, 20, 20, nil)))
	require.Eventually(t, func() bool {
		return len(bob.Heard()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []int64{0, 20}, bob.Heard())
	require.Equal(t, bridge.Bridged, br.State())

	br.Terminate()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	require.Equal(t, bridge.Terminated, br.State())
	require.False(t, br.Leg(bridge.B).Created())
	require.EqualValues(t, 2, stats.FramesIn)
	require.EqualValues(t, 2, stats.FramesOut)
	require.ErrorIs(t, br.Feed(bridge.A, frame.New(frame.Voice, 40, 20, nil)), bridge.ErrTerminated)
}

func TestBridgeCancel(t *testing.T) {
	br, _ := newBridge(t)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- br.Run(ctx)
	}()
	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	require.Equal(t, bridge.Terminated, br.State())
	require.ErrorIs(t, br.Run(context.Background()), bridge.ErrTerminated)
}

func TestBridgeBacklog(t *testing.T) {
	conf := abstractjb.DefaultConfig()
	a := abstractjb.NewLeg(&phone{name: "a"}, conf)
	b := abstractjb.NewLeg(&phone{name: "b"}, conf)
	br := bridge.New(a, b, bridge.WithBacklog(1))

	require.NoError(t, br.Feed(bridge.A, frame.New(frame.Voice, 0, 20, nil)))
	require.ErrorIs(t, br.Feed(bridge.A, frame.New(frame.Voice, 20, 20, nil)), bridge.ErrBacklog)
}

func TestFeedDuringTeardown(t *testing.T) {
	for round := 0; round < 20; round++ {
		conf := abstractjb.DefaultConfig()
		a := abstractjb.NewLeg(&phone{name: "a"}, conf, abstractjb.WithLogger(logger))
		b := abstractjb.NewLeg(&phone{name: "b"}, conf, abstractjb.WithLogger(logger))
		br := bridge.New(a, b, bridge.WithLogger(logger))

		errc := make(chan error, 1)
		go func() {
			errc <- br.Run(context.Background())
		}()
		require.Eventually(t, br.IsRunning, time.Second, time.Millisecond)

		var (
			mu  sync.Mutex
			fed []*frame.Frame
			wg  sync.WaitGroup
		)
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := int64(0); i < 50; i++ {
					f := &frame.Frame{Kind: frame.Voice, Timestamp: i * 20, Duration: 20}
					if br.Feed(bridge.A, f) == nil {
						mu.Lock()
						fed = append(fed, f)
						mu.Unlock()
					}
				}
			}()
		}
		br.Terminate()
		wg.Wait()
		if err := <-errc; err != nil {
			require.ErrorIs(t, err, bridge.ErrTerminated)
		}

		// every accepted frame was delivered or drained, both release it
		for _, f := range fed {
			require.Zero(t, f.Duration)
		}
	}
}
