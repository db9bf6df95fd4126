// Package transport carries RTP packets between simulated endpoints over UDP.
package transport

import (
	"errors"
	"math/rand"
	"net"

	"github.com/ghettovoice/gosip/log"
	"github.com/tevino/abool"

	"github.com/cloudwebrtc/go-jitterbuf/pkg/utils"
)

const (
	DefaultPortMin = 30000
	DefaultPortMax = 65530

	maxPacketSize = 1500
)

var ErrPort = errors.New("no free port in range")

var logger log.Logger

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "Media", nil)
}

// Stream is a bound UDP socket handing every datagram it reads to onPacket.
// The packet slice is owned by the callback.
type Stream struct {
	conn     *net.UDPConn
	closed   *abool.AtomicBool
	onPacket func(pkt []byte, raddr net.Addr)
	laddr    *net.UDPAddr
	logger   log.Logger
}

func NewStream(bind string, portMin, portMax int, onPacket func(pkt []byte, raddr net.Addr)) (*Stream, error) {
	laddr := &net.UDPAddr{IP: net.ParseIP(bind), Port: 0}
	conn, err := ListenInPortRange(portMin, portMax, laddr)
	if err != nil {
		return nil, err
	}
	return &Stream{
		conn:     conn,
		closed:   abool.New(),
		onPacket: onPacket,
		laddr:    conn.LocalAddr().(*net.UDPAddr),
		logger:   logger.WithFields(log.Fields{"laddr": conn.LocalAddr().String()}),
	}, nil
}

func (s *Stream) LocalAddr() *net.UDPAddr {
	return s.laddr
}

func (s *Stream) Close() error {
	if !s.closed.SetToIf(false, true) {
		return nil
	}
	return s.conn.Close()
}

func (s *Stream) Send(pkt []byte, raddr *net.UDPAddr) (int, error) {
	s.logger.Tracef("send to %v, length %d", raddr, len(pkt))
	return s.conn.WriteToUDP(pkt, raddr)
}

// Read delivers packets until the stream is closed.
func (s *Stream) Read() {
	buf := make([]byte, maxPacketSize)
	for {
		n, raddr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if s.closed.IsSet() {
				s.logger.Debugf("stream closed")
			} else {
				s.logger.Warnf("read failed, stop now: %v", err)
			}
			return
		}
		s.logger.Tracef("read from %v, length %d", raddr, n)

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.onPacket(pkt, raddr)
	}
}

// ListenInPortRange binds laddr to a random free port in [portMin, portMax].
// A fixed port in laddr, or an empty range, binds directly.
func ListenInPortRange(portMin, portMax int, laddr *net.UDPAddr) (*net.UDPConn, error) {
	if laddr.Port != 0 || (portMin == 0 && portMax == 0) {
		return net.ListenUDP("udp", laddr)
	}
	lo, hi := portMin, portMax
	if lo == 0 {
		lo = 1
	}
	if hi == 0 {
		hi = 0xFFFF
	}
	if lo > hi {
		return nil, ErrPort
	}
	start := rand.Intn(hi-lo+1) + lo
	port := start
	for {
		addr := &net.UDPAddr{IP: laddr.IP, Port: port}
		conn, err := net.ListenUDP("udp", addr)
		if err == nil {
			return conn, nil
		}
		logger.Debugf("failed to listen %s: %v", addr, err)
		port++
		if port > hi {
			port = lo
		}
		if port == start {
			return nil, ErrPort
		}
	}
}
