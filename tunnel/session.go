package tunnel

import (
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
)

// Session owns the device and the socket for the lifetime of the process.
// peerAddr is written by the handshake and, under the roaming policy, by
// the relay goroutine; nothing else touches it once the relay is running.
type Session struct {
	cfg   *Config
	dev   Device
	conn  *net.UDPConn
	stats *Stats

	peerAddr netip.AddrPort

	closeOnce sync.Once
	closeErr  error
}

type SessionOpts struct {
	Config *Config
	Device Device
	Conn   *net.UDPConn
}

func NewSession(opts *SessionOpts) *Session {
	return &Session{
		cfg:   opts.Config,
		dev:   opts.Device,
		conn:  opts.Conn,
		stats: NewStats(),
	}
}

// Open acquires the device and the socket and builds a session around
// them. On partial failure everything already acquired is released.
func Open(cfg *Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	devUp := false

	dev, err := OpenDevice(cfg)
	if err != nil {
		return nil, err
	}
	devUp = true

	fail := func() {
		if devUp {
			dev.Close()
		}
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		fail()
		return nil, fmt.Errorf("error binding udp port %d: %w", cfg.Port, err)
	}

	log.Printf("successfully connected to interface %s", dev.Name())

	return NewSession(&SessionOpts{Config: cfg, Device: dev, Conn: conn}), nil
}

// PeerAddr returns the current authoritative peer address. Only meaningful
// before the relay starts or after it has stopped.
func (s *Session) PeerAddr() netip.AddrPort {
	return s.peerAddr
}

func (s *Session) Stats() *Stats {
	return s.stats
}

func (s *Session) Device() Device {
	return s.dev
}

// Close releases both handles. Safe to call more than once and from a
// goroutine other than the relay.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var devErr error
		if s.dev != nil {
			devErr = s.dev.Close()
		}
		connErr := s.conn.Close()
		if devErr != nil {
			s.closeErr = devErr
			return
		}
		s.closeErr = connErr
	})
	return s.closeErr
}
