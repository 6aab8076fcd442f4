package tunnel

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/pion/stun/v2"
)

var ErrTokenMismatch = errors.New("handshake reply does not match token")

// tokenFrame is the exact greeting datagram: the token bytes plus a
// terminating NUL. Both ends compare the whole datagram, length included.
func tokenFrame(token string) []byte {
	b := make([]byte, len(token)+1)
	copy(b, token)
	return b
}

// Handshake establishes the peer address. The client sends the greeting to
// the configured server address and waits for the echo; the server waits
// for a matching greeting from anywhere and echoes it back to the sender.
// Any socket error here is fatal to the caller; there is no retry.
func (s *Session) Handshake() error {
	switch s.cfg.Role {
	case RoleClient:
		return s.handshakeClient()
	case RoleServer:
		return s.handshakeServer()
	}
	return errors.New("handshake requires a client or server role")
}

func (s *Session) handshakeClient() error {
	greeting := tokenFrame(s.cfg.Token)
	if _, err := s.conn.WriteToUDPAddrPort(greeting, s.cfg.ServerAddr); err != nil {
		return fmt.Errorf("error sending greeting: %w", err)
	}

	buf := make([]byte, MaxFrameSize)
	for {
		n, src, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return fmt.Errorf("error receiving greeting reply: %w", err)
		}

		// A pending STUN response is not the reply
		if stun.IsMessage(buf[:n]) {
			s.handleStunResponse(buf[:n])
			continue
		}

		if !bytes.Equal(buf[:n], greeting) {
			return fmt.Errorf("%w (from %s)", ErrTokenMismatch, src)
		}

		// The configured server address stays authoritative, not the
		// reply's observed source
		s.peerAddr = s.cfg.ServerAddr
		s.stats.setPeerAddr(s.peerAddr)
		log.Printf("connection with %s established", s.peerAddr)
		return nil
	}
}

func (s *Session) handshakeServer() error {
	greeting := tokenFrame(s.cfg.Token)
	buf := make([]byte, MaxFrameSize)
	for {
		n, src, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return fmt.Errorf("error receiving greeting: %w", err)
		}

		if stun.IsMessage(buf[:n]) {
			s.handleStunResponse(buf[:n])
			continue
		}

		if !bytes.Equal(buf[:n], greeting) {
			log.Printf("bad greeting from %s - ignoring", src)
			continue
		}

		if _, err := s.conn.WriteToUDPAddrPort(greeting, src); err != nil {
			return fmt.Errorf("error sending greeting reply: %w", err)
		}

		s.peerAddr = src
		s.stats.setPeerAddr(s.peerAddr)
		log.Printf("client connected from %s", src)
		return nil
	}
}
