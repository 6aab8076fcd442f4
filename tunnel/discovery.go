package tunnel

import (
	"fmt"
	"log"
	"net"
	"net/netip"

	"github.com/pion/stun/v2"
)

// DiscoverPublicAddr sends a STUN binding request from the tunnel socket
// so the operator can see the address this end is reachable at from
// outside a NAT. Best-effort: failures are logged by the caller, never
// fatal, and the response is picked up by whichever receive loop is
// active when it arrives.
func (s *Session) DiscoverPublicAddr() error {
	if s.cfg.StunServer == "" {
		return nil
	}

	stunAddr, err := net.ResolveUDPAddr("udp4", s.cfg.StunServer)
	if err != nil {
		return fmt.Errorf("error resolving stun server %q: %w", s.cfg.StunServer, err)
	}

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	if _, err := s.conn.WriteTo(msg.Raw, stunAddr); err != nil {
		return fmt.Errorf("error sending stun request: %w", err)
	}
	return nil
}

// handleStunResponse consumes a STUN datagram that arrived on the tunnel
// socket. It is never written to the device.
func (s *Session) handleStunResponse(b []byte) {
	msg := &stun.Message{
		Raw: append([]byte{}, b...),
	}
	if err := msg.Decode(); err != nil {
		log.Printf("error decoding stun message: %v", err)
		return
	}

	if msg.Type != stun.BindingSuccess {
		log.Printf("invalid stun response type: %s", msg.Type.String())
		return
	}

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(msg); err != nil {
		log.Printf("error getting xormappedaddr from msg: %v", err)
		return
	}

	public, err := netip.ParseAddrPort(xor.String())
	if err != nil {
		log.Printf("error parsing stun xor-mapped address: %v", err)
		return
	}

	s.stats.setPublicAddr(public)
	log.Printf("public address: %s", public)
}
