package tunnel

import (
	"net/netip"
	"sync"
	"sync/atomic"
)

// Stats counts relayed traffic per direction and remembers the addresses
// the monitor wants to report. Counters are updated by the relay goroutine
// and read concurrently by the monitor.
type Stats struct {
	deviceToSocketPackets atomic.Uint64
	deviceToSocketBytes   atomic.Uint64
	socketToDevicePackets atomic.Uint64
	socketToDeviceBytes   atomic.Uint64

	mu         sync.Mutex
	peerAddr   netip.AddrPort
	publicAddr netip.AddrPort
}

type Snapshot struct {
	PeerAddr              string `json:"peer_addr"`
	PublicAddr            string `json:"public_addr,omitempty"`
	DeviceToSocketPackets uint64 `json:"device_to_socket_packets"`
	DeviceToSocketBytes   uint64 `json:"device_to_socket_bytes"`
	SocketToDevicePackets uint64 `json:"socket_to_device_packets"`
	SocketToDeviceBytes   uint64 `json:"socket_to_device_bytes"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) addDeviceToSocket(n int) {
	s.deviceToSocketPackets.Add(1)
	s.deviceToSocketBytes.Add(uint64(n))
}

func (s *Stats) addSocketToDevice(n int) {
	s.socketToDevicePackets.Add(1)
	s.socketToDeviceBytes.Add(uint64(n))
}

func (s *Stats) setPeerAddr(addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerAddr = addr
}

func (s *Stats) setPublicAddr(addr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicAddr = addr
}

// PublicAddr returns the STUN-discovered public address, if any.
func (s *Stats) PublicAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicAddr
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	peer := s.peerAddr
	public := s.publicAddr
	s.mu.Unlock()

	snap := Snapshot{
		DeviceToSocketPackets: s.deviceToSocketPackets.Load(),
		DeviceToSocketBytes:   s.deviceToSocketBytes.Load(),
		SocketToDevicePackets: s.socketToDevicePackets.Load(),
		SocketToDeviceBytes:   s.socketToDeviceBytes.Load(),
	}
	if peer.IsValid() {
		snap.PeerAddr = peer.String()
	}
	if public.IsValid() {
		snap.PublicAddr = public.String()
	}
	return snap
}
