package tunnel

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"github.com/pion/stun/v2"
	"golang.org/x/net/ipv4"
)

// event is one unit of work for the relay goroutine: either a frame read
// from the device or a datagram received on the socket.
type event struct {
	data       []byte
	src        netip.AddrPort
	fromDevice bool
}

// Relay moves frames between the device and the socket until ctx is
// cancelled or both handles are closed. One reader goroutine per handle
// feeds an unbuffered channel; the relay goroutine is the single owner of
// peerAddr and processes one event per wakeup. Steady-state I/O errors are
// logged and the loop keeps going.
func (s *Session) Relay(ctx context.Context) error {
	if !s.peerAddr.IsValid() {
		return errors.New("relay requires a completed handshake")
	}

	// Unblock both readers when the context goes away
	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()

	events := make(chan event)
	var wg sync.WaitGroup
	wg.Add(2)
	go s.deviceReadLoop(ctx, events, &wg)
	go s.socketReadLoop(ctx, events, &wg)
	go func() {
		wg.Wait()
		close(events)
	}()

	for ev := range events {
		if ev.fromDevice {
			s.relayToSocket(ev.data)
		} else {
			s.relayToDevice(ev.data, ev.src)
		}
	}

	return nil
}

func (s *Session) deviceReadLoop(ctx context.Context, events chan<- event, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := s.dev.Read(buf)
		if err != nil {
			// A signal interrupting the read is not an error
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, fs.ErrClosed) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Printf("error reading from %s: %s", s.dev.Name(), err)
			continue
		}
		if n == 0 {
			continue
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case events <- event{data: frame, fromDevice: true}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) socketReadLoop(ctx context.Context, events chan<- event, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, MaxFrameSize)
	for {
		n, src, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			log.Printf("error reading from udp conn: %s", err)
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		select {
		case events <- event{data: packet, src: src}:
		case <-ctx.Done():
			return
		}
	}
}

// relayToSocket sends one device frame as one datagram of exactly the
// frame's length to the current peer.
func (s *Session) relayToSocket(frame []byte) {
	if _, err := s.conn.WriteToUDPAddrPort(frame, s.peerAddr); err != nil {
		log.Printf("error sending to %s: %s", s.peerAddr, err)
		return
	}
	s.stats.addDeviceToSocket(len(frame))
	if s.cfg.Debug {
		s.logFrame("device -> socket", frame)
	}
}

// relayToDevice writes one datagram payload as one frame. Under the
// roaming policy the datagram's source becomes the new peer address first.
func (s *Session) relayToDevice(packet []byte, src netip.AddrPort) {
	if stun.IsMessage(packet) {
		s.handleStunResponse(packet)
		return
	}

	if s.cfg.PeerPolicy == PolicyRoaming && src != s.peerAddr {
		if s.cfg.Debug {
			log.Printf("peer moved from %s to %s", s.peerAddr, src)
		}
		s.peerAddr = src
		s.stats.setPeerAddr(src)
	}

	for {
		if _, err := s.dev.Write(packet); err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			log.Printf("error writing to %s: %s", s.dev.Name(), err)
			return
		}
		break
	}
	s.stats.addSocketToDevice(len(packet))
	if s.cfg.Debug {
		s.logFrame("socket -> device", packet)
	}
}

func (s *Session) logFrame(dir string, b []byte) {
	if h, err := ipv4.ParseHeader(b); err == nil && h.Version == 4 {
		log.Printf("%s %s: %d bytes %s -> %s", s.dev.Name(), dir, len(b), h.Src, h.Dst)
		return
	}
	log.Printf("%s %s: %d bytes", s.dev.Name(), dir, len(b))
}
