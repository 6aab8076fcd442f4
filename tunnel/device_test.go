package tunnel

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"
)

// fakeDevice is an in-memory Device for exercising the relay without a
// kernel tun interface. Frames pushed into in are returned by Read;
// frames the session Writes land in out. Errors queued on readErrs or
// writeErrs are returned once, ahead of any pending frame.
type fakeDevice struct {
	name      string
	in        chan []byte
	out       chan []byte
	readErrs  chan error
	writeErrs chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeDevice(name string) *fakeDevice {
	return &fakeDevice{
		name:      name,
		in:        make(chan []byte, 16),
		out:       make(chan []byte, 16),
		readErrs:  make(chan error, 4),
		writeErrs: make(chan error, 4),
		done:      make(chan struct{}),
	}
}

func (d *fakeDevice) Read(b []byte) (int, error) {
	select {
	case err := <-d.readErrs:
		return 0, err
	default:
	}
	select {
	case err := <-d.readErrs:
		return 0, err
	case f := <-d.in:
		return copy(b, f), nil
	case <-d.done:
		return 0, net.ErrClosed
	}
}

func (d *fakeDevice) Write(b []byte) (int, error) {
	select {
	case err := <-d.writeErrs:
		return 0, err
	default:
	}
	frame := make([]byte, len(b))
	copy(frame, b)
	select {
	case d.out <- frame:
		return len(b), nil
	case <-d.done:
		return 0, net.ErrClosed
	}
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Close() error {
	d.closeOnce.Do(func() { close(d.done) })
	return nil
}

func (d *fakeDevice) MTU() (int, error) { return DefaultMTU, nil }

func (d *fakeDevice) ConfigureAddress(addr netip.Addr, prefix netip.Prefix) error {
	return nil
}

func newTestConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("error binding test conn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func localAddr(t *testing.T, conn *net.UDPConn) netip.AddrPort {
	t.Helper()
	addr, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("error parsing local addr: %v", err)
	}
	return addr
}

func recvFrame(t *testing.T, d *fakeDevice) []byte {
	t.Helper()
	select {
	case f := <-d.out:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a frame on the device")
		return nil
	}
}

func recvDatagram(t *testing.T, conn *net.UDPConn) ([]byte, netip.AddrPort) {
	t.Helper()
	buf := make([]byte, MaxFrameSize)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	n, src, err := conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		t.Fatalf("error receiving datagram: %v", err)
	}
	return buf[:n], src
}
