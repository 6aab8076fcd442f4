package tunnel

import "net/netip"

// MaxFrameSize bounds a single frame read from the device and a single
// datagram payload on the wire. Must be >= the interface MTU.
const MaxFrameSize = 4096

const DefaultMTU = 1400

// Device is a virtual network interface. Reads return one whole frame,
// writes inject one whole frame. Frames are opaque bytes to the tunnel.
type Device interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)

	Name() string
	Close() error
	MTU() (int, error)

	ConfigureAddress(addr netip.Addr, prefix netip.Prefix) error
}
