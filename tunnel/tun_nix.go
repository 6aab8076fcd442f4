//go:build !windows

package tunnel

import (
	"fmt"
	"log"
	"net/netip"
	"os/exec"
	"runtime"

	"github.com/songgao/water"
)

// NixDevice backs Device with a tun/tap interface on Linux and Mac
type NixDevice struct {
	ifce *water.Interface
}

func OpenDevice(cfg *Config) (Device, error) {
	wc := water.Config{DeviceType: water.TUN}
	if cfg.DeviceMode == ModeTap {
		wc.DeviceType = water.TAP
	}
	if cfg.IfaceName != "" {
		wc.Name = cfg.IfaceName
	}

	ifce, err := water.New(wc)
	if err != nil {
		return nil, fmt.Errorf("error opening device %q: %w", cfg.IfaceName, err)
	}

	return &NixDevice{ifce: ifce}, nil
}

func (n *NixDevice) Read(b []byte) (int, error) {
	return n.ifce.Read(b)
}

func (n *NixDevice) Write(b []byte) (int, error) {
	return n.ifce.Write(b)
}

func (n *NixDevice) Name() string {
	return n.ifce.Name()
}

func (n *NixDevice) Close() error {
	return n.ifce.Close()
}

func (n *NixDevice) MTU() (int, error) {
	return DefaultMTU, nil
}

func (n *NixDevice) ConfigureAddress(addr netip.Addr, prefix netip.Prefix) error {
	mtu := fmt.Sprintf("%d", DefaultMTU)
	switch runtime.GOOS {
	case "linux":
		if err := exec.Command("/sbin/ip", "link", "set", "dev", n.Name(), "mtu", mtu).Run(); err != nil {
			return fmt.Errorf("ip link error: %w", err)
		}
		cidr := fmt.Sprintf("%s/%d", addr.String(), prefix.Bits())
		if err := exec.Command("/sbin/ip", "addr", "add", cidr, "dev", n.Name()).Run(); err != nil {
			return fmt.Errorf("ip addr error: %w", err)
		}
		if err := exec.Command("/sbin/ip", "link", "set", "dev", n.Name(), "up").Run(); err != nil {
			return fmt.Errorf("ip link error: %w", err)
		}
	case "darwin":
		if err := exec.Command("/sbin/ifconfig", n.Name(), "mtu", mtu, addr.String(), addr.String(), "up").Run(); err != nil {
			return fmt.Errorf("ifconfig error %v: %w", n.Name(), err)
		}
		if err := exec.Command("/sbin/route", "-n", "add", "-net", prefix.String(), addr.String()).Run(); err != nil {
			return fmt.Errorf("route add error: %w", err)
		}
	default:
		return fmt.Errorf("no tun support for: %v", runtime.GOOS)
	}

	log.Printf("set interface address successful: %v %v", n.Name(), prefix.String())
	return nil
}
