package tunnel

import (
	"errors"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// HandshakeToken is the greeting both ends exchange before relaying.
// It must match byte for byte on both sides, trailing space included.
const HandshakeToken = "Wazaaaaaaaaaaahhhh !"

const (
	DefaultPort       = 5588
	DefaultStunServer = "stun.l.google.com:19302"
)

type Role int

const (
	RoleUnspecified Role = iota
	RoleClient
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	}
	return "unspecified"
}

type DeviceMode int

const (
	// ModeTun carries IP packets, ModeTap carries ethernet frames.
	ModeTun DeviceMode = iota
	ModeTap
)

type PeerPolicy int

const (
	// PolicyRoaming follows the peer: every received datagram's source
	// address becomes the new destination for outbound frames.
	PolicyRoaming PeerPolicy = iota
	// PolicyFixed keeps the handshake-time peer address for the whole run.
	PolicyFixed
)

// Config holds everything the session needs, assembled once at startup.
// There is no other mutable process-wide state.
type Config struct {
	Role       Role
	IfaceName  string
	ServerAddr netip.AddrPort // client only: where the server listens
	Port       int
	DeviceMode DeviceMode
	PeerPolicy PeerPolicy
	Debug      bool
	Token      string
	StunServer string // empty disables public address discovery
}

// DefaultConfig returns a config with built-in defaults, overridden by the
// UDPTUN_PORT, UDPTUN_PEER_POLICY and UDPTUN_STUN_SERVER environment
// variables when present. Flag values are applied on top by the caller.
func DefaultConfig() *Config {
	cfg := &Config{
		Port:       DefaultPort,
		DeviceMode: ModeTun,
		PeerPolicy: PolicyRoaming,
		Token:      HandshakeToken,
		StunServer: DefaultStunServer,
	}

	if v := os.Getenv("UDPTUN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("UDPTUN_PEER_POLICY"); v != "" {
		switch strings.ToLower(v) {
		case "fixed":
			cfg.PeerPolicy = PolicyFixed
		case "roaming":
			cfg.PeerPolicy = PolicyRoaming
		}
	}
	if v, ok := os.LookupEnv("UDPTUN_STUN_SERVER"); ok {
		cfg.StunServer = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.IfaceName == "" {
		return errors.New("interface name is required")
	}
	if c.Role == RoleUnspecified {
		return errors.New("must run as either server or client")
	}
	if c.Role == RoleClient && !c.ServerAddr.IsValid() {
		return errors.New("client mode requires a server address")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.Token == "" {
		return errors.New("handshake token must not be empty")
	}
	return nil
}
