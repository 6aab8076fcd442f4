package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"udptunnel/monitor"
	"udptunnel/tunnel"
)

type options struct {
	monitorAddr string
	ifaceCIDR   netip.Prefix // zero value: configure the interface externally
}

func usage(w io.Writer, progname string) {
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "%s -i <ifacename> [-s|-c <serverIP>] [-p <port>] [-u|-a] [-t <cidr>] [-m <addr>] [-d]\n", progname)
	fmt.Fprintf(w, "%s -h\n", progname)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "-i <ifacename>: Name of interface to use (mandatory)\n")
	fmt.Fprintf(w, "-s|-c <serverIP>: run in server mode (-s), or specify server address (-c <serverIP>) (mandatory)\n")
	fmt.Fprintf(w, "-p <port>: port to listen on (if run in server mode) or to connect to (in client mode), default %d\n", tunnel.DefaultPort)
	fmt.Fprintf(w, "-u|-a: use TUN (-u, default) or TAP (-a)\n")
	fmt.Fprintf(w, "-t <cidr>: assign this address to the interface (otherwise configure it externally)\n")
	fmt.Fprintf(w, "-m <addr>: serve tunnel health and stats over HTTP on this address\n")
	fmt.Fprintf(w, "-d: outputs debug information while running\n")
	fmt.Fprintf(w, "-h: prints this help text\n")
}

func parseArgs(progname string, args []string) (*tunnel.Config, *options, error) {
	cfg := tunnel.DefaultConfig()
	opts := &options{}

	fs := flag.NewFlagSet(progname, flag.ContinueOnError)
	fs.Usage = func() { usage(fs.Output(), progname) }

	iface := fs.String("i", "", "interface name")
	server := fs.Bool("s", false, "run in server mode")
	client := fs.String("c", "", "server address to connect to")
	port := fs.Int("p", cfg.Port, "udp port")
	tunMode := fs.Bool("u", false, "use a TUN device")
	tapMode := fs.Bool("a", false, "use a TAP device")
	debug := fs.Bool("d", false, "debug output")
	monitorAddr := fs.String("m", "", "monitor listen address")
	cidr := fs.String("t", "", "interface address in CIDR form")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(fs.Output(), "too many options\n")
		fs.Usage()
		return nil, nil, errors.New("too many options")
	}

	fail := func(msg string) (*tunnel.Config, *options, error) {
		fmt.Fprintf(fs.Output(), "%s\n", msg)
		fs.Usage()
		return nil, nil, errors.New(msg)
	}

	if *server && *client != "" {
		return fail("must specify either server or client mode, not both")
	}
	if *tunMode && *tapMode {
		return fail("must specify either TUN or TAP, not both")
	}

	cfg.IfaceName = *iface
	cfg.Port = *port
	cfg.Debug = *debug
	if *tapMode {
		cfg.DeviceMode = tunnel.ModeTap
	}
	if *server {
		cfg.Role = tunnel.RoleServer
	}
	if *client != "" {
		cfg.Role = tunnel.RoleClient
		addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(*client, strconv.Itoa(cfg.Port)))
		if err != nil {
			return fail(fmt.Sprintf("cannot resolve server address %q: %s", *client, err))
		}
		ap := addr.AddrPort()
		cfg.ServerAddr = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}

	if *cidr != "" {
		prefix, err := netip.ParsePrefix(*cidr)
		if err != nil {
			return fail(fmt.Sprintf("invalid interface address %q: %s", *cidr, err))
		}
		opts.ifaceCIDR = prefix
	}
	opts.monitorAddr = *monitorAddr

	if err := cfg.Validate(); err != nil {
		return fail(err.Error())
	}

	return cfg, opts, nil
}

func main() {
	cfg, opts, err := parseArgs(os.Args[0], os.Args[1:])
	if err != nil {
		os.Exit(1)
	}

	s, err := tunnel.Open(cfg)
	if err != nil {
		log.Fatalf("setup error: %s", err)
	}
	defer s.Close()

	if opts.ifaceCIDR.IsValid() {
		if err := s.Device().ConfigureAddress(opts.ifaceCIDR.Addr(), opts.ifaceCIDR.Masked()); err != nil {
			log.Fatalf("error configuring %s: %s", s.Device().Name(), err)
		}
	}

	if err := s.DiscoverPublicAddr(); err != nil {
		log.Printf("public address discovery failed: %s", err)
	}

	if err := s.Handshake(); err != nil {
		log.Fatalf("handshake error: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var monitorSrv *http.Server
	if opts.monitorAddr != "" {
		monitorSrv = monitor.NewServer(opts.monitorAddr, cfg.Role.String(), s.Device().Name(), s.Stats())
		go func() {
			log.Printf("monitor listening on %s", opts.monitorAddr)
			if err := monitorSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("monitor server error: %s", err)
			}
		}()
	}

	if err := s.Relay(ctx); err != nil {
		log.Fatalf("relay error: %s", err)
	}

	if monitorSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := monitorSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("monitor forced to shutdown with error: %v", err)
		}
	}

	log.Println("tunnel exiting")
}
