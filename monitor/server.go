// Package monitor exposes the running tunnel's counters over HTTP for
// operators: a health probe, a stats snapshot, and a websocket that
// streams snapshots while connected. It never mutates tunnel state.
package monitor

import (
	"net/http"
	"time"

	"udptunnel/tunnel"
)

type Server struct {
	role  string
	iface string
	stats *tunnel.Stats
}

// NewServer creates the HTTP server serving the monitor surface on addr.
func NewServer(addr string, role string, iface string, stats *tunnel.Stats) *http.Server {
	srv := &Server{
		role:  role,
		iface: iface,
		stats: stats,
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
