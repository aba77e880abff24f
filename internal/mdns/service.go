// Package mdns advertises a local-mode zine server on the LAN so devices can
// find it without configuration.
package mdns

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the mDNS service type for zine servers.
	ServiceType = "_zine._tcp"

	// APIVersion is the API version advertised in TXT records.
	APIVersion = "v1"
)

// Advertisement describes the server in TXT records.
type Advertisement struct {
	Name    string
	Version string
	// AuthMode tells clients whether to sign in locally or with Firebase.
	AuthMode string
	Port     int
}

// TXT returns the TXT records for a.
func (a Advertisement) TXT() []string {
	txt := []string{
		"api=" + APIVersion,
		"version=" + a.Version,
		"auth=" + a.AuthMode,
	}
	if a.Name != "" {
		txt = append(txt, "name="+a.Name)
	}
	return txt
}

// Service manages the mDNS responder.
type Service struct {
	server *mdns.Server
	logger *slog.Logger
	mu     sync.Mutex
}

// NewService creates a stopped service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Start begins advertising. Calling Start again replaces the advertisement.
// Errors are usually environmental (no multicast in containers) and callers
// treat them as non-fatal.
func (s *Service) Start(ad Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
	}

	host, err := os.Hostname()
	if err != nil {
		host = "zine-server"
	}
	if ad.Name == "" {
		ad.Name = host
	}

	zone, err := mdns.NewMDNSService(host, ServiceType, "", "", ad.Port, nil, ad.TXT())
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return fmt.Errorf("start mDNS server: %w", err)
	}
	s.server = server

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"port", ad.Port,
		"name", ad.Name,
	)
	return nil
}

// Running reports whether the responder is up.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Stop stops advertising. It is safe to call when not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		_ = s.server.Shutdown()
		s.server = nil
		s.logger.Info("mDNS advertisement stopped")
	}
}
