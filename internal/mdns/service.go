// Package mdns provides mDNS/Zeroconf service advertisement for CardLink server discovery.
// Attendees on the venue network find the server without typing an address.
package mdns

import (
	"fmt"
	"os"
	"sync"

	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/holoplot/go-avahi"

	"github.com/cardlinkapp/cardlink-server/internal/domain"
)

const (
	// ServiceType is the mDNS service type for CardLink servers.
	ServiceType = "_cardlink._tcp"

	// APIVersion is the current API version advertised in TXT records.
	APIVersion = "v1"

	// ServerVersion is the current server version advertised in TXT records.
	ServerVersion = "1.0.0"
)

// Service manages mDNS advertisement through the Avahi daemon.
type Service struct {
	logger *slog.Logger

	mu    sync.Mutex
	conn  *dbus.Conn
	srv   *avahi.Server
	group *avahi.EntryGroup
}

// NewService creates a new mDNS service.
func NewService(logger *slog.Logger) *Service {
	return &Service{
		logger: logger,
	}
}

// Start begins advertising the server via Avahi.
// It should be called after the HTTP server is running.
//
// Failures are typically non-fatal: containers and minimal hosts often run
// without an Avahi daemon, and the server stays reachable by address.
func (s *Service) Start(instance *domain.Instance, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}

	srv, err := avahi.ServerNew(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("connect avahi daemon: %w", err)
	}

	group, err := srv.EntryGroupNew()
	if err != nil {
		srv.Close()
		conn.Close()
		return fmt.Errorf("create entry group: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		host = "cardlink-server"
	}
	instanceName := instance.Name
	if instanceName == "" {
		instanceName = host
	}

	txt := buildTXTRecords(instance)

	err = group.AddService(
		avahi.InterfaceUnspec,
		avahi.ProtoUnspec,
		0,
		instanceName,
		ServiceType,
		"", // default domain (.local)
		"", // default host
		uint16(port),
		txt,
	)
	if err != nil {
		srv.Close()
		conn.Close()
		return fmt.Errorf("add service: %w", err)
	}

	if err := group.Commit(); err != nil {
		srv.Close()
		conn.Close()
		return fmt.Errorf("commit entry group: %w", err)
	}

	s.conn = conn
	s.srv = srv
	s.group = group

	s.logger.Info("mDNS advertisement started",
		"service", ServiceType,
		"instance", instanceName,
		"port", port,
	)
	return nil
}

// Stop withdraws the advertisement.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopLocked tears down the avahi state. Caller must hold s.mu.
func (s *Service) stopLocked() {
	if s.srv != nil {
		s.srv.Close()
		s.srv = nil
		s.group = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// buildTXTRecords assembles server metadata for the advertisement.
func buildTXTRecords(instance *domain.Instance) [][]byte {
	records := [][]byte{
		[]byte("id=" + instance.ID),
		[]byte("event=" + instance.EventID),
		[]byte("name=" + instance.Name),
		[]byte("version=" + ServerVersion),
		[]byte("api=" + APIVersion),
	}
	if instance.EventName != "" {
		records = append(records, []byte("event_name="+instance.EventName))
	}
	if instance.RemoteUrl != "" {
		records = append(records, []byte("remote="+instance.RemoteUrl))
	}
	return records
}
