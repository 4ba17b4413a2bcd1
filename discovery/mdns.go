// Package discovery advertises a running server on the local network so
// clients on the same LAN can find its API without configuration.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_marketchat._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultVersion is the TXT record API version.
	DefaultVersion = 1
	// DefaultAPIPath is advertised so clients know where the HTTP API is mounted.
	DefaultAPIPath = "/api"
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)

// Config controls the mDNS broadcaster.
type Config struct {
	Service string
	Domain  string
	Version int
	APIPath string

	InstanceID     string
	InstanceName   string
	Port           int
	KeyFingerprint string

	registerFn registerFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.APIPath == "" {
		out.APIPath = DefaultAPIPath
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c Config) validateForBroadcast() error {
	if strings.TrimSpace(c.InstanceID) == "" {
		return errors.New("instance ID is required")
	}
	if strings.TrimSpace(c.InstanceName) == "" {
		return errors.New("instance name is required")
	}
	if c.Port <= 0 {
		return errors.New("port must be > 0")
	}
	return nil
}

// TXTRecords returns the TXT payload advertised for cfg.
func (c Config) TXTRecords() []string {
	txt := []string{
		"instance_id=" + c.InstanceID,
		"version=" + strconv.Itoa(c.Version),
		"api=" + c.APIPath,
	}
	if c.KeyFingerprint != "" {
		txt = append(txt, "key_fingerprint="+c.KeyFingerprint)
	}
	return txt
}

// Broadcaster advertises the server via mDNS.
type Broadcaster struct {
	server   *zeroconf.Server
	stopOnce sync.Once
}

// StartBroadcaster registers and starts mDNS broadcast.
func StartBroadcaster(config Config) (*Broadcaster, error) {
	cfg := config.withDefaults()
	if err := cfg.validateForBroadcast(); err != nil {
		return nil, err
	}

	server, err := cfg.registerFn(cfg.InstanceName, cfg.Service, cfg.Domain, cfg.Port, cfg.TXTRecords(), nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}

	return &Broadcaster{server: server}, nil
}

// Stop stops mDNS broadcasting. Safe to call more than once.
func (b *Broadcaster) Stop() {
	if b == nil {
		return
	}
	b.stopOnce.Do(func() {
		if b.server != nil {
			b.server.Shutdown()
		}
	})
}

// PortFromAddr extracts the numeric port of a listen address such as ":8080".
func PortFromAddr(addr string) (int, error) {
	_, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("listen address %q has no fixed port", addr)
	}
	return port, nil
}
