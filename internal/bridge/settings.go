package bridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/editorbridge/internal/config"
)

const (
	// DefaultAddress is where editor tooling expects the bridge.
	DefaultAddress = "127.0.0.1:5000"
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds synchronous handler writes. Orchestrated
	// commands clear it for their own connection.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the command bridge.
type Settings struct {
	Enabled      bool
	Addresses    []string
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings returns settings for a single loopback listener.
func DefaultSettings() Settings {
	s := Settings{Enabled: true}
	s.normalize()
	return s
}

// SettingsFromConfig builds Settings from the project config and environment
// overrides.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Enabled:      true,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
	if cfg != nil {
		raw := cfg.Project.Bridge
		settings.Addresses = append([]string(nil), raw.Addresses...)
		if raw.MaxBodyBytes > 0 {
			settings.MaxBodyBytes = raw.MaxBodyBytes
		}
	}
	settings.applyEnvOverrides()
	settings.normalize()
	return settings
}

func (s *Settings) applyEnvOverrides() {
	if s == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("EDITORBRIDGE_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			s.Enabled = enabled
		}
	}
	if value := strings.TrimSpace(os.Getenv("EDITORBRIDGE_ADDRESSES")); value != "" {
		s.Addresses = strings.Split(value, ",")
	}
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	seen := make(map[string]struct{}, len(s.Addresses))
	addresses := make([]string, 0, len(s.Addresses))
	for _, addr := range s.Addresses {
		addr = strings.TrimSpace(addr)
		if !isValidAddress(addr) {
			continue
		}
		// Port 0 asks for a fresh ephemeral port each time, so repeats are
		// distinct listeners.
		if !strings.HasSuffix(addr, ":0") {
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
		}
		addresses = append(addresses, addr)
	}
	if len(addresses) == 0 {
		addresses = []string{DefaultAddress}
	}
	s.Addresses = addresses
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// URL returns the HTTP base URL of the first configured address.
func (s Settings) URL() string {
	if len(s.Addresses) == 0 {
		return "http://" + DefaultAddress
	}
	return "http://" + s.Addresses[0]
}

func isValidAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535
}
