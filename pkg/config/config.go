// Package config loads and validates the on-disk configuration for a
// catalogd process: which storage driver backs it, which routes it syncs,
// and how it reaches its peers over the tailnet.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/rljson/catalog/pkg/route"
)

// StorageDriver names one of the storage.Gateway implementations a catalogd
// process can be configured to use.
type StorageDriver string

const (
	StorageMemory    StorageDriver = "memory"
	StorageSQLite    StorageDriver = "sqlite"
	StorageRethinkDB StorageDriver = "rethinkdb"
)

// Config is a catalogd node's full on-disk configuration.
type Config struct {
	// Name identifies this node in logs, metrics, and as its Connector
	// origin ID; defaults to the host name when empty.
	Name string `json:"name,omitempty"`

	// ListenLocal is the local address this node's WSocket server binds,
	// e.g. ":8443".
	ListenLocal string `json:"listen_local"`

	// DialTimeoutMS bounds outbound peer dials.
	DialTimeoutMS int `json:"dial_timeout_ms"`

	// Allowlist restricts which peer addresses (host:port or CIDR) may
	// reach this node's sync endpoints. Empty means unrestricted.
	Allowlist []string `json:"allowlist"`

	// StorageDriver selects the storage.Gateway backing this node.
	StorageDriver StorageDriver `json:"storage_driver"`

	// StateDir holds the sqlite database file and tsnet state; defaults
	// to ~/.catalog/state when empty.
	StateDir string `json:"state_dir,omitempty"`

	// RethinkDatabase names the RethinkDB database to use when
	// StorageDriver is "rethinkdb".
	RethinkDatabase string `json:"rethink_database,omitempty"`

	// LoginServer, AuthKey, and Hostname configure the embedded tsnet
	// server used to reach peers over the tailnet.
	LoginServer string `json:"login_server"`
	AuthKey     string `json:"auth_key"`
	Hostname    string `json:"hostname"`

	// SyncRoutes lists the flat routes (route.Route.Flat()) this node
	// runs a Connector for.
	SyncRoutes []string `json:"sync_routes"`

	// RequireAck and AckTimeoutMS configure every Connector's
	// sync.SyncConfig.
	RequireAck   bool `json:"require_ack"`
	AckTimeoutMS int  `json:"ack_timeout_ms"`

	// DiscoveryNamespace/Service/PortName locate sibling replicas via a
	// Kubernetes Service's Endpoints, when running in-cluster. Discovery
	// is skipped when DiscoveryService is empty (e.g. single-node or
	// statically-peered deployments).
	DiscoveryNamespace string `json:"discovery_namespace,omitempty"`
	DiscoveryService   string `json:"discovery_service,omitempty"`
	DiscoveryPortName  string `json:"discovery_port_name,omitempty"`
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func baseDir() string { return filepath.Join(homeDir(), ".catalog") }

// ResolvedStateDir returns c.StateDir, defaulting to ~/.catalog/state.
func (c *Config) ResolvedStateDir() string {
	if strings.TrimSpace(c.StateDir) != "" {
		return c.StateDir
	}
	return StateDir()
}

// StateDir returns the default directory for sqlite/tsnet state, used
// before a Config is loaded and as ResolvedStateDir's fallback.
func StateDir() string { return filepath.Join(baseDir(), "state") }

// ConfigPath returns the default on-disk location of the config file.
func ConfigPath() string { return filepath.Join(baseDir(), "config.json") }

// Load reads and parses the config file at ConfigPath.
func Load() (*Config, error) {
	b, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes c to ConfigPath, creating its parent directory if needed.
func Save(c *Config) error {
	if err := os.MkdirAll(baseDir(), 0o700); err != nil {
		return err
	}
	b, _ := json.MarshalIndent(c, "", "  ")
	return os.WriteFile(ConfigPath(), b, 0o600)
}

// Validate checks c for internal consistency, returning the first problem
// found. Tailnet fields are skipped when DEV_NO_TSNET=1, for running a
// single local node without a control server.
func (c *Config) Validate() error {
	devNoTS := os.Getenv("DEV_NO_TSNET") == "1"
	if !devNoTS {
		if !strings.HasPrefix(c.LoginServer, "http://") && !strings.HasPrefix(c.LoginServer, "https://") {
			return errors.New("login_server must be a URL")
		}
		if c.AuthKey == "" {
			return errors.New("auth_key required")
		}
		if c.Hostname == "" {
			return errors.New("hostname required")
		}
	}
	if c.ListenLocal == "" {
		return errors.New("listen_local required")
	}
	if c.DialTimeoutMS <= 0 || c.DialTimeoutMS > 60000 {
		return fmt.Errorf("dial_timeout_ms out of range: %d", c.DialTimeoutMS)
	}

	switch c.StorageDriver {
	case StorageMemory, StorageSQLite:
		// no extra fields required
	case StorageRethinkDB:
		if strings.TrimSpace(c.RethinkDatabase) == "" {
			return errors.New("rethink_database required when storage_driver is rethinkdb")
		}
	default:
		return fmt.Errorf("unknown storage_driver %q", c.StorageDriver)
	}

	if len(c.SyncRoutes) == 0 {
		return errors.New("sync_routes must name at least one route")
	}
	for _, r := range c.SyncRoutes {
		if _, err := route.FromFlat(r); err != nil {
			return fmt.Errorf("invalid sync_routes entry %q: %w", r, err)
		}
	}

	if c.RequireAck && (c.AckTimeoutMS < 0 || c.AckTimeoutMS > 60000) {
		return fmt.Errorf("ack_timeout_ms out of range: %d", c.AckTimeoutMS)
	}

	for _, it := range c.Allowlist {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if strings.Contains(it, "/") {
			if _, _, err := net.ParseCIDR(it); err != nil {
				return fmt.Errorf("invalid cidr %q", it)
			}
			continue
		}
		if h, p, ok := strings.Cut(it, ":"); !ok || h == "" || p == "" {
			return fmt.Errorf("invalid allowlist item %q", it)
		}
	}
	return nil
}
