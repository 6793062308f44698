package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"tailscale.com/tsnet"
)

// TSDialerConfig describes how to start a per-peer embedded tsnet server,
// mirroring internal/ts/connector/connector.go's Config.
type TSDialerConfig struct {
	PeerID      string
	LoginServer string
	AuthKey     string
	StateDir    string
	Hostname    string
}

// TSDialer manages a tsnet.Server and dials peer WSocket endpoints over the
// tailnet, grounded on internal/ts/connector/connector.go.
type TSDialer struct {
	cfg   TSDialerConfig
	mu    sync.RWMutex
	srv   *tsnet.Server
	start sync.Once
}

// NewTSDialer validates cfg and fills in defaults for StateDir/Hostname.
func NewTSDialer(cfg TSDialerConfig) (*TSDialer, error) {
	id := strings.TrimSpace(cfg.PeerID)
	if id == "" {
		return nil, errors.New("transport: peerID required")
	}
	if strings.TrimSpace(cfg.LoginServer) == "" {
		return nil, errors.New("transport: loginServer required")
	}
	state := strings.TrimSpace(cfg.StateDir)
	if state == "" {
		home, _ := os.UserHomeDir()
		if home == "" {
			return nil, errors.New("transport: no home dir for tsnet state")
		}
		state = filepath.Join(home, ".catalog", "tsnet", sanitize(id))
	}
	if err := os.MkdirAll(state, 0o700); err != nil {
		return nil, fmt.Errorf("transport: state dir: %w", err)
	}
	cfg.StateDir = state
	if strings.TrimSpace(cfg.Hostname) == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "node"
		}
		cfg.Hostname = fmt.Sprintf("catalog-%s-%s", sanitize(id), sanitize(host))
	}
	return &TSDialer{cfg: cfg}, nil
}

// Start brings up the tsnet server, idempotently.
func (d *TSDialer) Start(ctx context.Context) error {
	var retErr error
	d.start.Do(func() {
		s := &tsnet.Server{
			Dir:        d.cfg.StateDir,
			Hostname:   d.cfg.Hostname,
			AuthKey:    d.cfg.AuthKey,
			ControlURL: d.cfg.LoginServer,
		}
		if err := s.Start(); err != nil {
			retErr = fmt.Errorf("transport: tsnet start: %w", err)
			return
		}
		d.mu.Lock()
		d.srv = s
		d.mu.Unlock()
	})
	return retErr
}

// DialContext dials network/addr over the tailnet.
func (d *TSDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.mu.RLock()
	s := d.srv
	d.mu.RUnlock()
	if s == nil {
		return nil, errors.New("transport: tsdialer not started")
	}
	return s.Dial(ctx, network, addr)
}

// httpTransport returns an *http.Transport that dials through the tailnet,
// for use by DialWSocketWithBackoff's websocket handshake.
func (d *TSDialer) httpTransport() *http.Transport {
	return &http.Transport{DialContext: d.DialContext}
}

// DialWSocketWithBackoff dials url over the tailnet, retrying the handshake
// with exponential backoff (grounded on internal/cluster/registry.go's
// rdbMonitor reconnect loop) until ctx is done or a connection succeeds.
func (d *TSDialer) DialWSocketWithBackoff(ctx context.Context, url string) (*WSocket, error) {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0 // no overall time limit; only ctx ends the retries
	b := backoff.WithContext(eb, ctx)
	var sock *WSocket
	op := func() error {
		s, err := DialWSocket(ctx, url, &http.Client{Transport: d.httpTransport()})
		if err != nil {
			return err
		}
		sock = s
		return nil
	}
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return sock, nil
}

// Close stops the tsnet server.
func (d *TSDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.srv == nil {
		return nil
	}
	err := d.srv.Close()
	d.srv = nil
	return err
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteByte('-')
		}
	}
	res := strings.Trim(b.String(), "-")
	if res == "" {
		res = "default"
	}
	return res
}
