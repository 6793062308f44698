// Command catalogd runs a catalog sync node: a storage.Gateway and a
// catalogdb.Db on top of it, with a Connector per configured route
// answering inbound peer WSocket connections and dialing out to siblings
// discovered via discovery.K8sPeers. Local edits against the Db (e.g. via
// internal/multiedit) are made by embedding this module as a library from
// a separate process; catalogd's own job is keeping replicas converged.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rljson/catalog/internal/catalogdb"
	"github.com/rljson/catalog/internal/logging"
	"github.com/rljson/catalog/internal/metrics"
	"github.com/rljson/catalog/internal/notify"
	"github.com/rljson/catalog/internal/storage"
	"github.com/rljson/catalog/internal/storage/memstore"
	"github.com/rljson/catalog/internal/storage/rethinkstore"
	"github.com/rljson/catalog/internal/storage/sqlitestore"
	syncpkg "github.com/rljson/catalog/internal/sync"
	"github.com/rljson/catalog/internal/sync/discovery"
	"github.com/rljson/catalog/internal/sync/transport"
	"github.com/rljson/catalog/pkg/config"
	"github.com/rljson/catalog/pkg/route"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if v := os.Getenv("LISTEN_LOCAL"); v != "" {
		cfg.ListenLocal = v
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.Name == "" {
		cfg.Name, _ = os.Hostname()
	}

	logger := logging.Default
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logger = logging.New(parseLevel(v))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := openGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}

	bus := notify.New()
	db := catalogdb.New(gw, bus)

	routes := make([]route.Route, 0, len(cfg.SyncRoutes))
	for _, flat := range cfg.SyncRoutes {
		r, err := route.FromFlat(flat)
		if err != nil {
			log.Fatalf("sync route %q: %v", flat, err)
		}
		routes = append(routes, r)
	}

	syncCfg := syncpkg.SyncConfig{
		RequireAck:   cfg.RequireAck,
		AckTimeoutMS: cfg.AckTimeoutMS,
		ClientID:     cfg.Name,
	}

	node := &node{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		routes:  routes,
		syncCfg: syncCfg,
	}

	var dialer *transport.TSDialer
	if os.Getenv("DEV_NO_TSNET") != "1" {
		dialer, err = transport.NewTSDialer(transport.TSDialerConfig{
			PeerID:      cfg.Name,
			LoginServer: cfg.LoginServer,
			AuthKey:     cfg.AuthKey,
			StateDir:    cfg.ResolvedStateDir(),
			Hostname:    cfg.Hostname,
		})
		if err != nil {
			log.Fatalf("tsdialer: %v", err)
		}
		if err := dialer.Start(ctx); err != nil {
			log.Fatalf("tsnet start: %v", err)
		}
		defer dialer.Close()
	}
	node.dialer = dialer

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", node.handleInbound)

	srv := &http.Server{Addr: cfg.ListenLocal, Handler: mux}
	go func() {
		logger.Info("listening on %s", cfg.ListenLocal)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve: %v", err)
		}
	}()

	if cfg.DiscoveryService != "" {
		go node.discoverAndDial(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	node.teardownAll()
}

func parseLevel(v string) logging.Level {
	switch strings.ToLower(v) {
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func openGateway(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return memstore.New(), nil
	case config.StorageSQLite:
		return sqlitestore.Open(cfg.ResolvedStateDir())
	case config.StorageRethinkDB:
		return rethinkstore.Connect(ctx, cfg.RethinkDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// node holds the shared state needed to turn a Socket (inbound or dialed
// out) into one Connector per configured route.
type node struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *catalogdb.Db
	routes  []route.Route
	syncCfg syncpkg.SyncConfig
	dialer  *transport.TSDialer

	mu         sync.Mutex
	connectors []*syncpkg.Connector
}

func (n *node) handleInbound(w http.ResponseWriter, r *http.Request) {
	if !n.peerAllowed(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	sock, err := transport.AcceptWSocket(w, r)
	if err != nil {
		n.logger.Warn("accept inbound socket: %v", err)
		return
	}
	n.bindConnectors(sock, "inbound")
}

func (n *node) peerAllowed(remoteAddr string) bool {
	if len(n.cfg.Allowlist) == 0 {
		return true
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	for _, entry := range n.cfg.Allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if ip == nil {
				continue
			}
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
				return true
			}
			continue
		}
		if eh, _, ok := strings.Cut(entry, ":"); ok && eh == host {
			return true
		}
	}
	return false
}

func (n *node) bindConnectors(sock syncpkg.Socket, origin string) {
	for _, r := range n.routes {
		c := syncpkg.New(n.db, r, sock, n.cfg.Name, n.syncCfg)
		n.mu.Lock()
		n.connectors = append(n.connectors, c)
		n.mu.Unlock()
	}
	n.logger.Info("bound %d connector(s) over %s socket", len(n.routes), origin)
}

func (n *node) teardownAll() {
	n.mu.Lock()
	cs := n.connectors
	n.connectors = nil
	n.mu.Unlock()
	for _, c := range cs {
		c.Teardown()
	}
}

// discoverAndDial resolves sibling replicas once at startup and dials each
// over the tailnet, binding the configured routes' Connectors to every
// successful connection. Failures are logged and skipped rather than
// retried indefinitely here; transport.DialWSocketWithBackoff already
// retries the handshake itself until ctx is done.
func (n *node) discoverAndDial(ctx context.Context) {
	if n.dialer == nil {
		n.logger.Warn("peer discovery configured but tsnet is disabled (DEV_NO_TSNET=1); skipping")
		return
	}
	peers, err := discovery.NewK8sPeers()
	if err != nil {
		n.logger.Warn("peer discovery unavailable: %v", err)
		return
	}
	selfIP := os.Getenv("POD_IP")
	eps, err := peers.ListPeers(ctx, n.cfg.DiscoveryNamespace, n.cfg.DiscoveryService, n.cfg.DiscoveryPortName, selfIP)
	if err != nil {
		n.logger.Warn("list peers: %v", err)
		return
	}
	for _, ep := range eps {
		ep := ep
		go func() {
			url := fmt.Sprintf("ws://%s:%d/sync", ep.IP, ep.Port)
			sock, err := n.dialer.DialWSocketWithBackoff(ctx, url)
			if err != nil {
				n.logger.Warn("dial peer %s: %v", ep.PodName, err)
				return
			}
			n.bindConnectors(sock, "peer:"+ep.PodName)
		}()
	}
	metrics.IncOp("discovery", "list", 1)
}
