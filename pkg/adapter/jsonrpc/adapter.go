// Package jsonrpc serves the node's JSON-RPC interface over HTTP/1.1.
package jsonrpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/internal/ratelimiter"
	"github.com/marmos91/honeyd/pkg/adapter"
	"github.com/marmos91/honeyd/pkg/auth"
	"github.com/marmos91/honeyd/pkg/metrics"
	"github.com/marmos91/honeyd/pkg/rpc"
	"github.com/marmos91/honeyd/pkg/workerpool"
)

// ErrNoListener is returned by Listen when no address could be bound.
var ErrNoListener = errors.New("unable to bind any RPC listener")

var _ adapter.Adapter = (*Adapter)(nil)

// Deps are the collaborators the adapter serves requests with.
type Deps struct {
	Dispatcher    *rpc.Dispatcher
	Authenticator *auth.Authenticator
	AllowList     *auth.AllowList

	// Pool executes requests. Connection reading happens on one goroutine
	// per connection; only dispatch is bounded by the pool.
	Pool *workerpool.Pool

	// Env returns the dispatch environment for each request.
	Env func() rpc.Env

	// Metrics is optional.
	Metrics metrics.RPCMetrics

	// Version is advertised in the Server header.
	Version string
}

// Adapter manages the RPC listeners and connection lifecycle.
//
// Shutdown flow:
//  1. Stop() called or the Serve context is cancelled
//  2. Listeners closed (no new connections)
//  3. Idle connections woken so their read fails and they exit
//  4. In-flight requests finish and their replies are written
//  5. Whatever remains after ShutdownTimeout is force-closed
type Adapter struct {
	config    Config
	deps      Deps
	metrics   metrics.RPCMetrics
	limiter   *ratelimiter.PeerLimiter
	tlsConfig *tls.Config

	mu        sync.Mutex
	listeners []net.Listener

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	conns       sync.Map // id -> *connection

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx is cancelled only when connections are force-closed, so
	// requests already running during a graceful stop complete normally.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a stopped adapter. Invalid configuration panics.
func New(config Config, deps Deps) *Adapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid JSON-RPC config: %v", err))
	}
	if deps.Dispatcher == nil || deps.Authenticator == nil || deps.Pool == nil {
		panic("JSON-RPC adapter requires a dispatcher, an authenticator and a worker pool")
	}
	if deps.AllowList == nil {
		deps.AllowList, _ = auth.NewAllowList(nil)
	}
	if deps.Env == nil {
		deps.Env = func() rpc.Env { return rpc.Env{} }
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewNoopRPCMetrics()
	}

	limiter, err := ratelimiter.NewPeerLimiter(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, config.RateLimit.MaxPeers)
	if err != nil {
		panic(fmt.Sprintf("invalid JSON-RPC rate limit: %v", err))
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &Adapter{
		config:         config,
		deps:           deps,
		metrics:        m,
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Listen binds the RPC port.
//
// With an empty allow list only loopback is bound, on both [::1] and
// 127.0.0.1. Otherwise the dual-stack [::] is tried first with 0.0.0.0 as
// the IPv4 fallback. Listen succeeds if at least one address binds.
func (a *Adapter) Listen() error {
	tlsConfig, err := loadTLSConfig(a.config.TLS)
	if err != nil {
		return err
	}
	a.tlsConfig = tlsConfig

	type bindAddr struct{ network, host string }
	var (
		addrs    []bindAddr
		fallback bool
	)
	if a.deps.AllowList.LoopbackOnly() {
		addrs = []bindAddr{{"tcp6", "::1"}, {"tcp4", "127.0.0.1"}}
	} else {
		addrs = []bindAddr{{"tcp", "::"}, {"tcp4", "0.0.0.0"}}
		fallback = true
	}

	port := a.config.Port
	var lastErr error

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, addr := range addrs {
		if fallback && len(a.listeners) > 0 {
			break
		}
		l, err := net.Listen(addr.network, net.JoinHostPort(addr.host, strconv.Itoa(port)))
		if err != nil {
			logger.Warn("Failed to bind RPC listener on %s: %v", addr.host, err)
			lastErr = err
			continue
		}
		// An ephemeral port is shared by the remaining addresses.
		if port == 0 {
			port = l.Addr().(*net.TCPAddr).Port
		}
		a.listeners = append(a.listeners, l)
		logger.Info("JSON-RPC server listening on %s", l.Addr())
	}

	if len(a.listeners) == 0 {
		return fmt.Errorf("%w on port %d: %v", ErrNoListener, a.config.Port, lastErr)
	}
	if a.tlsConfig != nil {
		logger.Info("JSON-RPC server using TLS")
	}
	return nil
}

// Serve accepts connections on every bound listener until Stop is called
// or ctx is cancelled. Listen must have succeeded first.
func (a *Adapter) Serve(ctx context.Context) error {
	a.mu.Lock()
	listeners := append([]net.Listener(nil), a.listeners...)
	a.mu.Unlock()

	if len(listeners) == 0 {
		return errors.New("JSON-RPC adapter is not listening")
	}

	logger.Debug("JSON-RPC config: threads=%d max_request_bytes=%d read_timeout=%v write_timeout=%v idle_timeout=%v",
		a.config.Threads, a.config.MaxRequestBytes, a.config.ReadTimeout, a.config.WriteTimeout, a.config.IdleTimeout)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("JSON-RPC shutdown signal received: %v", ctx.Err())
			a.initiateShutdown()
		case <-a.shutdown:
		}
	}()

	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l net.Listener) {
			defer wg.Done()
			a.acceptLoop(l)
		}(l)
	}
	wg.Wait()
	return nil
}

func (a *Adapter) acceptLoop(l net.Listener) {
	for {
		nc, err := l.Accept()
		if err != nil {
			select {
			case <-a.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("Error accepting RPC connection: %v", err)
			continue
		}
		a.accept(nc)
	}
}

func (a *Adapter) accept(nc net.Conn) {
	if a.shuttingDown() {
		_ = nc.Close()
		return
	}

	id := uuid.NewString()
	peer := remoteIP(nc)

	a.activeConns.Add(1)

	if !a.deps.AllowList.Allowed(peer) {
		logger.Warn("Rejected RPC connection %s from %s: not in allow list", id, peer)
		a.metrics.RecordConnectionRejected("allow_list")
		go func() {
			defer a.activeConns.Done()
			a.reject(nc)
		}()
		return
	}

	if a.tlsConfig != nil {
		nc = tls.Server(nc, a.tlsConfig)
	}

	c := newConnection(a, id, nc, peer)
	a.conns.Store(id, c)
	current := a.connCount.Add(1)
	a.metrics.RecordConnectionAccepted()
	a.metrics.SetActiveConnections(current)

	go func() {
		defer func() {
			a.conns.Delete(id)
			current := a.connCount.Add(-1)
			a.metrics.RecordConnectionClosed()
			a.metrics.SetActiveConnections(current)
			a.activeConns.Done()
			logger.Debug("RPC connection %s closed (active: %d)", id, current)
		}()
		c.serve(a.shutdownCtx)
	}()
}

// reject answers a filtered peer with 403 and closes. Under TLS nothing is
// written before closing.
func (a *Adapter) reject(nc net.Conn) {
	defer nc.Close()
	if a.tlsConfig != nil {
		return
	}
	if a.config.WriteTimeout > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(a.config.WriteTimeout))
	}
	if err := writeReply(nc, http.StatusForbidden, nil, false, a.deps.Version); err != nil {
		logger.Debug("Error writing 403 to %s: %v", nc.RemoteAddr(), err)
	}
}

// dispatch runs body through the dispatcher on a pool worker and waits for
// the reply.
func (a *Adapter) dispatch(ctx context.Context, body []byte) ([]byte, int, error) {
	var (
		reply  []byte
		status int
	)
	done := make(chan struct{})
	env := a.deps.Env()

	err := a.deps.Pool.Submit(ctx, func() {
		defer close(done)
		reply, status = a.deps.Dispatcher.Handle(ctx, body, env)
	})
	if err != nil {
		return nil, 0, err
	}
	<-done

	if reply == nil {
		return nil, http.StatusInternalServerError, nil
	}
	return reply, status, nil
}

func (a *Adapter) shuttingDown() bool {
	select {
	case <-a.shutdown:
		return true
	default:
		return false
	}
}

// initiateShutdown stops accepting and wakes idle connections. Safe to call
// multiple times.
func (a *Adapter) initiateShutdown() {
	a.shutdownOnce.Do(func() {
		logger.Debug("JSON-RPC shutdown initiated")
		close(a.shutdown)

		a.mu.Lock()
		for _, l := range a.listeners {
			if err := l.Close(); err != nil {
				logger.Debug("Error closing RPC listener: %v", err)
			}
		}
		a.mu.Unlock()

		a.conns.Range(func(_, value any) bool {
			value.(*connection).wake()
			return true
		})
	})
}

// forceCloseConnections cancels in-flight requests and closes every socket.
func (a *Adapter) forceCloseConnections() {
	a.cancelRequests()

	closed := 0
	a.conns.Range(func(key, value any) bool {
		c := value.(*connection)
		if err := c.conn.Close(); err != nil {
			logger.Debug("Error force-closing RPC connection %s: %v", key, err)
		} else {
			closed++
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed %d RPC connection(s)", closed)
	}
}

// Stop closes the listeners and waits for in-flight requests, up to
// ShutdownTimeout or until ctx is done, before force-closing what is left.
// Safe to call multiple times and concurrently with Serve.
func (a *Adapter) Stop(ctx context.Context) error {
	a.initiateShutdown()

	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("JSON-RPC graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		a.connCount.Load(), a.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		a.activeConns.Wait()
		close(done)
	}()

	timer := time.NewTimer(a.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		a.cancelRequests()
		logger.Info("JSON-RPC graceful shutdown complete")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	remaining := a.connCount.Load()
	logger.Warn("JSON-RPC shutdown timeout: %d connection(s) still active, forcing closure", remaining)
	a.forceCloseConnections()
	return fmt.Errorf("JSON-RPC shutdown timeout: %d connections force-closed", remaining)
}

// ActiveConnections returns the number of open client connections.
func (a *Adapter) ActiveConnections() int32 {
	return a.connCount.Load()
}

// Addrs returns the bound listener addresses.
func (a *Adapter) Addrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]net.Addr, 0, len(a.listeners))
	for _, l := range a.listeners {
		out = append(out, l.Addr())
	}
	return out
}

// Port returns the bound port, or the configured one before Listen.
func (a *Adapter) Port() int {
	for _, addr := range a.Addrs() {
		if tcp, ok := addr.(*net.TCPAddr); ok {
			return tcp.Port
		}
	}
	return a.config.Port
}

// Protocol returns "JSON-RPC" for logging.
func (a *Adapter) Protocol() string {
	return "JSON-RPC"
}

func remoteIP(nc net.Conn) net.IP {
	if tcp, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(nc.RemoteAddr().String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
