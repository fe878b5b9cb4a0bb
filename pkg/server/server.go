// Package server wires the RPC stack together and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/adapter"
	"github.com/marmos91/honeyd/pkg/adapter/jsonrpc"
	"github.com/marmos91/honeyd/pkg/auth"
	"github.com/marmos91/honeyd/pkg/chain"
	"github.com/marmos91/honeyd/pkg/config"
	"github.com/marmos91/honeyd/pkg/handlers"
	"github.com/marmos91/honeyd/pkg/metrics"
	"github.com/marmos91/honeyd/pkg/rpc"
	"github.com/marmos91/honeyd/pkg/scheduler"
	"github.com/marmos91/honeyd/pkg/wallet"
	"github.com/marmos91/honeyd/pkg/workerpool"
)

// Deps are the node services the RPC server exposes.
type Deps struct {
	// Chain is required.
	Chain chain.View

	// Wallet is optional. Nil disables every wallet command.
	Wallet wallet.Wallet

	// Metrics is optional; nil means no-op.
	Metrics metrics.RPCMetrics

	// MetricsServer is optional and started with the RPC server.
	MetricsServer *metrics.Server

	Version string
}

// Server manages the lifecycle of the JSON-RPC control plane: the shared
// credential, the worker pool, the scheduled task registry, the listener and
// the optional metrics endpoint.
//
// Lifecycle:
//  1. Creation: New() with configuration and node services
//  2. Startup: Start() binds and begins serving; it does not block
//  3. Shutdown request: RequestShutdown() (also reachable through the stop
//     command) closes ShutdownRequested()
//  4. Shutdown: Stop() tears everything down in reverse dependency order
//
// Thread safety:
// All methods are safe for concurrent use. Start() may only succeed once.
//
// Example usage:
//
//	srv := server.New(cfg, server.Deps{Chain: store, Version: version})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	<-srv.ShutdownRequested()
//	_ = srv.Stop(context.Background())
type Server struct {
	cfg  *config.Config
	deps Deps

	mu         sync.Mutex
	started    bool
	stopped    bool
	credential *auth.Credential
	pool       *workerpool.Pool
	scheduler  *scheduler.Registry
	adapter    adapter.Adapter
	dispatcher *rpc.Dispatcher

	serveDone     chan struct{}
	metricsCancel context.CancelFunc
	metricsDone   chan struct{}

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a stopped server.
//
// Panics if cfg or the chain view is nil (indicates programmer error).
func New(cfg *config.Config, deps Deps) *Server {
	if cfg == nil {
		panic("server config cannot be nil")
	}
	if deps.Chain == nil {
		panic("chain view cannot be nil")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopRPCMetrics()
	}

	return &Server{
		cfg:      cfg,
		deps:     deps,
		shutdown: make(chan struct{}),
	}
}

// Start brings the RPC server up.
//
// Startup order:
//  1. Establish the credential (password or cookie file)
//  2. Build the allow list
//  3. Build the command table
//  4. Bind the listener
//  5. Start the worker pool
//  6. Start accepting connections
//  7. Start the metrics endpoint, if configured
//
// Any failure rolls back what was already started and requests shutdown, so
// a caller waiting on ShutdownRequested() wakes up.
func (s *Server) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("server already started")
	}
	if s.stopped {
		return errors.New("server already stopped")
	}

	defer func() {
		if err != nil {
			logger.Error("RPC server failed to start: %v", err)
			s.rollback()
			s.RequestShutdown()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.credential, err = auth.Establish(config.CredentialConfig(s.cfg))
	if err != nil {
		return fmt.Errorf("failed to establish RPC credential: %w", err)
	}
	authenticator := auth.NewAuthenticator(s.credential, s.cfg.Auth.FailureDelay)

	allowList, err := auth.NewAllowList(s.cfg.RPC.AllowIPs)
	if err != nil {
		return fmt.Errorf("invalid rpc.allow_ips: %w", err)
	}

	rpcCfg := s.cfg.RPC
	rpcCfg.TLS.CertFile = s.cfg.ResolvePath(rpcCfg.TLS.CertFile)
	rpcCfg.TLS.KeyFile = s.cfg.ResolvePath(rpcCfg.TLS.KeyFile)

	s.pool = workerpool.New(rpcCfg.Threads)
	s.scheduler = scheduler.New(s.pool, s.deps.Metrics)

	guard := rpc.NewGuard()
	table, err := rpc.NewTable(handlers.Commands(handlers.Deps{
		Chain:     s.deps.Chain,
		Shutdown:  s.RequestShutdown,
		Scheduler: s.scheduler,
		Guard:     guard,
		Version:   s.deps.Version,
	})...)
	if err != nil {
		return fmt.Errorf("failed to build command table: %w", err)
	}
	s.dispatcher = rpc.NewDispatcher(table, guard, rpc.DispatcherOptions{
		DisableSafeMode: s.cfg.Server.DisableSafeMode,
		Metrics:         s.deps.Metrics,
	})

	a := jsonrpc.New(rpcCfg, jsonrpc.Deps{
		Dispatcher:    s.dispatcher,
		Authenticator: authenticator,
		AllowList:     allowList,
		Pool:          s.pool,
		Env:           s.env,
		Metrics:       s.deps.Metrics,
		Version:       s.deps.Version,
	})
	if err := a.Listen(); err != nil {
		return err
	}
	s.adapter = a

	s.pool.Start()

	// The accept loop stops through Stop(), not through the Start context.
	s.serveDone = make(chan struct{})
	go func() {
		defer close(s.serveDone)
		if err := a.Serve(context.Background()); err != nil {
			logger.Error("%s adapter failed: %v", a.Protocol(), err)
			s.RequestShutdown()
		}
	}()

	if ms := s.deps.MetricsServer; ms != nil {
		mctx, cancel := context.WithCancel(context.Background())
		s.metricsCancel = cancel
		s.metricsDone = make(chan struct{})
		go func() {
			defer close(s.metricsDone)
			if err := ms.Start(mctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	s.started = true
	logger.Info("%s server started on port %d with %d worker(s)", a.Protocol(), a.Port(), rpcCfg.Threads)
	if path := s.credential.CookiePath(); path != "" {
		logger.Info("RPC auth cookie written to %s", path)
	}
	return nil
}

// env is evaluated per request: the warning can change at any time.
func (s *Server) env() rpc.Env {
	return rpc.Env{
		Warning: s.deps.Chain.Warnings(),
		Wallet:  s.deps.Wallet,
	}
}

// rollback undoes a partial Start. Called with mu held.
func (s *Server) rollback() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.adapter != nil {
		if err := s.adapter.Stop(context.Background()); err != nil {
			logger.Debug("Error stopping adapter during rollback: %v", err)
		}
	}
	if s.serveDone != nil {
		<-s.serveDone
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.credential != nil {
		if err := s.credential.Remove(); err != nil {
			logger.Warn("Failed to remove RPC auth cookie: %v", err)
		}
	}
	s.stopped = true
}

// Stop shuts the RPC server down.
//
// Shutdown order:
//  1. Cancel scheduled tasks
//  2. Remove the auth cookie
//  3. Stop the adapter (waits for in-flight requests, up to its timeout)
//  4. Stop the worker pool
//  5. Stop the metrics endpoint
//
// Stop is idempotent and a no-op on a server that never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.started {
		s.stopped = true
		return nil
	}
	s.stopped = true
	s.RequestShutdown()

	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.Server.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
	}

	logger.Info("Stopping RPC server")
	start := time.Now()

	var errs []error

	s.scheduler.Stop()

	if err := s.credential.Remove(); err != nil {
		logger.Warn("Failed to remove RPC auth cookie: %v", err)
		errs = append(errs, err)
	}

	if err := s.adapter.Stop(ctx); err != nil {
		logger.Error("Error stopping %s adapter: %v", s.adapter.Protocol(), err)
		errs = append(errs, err)
	}
	<-s.serveDone

	s.pool.Stop()

	if s.metricsCancel != nil {
		s.metricsCancel()
		<-s.metricsDone
	}

	logger.Info("RPC server stopped in %v", time.Since(start))
	return errors.Join(errs...)
}

// RequestShutdown asks the process to shut down. It never blocks and is
// safe to call any number of times, including from a handler.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Info("Shutdown requested")
		close(s.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// RunLater schedules fn on the worker pool after delay, replacing any task
// pending under the same key.
func (s *Server) RunLater(key string, delay time.Duration, fn func()) error {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	if sched == nil {
		return scheduler.ErrClosed
	}
	return sched.RunLater(key, delay, fn)
}

// Port returns the bound RPC port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter == nil {
		return 0
	}
	return s.adapter.Port()
}

// CookiePath returns the generated cookie file, empty when a password is
// configured or before Start.
func (s *Server) CookiePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == nil {
		return ""
	}
	return s.credential.CookiePath()
}
