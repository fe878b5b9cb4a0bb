package jsonrpc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/marmos91/honeyd/internal/logger"
)

var errShuttingDown = errors.New("server shutting down")

// Closing a socket with unread input makes the kernel send RST, which can
// destroy a reply the client has not read yet. close half-closes first and
// drains for a short while.
const (
	lingerTimeout = 250 * time.Millisecond
	lingerBytes   = 256 << 10
)

type connection struct {
	adapter *Adapter
	id      string
	conn    net.Conn
	peer    net.IP
	reader  *bufio.Reader
}

func newConnection(a *Adapter, id string, conn net.Conn, peer net.IP) *connection {
	return &connection{
		adapter: a,
		id:      id,
		conn:    conn,
		peer:    peer,
		reader:  bufio.NewReader(conn),
	}
}

// serve answers requests until the client goes away, a request asks for
// the connection to close, or the adapter stops.
func (c *connection) serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in RPC connection %s from %s: %v", c.id, c.peer, r)
		}
		c.close()
	}()

	logger.Debug("RPC connection %s from %s", c.id, c.peer)

	for {
		keepOpen, err := c.handleRequest(ctx)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				logger.Debug("RPC connection %s closed by client", c.id)
			case errors.Is(err, errShuttingDown):
				logger.Debug("RPC connection %s closed for shutdown", c.id)
			case errors.As(err, &netErr) && netErr.Timeout():
				logger.Debug("RPC connection %s timed out: %v", c.id, err)
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				logger.Debug("RPC connection %s cancelled: %v", c.id, err)
			default:
				logger.Debug("Error handling RPC request on %s: %v", c.id, err)
			}
			return
		}
		if !keepOpen {
			return
		}
	}
}

// handleRequest reads, authenticates and answers one request. It returns
// whether the connection stays open.
func (c *connection) handleRequest(ctx context.Context) (bool, error) {
	a := c.adapter
	cfg := a.config

	if cfg.IdleTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
			return false, err
		}
	}
	// Checked after arming the deadline so a concurrent Stop either sees
	// this loop exit here or its immediate deadline wins.
	if a.shuttingDown() {
		return false, errShuttingDown
	}
	if _, err := c.reader.Peek(1); err != nil {
		return false, err
	}

	if cfg.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout)); err != nil {
			return false, err
		}
	}

	req, body, err := readRequest(c.reader, cfg.MaxRequestBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, err
		}
		logger.Debug("Malformed RPC request on %s: %v", c.id, err)
		_ = c.reply(http.StatusInternalServerError, nil, false)
		return false, nil
	}

	if req.RequestURI != "/" {
		return false, c.reply(http.StatusNotFound, nil, false)
	}

	header := req.Header.Get("Authorization")
	if header == "" {
		return false, c.reply(http.StatusUnauthorized, nil, false)
	}
	if !a.deps.Authenticator.Check(header) {
		logger.Warn("incorrect password attempt from %s", c.peer)
		a.metrics.RecordAuthFailure()
		a.deps.Authenticator.Penalize(ctx)
		return false, c.reply(http.StatusUnauthorized, nil, false)
	}

	if err := a.limiter.Wait(ctx, c.peer.String()); err != nil {
		return false, err
	}

	reply, status, err := a.dispatch(ctx, body)
	if err != nil {
		return false, err
	}

	keepOpen := keepAlive(req) && !a.shuttingDown()
	if err := c.reply(status, reply, keepOpen); err != nil {
		return false, err
	}
	return keepOpen, nil
}

func (c *connection) reply(status int, body []byte, keepOpen bool) error {
	if wt := c.adapter.config.WriteTimeout; wt > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(wt)); err != nil {
			return err
		}
	}
	return writeReply(c.conn, status, body, keepOpen, c.adapter.deps.Version)
}

func (c *connection) close() {
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err == nil {
			_ = c.conn.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(c.reader, lingerBytes))
		}
	}
	_ = c.conn.Close()
}

// wake makes a connection blocked on read return immediately.
func (c *connection) wake() {
	_ = c.conn.SetReadDeadline(time.Now())
}
