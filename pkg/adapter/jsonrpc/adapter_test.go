package jsonrpc

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/honeyd/pkg/auth"
	"github.com/marmos91/honeyd/pkg/rpc"
	"github.com/marmos91/honeyd/pkg/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser     = "alice"
	testPassword = "correct-horse-battery-staple"
)

type testServer struct {
	adapter *Adapter
	addr    string
}

func startTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()

	table, err := rpc.NewTable(rpc.Command{
		Name:      "ping",
		Usage:     "ping\nReturns pong.",
		MaxParams: 0,
		Handler: func(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
			return "pong", nil
		},
	})
	require.NoError(t, err)

	cred, err := auth.Establish(auth.CredentialConfig{User: testUser, Password: testPassword})
	require.NoError(t, err)

	pool := workerpool.New(2)
	pool.Start()

	a := New(cfg, Deps{
		Dispatcher:    rpc.NewDispatcher(table, rpc.NewGuard(), rpc.DispatcherOptions{}),
		Authenticator: auth.NewAuthenticator(cred, -1),
		Pool:          pool,
		Version:       "test",
	})
	require.NoError(t, a.Listen())

	go func() { _ = a.Serve(context.Background()) }()

	t.Cleanup(func() {
		_ = a.Stop(context.Background())
		pool.Stop()
	})

	return &testServer{adapter: a, addr: pickAddr(t, a.Addrs())}
}

// pickAddr prefers IPv4 so tests work on hosts without IPv6 loopback.
func pickAddr(t *testing.T, addrs []net.Addr) string {
	t.Helper()
	require.NotEmpty(t, addrs)
	for _, addr := range addrs {
		if tcp, ok := addr.(*net.TCPAddr); ok && tcp.IP.To4() != nil {
			return tcp.String()
		}
	}
	return addrs[0].String()
}

type rawClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *rawClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &rawClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *rawClient) do(t *testing.T, path string, withAuth bool, password, body string, closeConn bool) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "http://honeyd"+path, strings.NewReader(body))
	require.NoError(t, err)
	if withAuth {
		req.SetBasicAuth(testUser, password)
	}
	req.Close = closeConn
	require.NoError(t, req.Write(c.conn))

	resp, err := http.ReadResponse(c.r, req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (c *rawClient) assertClosed(t *testing.T) {
	t.Helper()
	_, err := c.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRoundTrip(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	resp, body := c.do(t, "/", true, testPassword, `{"method":"ping","params":[],"id":1}`, false)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "honey-json-rpc/test", resp.Header.Get("Server"))
	assert.NotEmpty(t, resp.Header.Get("Date"))
	assert.Equal(t, "keep-alive", resp.Header.Get("Connection"))

	var reply struct {
		Result string          `json:"result"`
		Error  json.RawMessage `json:"error"`
		ID     int             `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, "pong", reply.Result)
	assert.Equal(t, "null", string(reply.Error))
	assert.Equal(t, 1, reply.ID)
}

func TestKeepAliveServesSeveralRequests(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	for i := 0; i < 3; i++ {
		resp, _ := c.do(t, "/", true, testPassword, `{"method":"ping","id":1}`, false)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, int32(1), s.adapter.ActiveConnections())

	resp, _ := c.do(t, "/", true, testPassword, `{"method":"ping","id":1}`, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "close", resp.Header.Get("Connection"))
	c.assertClosed(t)
}

func TestMissingAuthorizationClosesConnection(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	resp, _ := c.do(t, "/", false, "", `{"method":"ping","id":1}`, false)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Basic realm="jsonrpc"`, resp.Header.Get("WWW-Authenticate"))
	c.assertClosed(t)
}

func TestWrongPasswordClosesConnection(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	resp, _ := c.do(t, "/", true, "wrong", `{"method":"ping","id":1}`, false)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	c.assertClosed(t)
}

func TestUnknownPathIs404(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	resp, _ := c.do(t, "/wallet", true, testPassword, `{"method":"ping","id":1}`, false)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	c.assertClosed(t)
}

func TestOversizedBodyIs500(t *testing.T) {
	s := startTestServer(t, Config{MaxRequestBytes: 16})
	c := dial(t, s.addr)

	resp, _ := c.do(t, "/", true, testPassword, `{"method":"ping","params":[],"id":1}`, false)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	c.assertClosed(t)
}

func TestParseErrorIs400(t *testing.T) {
	s := startTestServer(t, Config{})
	c := dial(t, s.addr)

	resp, body := c.do(t, "/", true, testPassword, `{"method":`, false)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"code":-32700`)
}

func TestStopWakesIdleConnections(t *testing.T) {
	s := startTestServer(t, Config{IdleTimeout: time.Hour})
	c := dial(t, s.addr)

	resp, _ := c.do(t, "/", true, testPassword, `{"method":"ping","id":1}`, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	start := time.Now()
	require.NoError(t, s.adapter.Stop(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(0), s.adapter.ActiveConnections())
	c.assertClosed(t)

	_, err := net.DialTimeout("tcp", s.addr, time.Second)
	assert.Error(t, err)
}

func TestRejectWrites403WithoutTLS(t *testing.T) {
	a := &Adapter{config: Config{WriteTimeout: time.Second}, deps: Deps{Version: "test"}}

	server, client := net.Pipe()
	defer client.Close()
	go a.reject(server)

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "close", resp.Header.Get("Connection"))
}

func TestRejectIsSilentWithTLS(t *testing.T) {
	a := &Adapter{tlsConfig: &tls.Config{}}

	server, client := net.Pipe()
	defer client.Close()
	go a.reject(server)

	n, err := client.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestListenLoopbackOnly(t *testing.T) {
	s := startTestServer(t, Config{})
	for _, addr := range s.adapter.Addrs() {
		assert.True(t, addr.(*net.TCPAddr).IP.IsLoopback(), "%s is not loopback", addr)
	}
	assert.NotZero(t, s.adapter.Port())
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { New(Config{Port: 70000}, Deps{}) })
	assert.Panics(t, func() { New(Config{}, Deps{}) })
}

func TestParseCiphers(t *testing.T) {
	all := tls.CipherSuites()
	require.NotEmpty(t, all)
	first, second := all[0], all[len(all)-1]

	list := strings.Join([]string{"HIGH", first.Name, strings.ToLower(second.Name), "!" + second.Name, "@STRENGTH"}, ":")
	assert.Equal(t, []uint16{first.ID}, parseCiphers(list))

	assert.Nil(t, parseCiphers("TLSv1+HIGH:!SSLv2:!aNULL:!eNULL:!AH:!3DES:@STRENGTH"))
	assert.Nil(t, parseCiphers(""))
}
