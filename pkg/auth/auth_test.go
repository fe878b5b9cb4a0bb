package auth

import (
	"context"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func basic(userpass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(userpass))
}

func TestEstablishWithPassword(t *testing.T) {
	cred, err := Establish(CredentialConfig{User: "alice", Password: "hunter2"})
	require.NoError(t, err)

	assert.Equal(t, "", cred.CookiePath())
	assert.True(t, cred.ShortSecret())
	assert.NoError(t, cred.Remove())

	a := NewAuthenticator(cred, 0)
	assert.True(t, a.Check(basic("alice:hunter2")))
	assert.False(t, a.Check(basic("alice:hunter3")))
	assert.Equal(t, DefaultFailureDelay, a.FailureDelay())
}

func TestEstablishGeneratesCookie(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", ".cookie")

	cred, err := Establish(CredentialConfig{CookieFile: path})
	require.NoError(t, err)
	assert.Equal(t, path, cred.CookiePath())
	assert.False(t, cred.ShortSecret())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), CookieUser+":"))
	assert.Len(t, strings.TrimPrefix(string(content), CookieUser+":"), cookieSecretBytes*2)

	a := NewAuthenticator(cred, 0)
	assert.True(t, a.Check(basic(string(content))))
	assert.Zero(t, a.FailureDelay(), "long cookie secrets are not delayed")

	require.NoError(t, cred.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, cred.Remove(), "second removal is a no-op")
}

func TestEstablishWithoutAnySource(t *testing.T) {
	_, err := Establish(CredentialConfig{})
	assert.Error(t, err)
}

func TestCheckHeaderShapes(t *testing.T) {
	cred, err := Establish(CredentialConfig{User: "u", Password: "p"})
	require.NoError(t, err)
	a := NewAuthenticator(cred, -1)

	assert.True(t, a.Check(basic("u:p")))
	assert.True(t, a.Check("Basic   "+base64.StdEncoding.EncodeToString([]byte("u:p"))+"  "))

	assert.False(t, a.Check(""))
	assert.False(t, a.Check("basic "+base64.StdEncoding.EncodeToString([]byte("u:p"))))
	assert.False(t, a.Check("Bearer u:p"))
	assert.False(t, a.Check("Basic !!!notbase64"))
	assert.False(t, a.Check(basic("u:")))
	assert.Zero(t, a.FailureDelay())
}

func TestPenalizeHonoursContext(t *testing.T) {
	cred, err := Establish(CredentialConfig{User: "u", Password: "short"})
	require.NoError(t, err)
	a := NewAuthenticator(cred, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	a.Penalize(ctx)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPenalizeSleepsForShortSecret(t *testing.T) {
	cred, err := Establish(CredentialConfig{User: "u", Password: "short"})
	require.NoError(t, err)
	a := NewAuthenticator(cred, 20*time.Millisecond)

	start := time.Now()
	a.Penalize(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestTimingResistantEqualVisitsEveryByte(t *testing.T) {
	secret := []byte("__cookie__:0123456789abcdef")

	firstDiffers := append([]byte{}, secret...)
	firstDiffers[0] ^= 0xff
	lastDiffers := append([]byte{}, secret...)
	lastDiffers[len(lastDiffers)-1] ^= 0xff

	eqFirst, visitedFirst := compareAll(firstDiffers, secret)
	eqLast, visitedLast := compareAll(lastDiffers, secret)
	eqSame, visitedSame := compareAll(secret, secret)

	assert.False(t, eqFirst)
	assert.False(t, eqLast)
	assert.True(t, eqSame)
	assert.Equal(t, len(secret), visitedFirst)
	assert.Equal(t, visitedFirst, visitedLast)
	assert.Equal(t, visitedFirst, visitedSame)
}

func TestTimingResistantEqualLengths(t *testing.T) {
	assert.True(t, TimingResistantEqual(nil, nil))
	assert.False(t, TimingResistantEqual([]byte("a"), nil))
	assert.False(t, TimingResistantEqual(nil, []byte("a")))
	assert.False(t, TimingResistantEqual([]byte("abcabc"), []byte("abc")))
	assert.False(t, TimingResistantEqual([]byte("ab"), []byte("abc")))
	assert.True(t, TimingResistantEqual([]byte("abc"), []byte("abc")))
}

func TestAllowListLoopbackAlwaysAllowed(t *testing.T) {
	al, err := NewAllowList(nil)
	require.NoError(t, err)
	assert.True(t, al.LoopbackOnly())

	for _, addr := range []string{"127.0.0.1", "127.8.9.10", "::1", "::ffff:127.0.0.1", "::127.0.0.1"} {
		assert.True(t, al.Allowed(net.ParseIP(addr)), addr)
	}
	for _, addr := range []string{"10.0.0.1", "::2", "2001:db8::1", "::ffff:10.0.0.1"} {
		assert.False(t, al.Allowed(net.ParseIP(addr)), addr)
	}
	assert.False(t, al.Allowed(nil))
}

func TestAllowListPatterns(t *testing.T) {
	al, err := NewAllowList([]string{"192.168.1.*", "10.0.?.5", "172.16.0.0/12", "2001:db8::7", " "})
	require.NoError(t, err)
	assert.False(t, al.LoopbackOnly())

	allowed := []string{"192.168.1.20", "::ffff:192.168.1.20", "10.0.3.5", "172.20.1.1", "2001:db8::7"}
	for _, addr := range allowed {
		assert.True(t, al.Allowed(net.ParseIP(addr)), addr)
	}

	denied := []string{"192.168.2.20", "10.0.33.5", "172.32.0.1", "2001:db8::8"}
	for _, addr := range denied {
		assert.False(t, al.Allowed(net.ParseIP(addr)), addr)
	}
}

func TestAllowListRejectsMalformedEntries(t *testing.T) {
	_, err := NewAllowList([]string{"10.0.0.0/99"})
	assert.Error(t, err)

	_, err = NewAllowList([]string{"10.0.[.1"})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "10.1.2.3", Normalize(net.ParseIP("::ffff:10.1.2.3")).String())
	assert.Equal(t, "10.1.2.3", Normalize(net.ParseIP("::10.1.2.3")).String())
	assert.Equal(t, "::1", Normalize(net.ParseIP("::1")).String())
	assert.Equal(t, "::", Normalize(net.ParseIP("::")).String())
	assert.Equal(t, "fe80::1", Normalize(net.ParseIP("fe80::1")).String())
}
