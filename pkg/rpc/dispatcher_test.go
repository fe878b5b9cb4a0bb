package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/honeyd/pkg/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func newTestDispatcher(t *testing.T, opts DispatcherOptions, extra ...Command) *Dispatcher {
	t.Helper()

	cmds := []Command{
		{
			Name:           "getblockcount",
			Usage:          "getblockcount\nReturns the number of blocks in the longest block chain.",
			SafeModeExempt: true,
			Handler: func(context.Context, Params, Env) (any, error) {
				return 42, nil
			},
		},
		{
			Name:      "getblockhash",
			Usage:     "getblockhash <index>\nReturns hash of block in best-block-chain at <index>.",
			MinParams: 1,
			MaxParams: 1,
			Handler: func(_ context.Context, p Params, _ Env) (any, error) {
				if err := p.Check(KindInt); err != nil {
					return nil, err
				}
				if p.At(0).Int() > 42 {
					return nil, errors.New("Block number out of range.")
				}
				return "00ff", nil
			},
		},
		{
			Name:     "getbalance",
			Usage:    "getbalance\nReturns the balance.",
			Requires: CapabilityWallet,
			Handler: func(context.Context, Params, Env) (any, error) {
				return 1.5, nil
			},
		},
		{
			Name:           "help",
			Usage:          "help [command]\nList commands.",
			MaxParams:      1,
			SafeModeExempt: true,
			ThreadSafe:     true,
			Handler: func(_ context.Context, p Params, env Env) (any, error) {
				return env.Table.Help(p.At(0).String(), env), nil
			},
		},
		{
			Name:  "boom",
			Usage: "boom",
			Handler: func(context.Context, Params, Env) (any, error) {
				panic("kaboom")
			},
		},
	}
	cmds = append(cmds, extra...)

	table, err := NewTable(cmds...)
	require.NoError(t, err)
	return NewDispatcher(table, NewGuard(), opts)
}

func decodeOne(t *testing.T, body []byte) reply {
	t.Helper()
	var r reply
	require.NoError(t, json.Unmarshal(body, &r), string(body))
	return r
}

func TestHandleSingleRequest(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	body, status := d.Handle(context.Background(), []byte(`{"method":"getblockcount","params":[],"id":1}`), Env{})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":42,"error":null,"id":1}`, string(body))
	assert.Equal(t, byte('\n'), body[len(body)-1])
}

func TestHandleEchoesIDVerbatim(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	for _, id := range []string{`null`, `"abc"`, `{"nested":[1,2]}`, `3.25`} {
		body, _ := d.Handle(context.Background(), []byte(`{"method":"getblockcount","id":`+id+`}`), Env{})
		assert.JSONEq(t, id, string(decodeOne(t, body).ID))
	}

	body, _ := d.Handle(context.Background(), []byte(`{"method":"getblockcount"}`), Env{})
	assert.Equal(t, "null", string(decodeOne(t, body).ID))
}

func TestHandleMissingMethodIsInvalidRequest(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	bodies := []string{
		`{}`,
		`{"params":[],"id":7}`,
		`{"id":1,"params":[1,2,3],"jsonrpc":"2.0"}`,
		`{"method":null,"id":1}`,
	}
	for _, in := range bodies {
		body, status := d.Handle(context.Background(), []byte(in), Env{})
		r := decodeOne(t, body)
		require.NotNil(t, r.Error, in)
		assert.Equal(t, ErrCodeInvalidRequest, r.Error.Code, in)
		assert.Equal(t, http.StatusBadRequest, status, in)
	}
}

func TestHandleRequestValidation(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	tests := []struct {
		in      string
		code    int
		message string
	}{
		{`{"method":5,"id":1}`, ErrCodeInvalidRequest, "Method must be a string"},
		{`{"method":"getblockcount","params":{},"id":1}`, ErrCodeInvalidRequest, "Params must be an array"},
		{`{"method":"getblockcount",`, ErrCodeParse, "Parse error"},
		{`"getblockcount"`, ErrCodeParse, "Top-level object parse error"},
		{`42`, ErrCodeParse, "Top-level object parse error"},
	}
	for _, tt := range tests {
		body, status := d.Handle(context.Background(), []byte(tt.in), Env{})
		r := decodeOne(t, body)
		require.NotNil(t, r.Error, tt.in)
		assert.Equal(t, tt.code, r.Error.Code, tt.in)
		assert.Equal(t, tt.message, r.Error.Message, tt.in)
		assert.Equal(t, http.StatusBadRequest, status, tt.in)
		assert.Equal(t, "null", string(r.Result))
	}
}

func TestHandleNullParamsIsEmpty(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	body, status := d.Handle(context.Background(), []byte(`{"method":"getblockcount","params":null,"id":1}`), Env{})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":42,"error":null,"id":1}`, string(body))
}

func TestHandleBatchIsolatesFailures(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	in := `[
		{"method":"getblockcount","id":"a"},
		{"method":"getblockhash","params":[1000],"id":"b"},
		{"method":"getblockhash","params":[1],"id":"c"},
		7
	]`
	body, status := d.Handle(context.Background(), []byte(in), Env{})
	assert.Equal(t, http.StatusOK, status)

	var replies []reply
	require.NoError(t, json.Unmarshal(body, &replies))
	require.Len(t, replies, 4)

	assert.Equal(t, `"a"`, string(replies[0].ID))
	assert.JSONEq(t, `42`, string(replies[0].Result))
	assert.Nil(t, replies[0].Error)

	assert.Equal(t, `"b"`, string(replies[1].ID))
	require.NotNil(t, replies[1].Error)
	assert.Equal(t, ErrCodeMisc, replies[1].Error.Code)
	assert.Equal(t, "Block number out of range.", replies[1].Error.Message)

	assert.Equal(t, `"c"`, string(replies[2].ID))
	assert.JSONEq(t, `"00ff"`, string(replies[2].Result))

	assert.Equal(t, "null", string(replies[3].ID))
	require.NotNil(t, replies[3].Error)
	assert.Equal(t, ErrCodeInvalidRequest, replies[3].Error.Code)
}

func TestHandleEmptyBatch(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})
	body, status := d.Handle(context.Background(), []byte(`[]`), Env{})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "[]\n", string(body))
}

func TestExecuteUnknownAndGatedMethodsLookAlike(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	_, unknown := d.Execute(context.Background(), &Request{Method: "nosuchmethod"}, Env{})
	_, gated := d.Execute(context.Background(), &Request{Method: "getbalance"}, Env{})

	require.NotNil(t, unknown)
	require.NotNil(t, gated)
	assert.Equal(t, ErrCodeMethodNotFound, unknown.Code)
	assert.Equal(t, *unknown, *gated)

	result, err := d.Execute(context.Background(), &Request{Method: "getbalance"}, Env{Wallet: wallet.NewMemoryWallet("")})
	require.Nil(t, err)
	assert.Equal(t, 1.5, result)
}

func TestExecuteSafeMode(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})
	env := Env{Warning: "WARNING: Displayed transactions may not be correct!"}

	_, err := d.Execute(context.Background(), &Request{Method: "getblockhash", Params: mustParams(t, `[1]`)}, env)
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeForbiddenBySafeMode, err.Code)
	assert.Contains(t, err.Message, env.Warning)
	assert.Equal(t, "Safe mode: "+env.Warning, err.Message)

	result, err := d.Execute(context.Background(), &Request{Method: "getblockcount"}, env)
	require.Nil(t, err)
	assert.Equal(t, 42, result)

	relaxed := newTestDispatcher(t, DispatcherOptions{DisableSafeMode: true})
	_, err = relaxed.Execute(context.Background(), &Request{Method: "getblockhash", Params: mustParams(t, `[1]`)}, env)
	assert.Nil(t, err)
}

func TestExecuteArityReturnsUsage(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	_, err := d.Execute(context.Background(), &Request{Method: "getblockhash"}, Env{})
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeMisc, err.Code)
	assert.Equal(t, "getblockhash <index>\nReturns hash of block in best-block-chain at <index>.", err.Message)
}

func TestExecuteTypeError(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	_, err := d.Execute(context.Background(), &Request{Method: "getblockhash", Params: mustParams(t, `["one"]`)}, Env{})
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeType, err.Code)
	assert.Equal(t, "Expected type int, got str", err.Message)
}

func TestExecuteRecoversPanics(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	_, err := d.Execute(context.Background(), &Request{Method: "boom"}, Env{})
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeMisc, err.Code)
	assert.Contains(t, err.Message, "kaboom")

	// The guard must have been released.
	result, err := d.Execute(context.Background(), &Request{Method: "getblockcount"}, Env{})
	require.Nil(t, err)
	assert.Equal(t, 42, result)
}

func TestHelpThroughDispatch(t *testing.T) {
	d := newTestDispatcher(t, DispatcherOptions{})

	result, err := d.Execute(context.Background(), &Request{Method: "help"}, Env{})
	require.Nil(t, err)
	assert.NotContains(t, result, "getbalance")
	assert.Contains(t, result, "getblockhash <index>")

	result, err = d.Execute(context.Background(), &Request{Method: "help"}, Env{Wallet: wallet.NewMemoryWallet("")})
	require.Nil(t, err)
	assert.Contains(t, result, "getbalance")
}

func TestNonThreadSafeHandlersAreSerialized(t *testing.T) {
	var inside, maxInside int32
	slow := Command{
		Name:  "slow",
		Usage: "slow",
		Handler: func(context.Context, Params, Env) (any, error) {
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil, nil
		},
	}
	d := newTestDispatcher(t, DispatcherOptions{}, slow)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Execute(context.Background(), &Request{Method: "slow"}, Env{})
			assert.Nil(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func mustParams(t *testing.T, raw string) Params {
	t.Helper()
	req, err := ParseRequest(parse(`{"method":"x","params":` + raw + `}`))
	require.Nil(t, err)
	return req.Params
}
