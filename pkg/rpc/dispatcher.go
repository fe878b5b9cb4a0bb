package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/metrics"
	"github.com/tidwall/gjson"
)

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	// DisableSafeMode lets every command run while a warning is active.
	DisableSafeMode bool

	// Metrics receives per-method timings. Nil means no metrics.
	Metrics metrics.RPCMetrics
}

// Dispatcher turns HTTP bodies into JSON-RPC replies.
//
// It is safe for concurrent use: the table is immutable and all mutable
// node state is reached only through handlers, under the Guard.
type Dispatcher struct {
	table   *Table
	guard   *Guard
	opts    DispatcherOptions
	metrics metrics.RPCMetrics
}

// NewDispatcher wires a dispatcher around an immutable table.
func NewDispatcher(table *Table, guard *Guard, opts DispatcherOptions) *Dispatcher {
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopRPCMetrics()
	}
	if guard == nil {
		guard = NewGuard()
	}
	return &Dispatcher{table: table, guard: guard, opts: opts, metrics: m}
}

// Table returns the command table the dispatcher serves.
func (d *Dispatcher) Table() *Table {
	return d.table
}

// Handle parses body as a single request or a batch and returns the
// serialized reply together with the HTTP status to send it with.
func (d *Dispatcher) Handle(ctx context.Context, body []byte, env Env) ([]byte, int) {
	if !gjson.ValidBytes(body) {
		return encode(replyFor(nil, NewError(ErrCodeParse, "Parse error"), nil)), http.StatusBadRequest
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsObject():
		resp := d.handleOne(ctx, root, env)
		status := http.StatusOK
		if resp.Error != nil {
			status = HTTPStatus(resp.Error.Code)
		}
		return encode(resp), status

	case root.IsArray():
		elems := root.Array()
		d.metrics.RecordBatch(len(elems))

		out := make([]Response, 0, len(elems))
		for _, elem := range elems {
			out = append(out, d.handleOne(ctx, elem, env))
		}
		return encode(out), http.StatusOK

	default:
		return encode(replyFor(nil, NewError(ErrCodeParse, "Top-level object parse error"), nil)), http.StatusBadRequest
	}
}

func (d *Dispatcher) handleOne(ctx context.Context, v gjson.Result, env Env) Response {
	req, perr := ParseRequest(v)
	if perr != nil {
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		return replyFor(nil, perr, id)
	}

	result, err := d.Execute(ctx, req, env)
	if err != nil {
		return replyFor(nil, err, req.ID)
	}
	return replyFor(result, nil, req.ID)
}

// Execute runs one validated request.
//
// Checks happen in a fixed order: existence, capability, safe mode, arity.
// A command whose capability is absent fails exactly like an unknown one.
func (d *Dispatcher) Execute(ctx context.Context, req *Request, env Env) (any, *Error) {
	start := time.Now()

	cmd, ok := d.table.Lookup(req.Method)
	if !ok || !env.Has(cmd.Requires) {
		d.metrics.RecordRequest("unknown", time.Since(start), ErrCodeMethodNotFound)
		return nil, NewError(ErrCodeMethodNotFound, "Method not found")
	}

	result, rpcErr := d.execute(ctx, cmd, req.Params, env)

	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	d.metrics.RecordRequest(cmd.Name, time.Since(start), code)

	return result, rpcErr
}

func (d *Dispatcher) execute(ctx context.Context, cmd *Command, params Params, env Env) (any, *Error) {
	if env.Warning != "" && !d.opts.DisableSafeMode && !cmd.SafeModeExempt {
		return nil, NewError(ErrCodeForbiddenBySafeMode, "Safe mode: %s", env.Warning)
	}

	if !cmd.arityOK(len(params)) {
		return nil, NewError(ErrCodeMisc, cmd.Usage)
	}

	env.Table = d.table

	invoke := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic in RPC handler %s: %v", cmd.Name, r)
				result, err = nil, fmt.Errorf("%v", r)
			}
		}()
		return cmd.Handler(ctx, params, env)
	}

	var (
		result any
		err    error
	)
	if cmd.ThreadSafe {
		result, err = invoke()
	} else {
		result, err = d.guard.Do(env.Has(CapabilityWallet), invoke)
	}

	if err != nil {
		return nil, asRPCError(err)
	}
	return result, nil
}

// asRPCError keeps structured errors and wraps everything else as
// ErrCodeMisc carrying the error text.
func asRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return NewError(ErrCodeMisc, err.Error())
}

var encodeFailure = []byte(`{"result":null,"error":{"code":-32603,"message":"failed to encode reply"},"id":null}` + "\n")

func encode(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode JSON-RPC reply: %v", err)
		return encodeFailure
	}
	return append(out, '\n')
}
