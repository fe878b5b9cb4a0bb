package rpc

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Request is one parsed JSON-RPC call.
type Request struct {
	// ID is echoed verbatim. It is nil when the caller sent none, which is
	// serialized as null.
	ID     json.RawMessage
	Method string
	Params Params
}

// Response is one JSON-RPC reply. Exactly one of Result and Error is
// non-null on the wire.
type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     json.RawMessage `json:"id"`
}

// ParseRequest validates a single request object.
//
// The id is extracted before any validation so that error replies still
// correlate with the caller's request.
func ParseRequest(v gjson.Result) (*Request, *Error) {
	if !v.IsObject() {
		return nil, NewError(ErrCodeInvalidRequest, "Invalid Request object")
	}

	req := &Request{}
	if id := v.Get("id"); id.Exists() {
		req.ID = json.RawMessage(id.Raw)
	}

	method := v.Get("method")
	if !method.Exists() || method.Type == gjson.Null {
		return req, NewError(ErrCodeInvalidRequest, "Missing method")
	}
	if method.Type != gjson.String {
		return req, NewError(ErrCodeInvalidRequest, "Method must be a string")
	}
	req.Method = method.String()

	params := v.Get("params")
	switch {
	case !params.Exists(), params.Type == gjson.Null:
		req.Params = Params{}
	case params.IsArray():
		req.Params = Params(params.Array())
	default:
		return req, NewError(ErrCodeInvalidRequest, "Params must be an array")
	}

	return req, nil
}

// replyFor serializes one response. A result that cannot be marshalled is
// reported as an internal error instead.
func replyFor(result any, rpcErr *Error, id json.RawMessage) Response {
	resp := Response{ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = NewError(ErrCodeInternal, "failed to encode result: %v", err)
		return resp
	}
	resp.Result = raw
	return resp
}
