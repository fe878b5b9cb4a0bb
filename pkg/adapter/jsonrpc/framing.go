package jsonrpc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const authRealm = `Basic realm="jsonrpc"`

var errBodyTooLarge = errors.New("request body too large")

// readRequest reads one HTTP request and its whole body from r. The body is
// limited to max bytes.
func readRequest(r *bufio.Reader, max int64) (*http.Request, []byte, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return nil, nil, err
	}
	defer req.Body.Close()

	if req.ContentLength > max {
		return req, nil, fmt.Errorf("%w: %d bytes declared", errBodyTooLarge, req.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, max+1))
	if err != nil {
		return req, nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > max {
		return req, nil, errBodyTooLarge
	}
	return req, body, nil
}

// keepAlive reports whether the client wants the connection kept open.
// http.ReadRequest already folds "Connection: close" and HTTP/1.0 without
// "Connection: keep-alive" into req.Close.
func keepAlive(req *http.Request) bool {
	return req != nil && !req.Close
}

// writeReply serializes an HTTP/1.1 response carrying body.
func writeReply(w io.Writer, status int, body []byte, keepOpen bool, version string) error {
	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		ContentLength: int64(len(body)),
		Close:         !keepOpen,
	}
	if len(body) > 0 {
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	h := resp.Header
	h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	h.Set("Content-Type", "application/json")
	h.Set("Server", "honey-json-rpc/"+version)
	if keepOpen {
		h.Set("Connection", "keep-alive")
	} else {
		h.Set("Connection", "close")
	}
	if status == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", authRealm)
	}

	var buf bytes.Buffer
	if err := resp.Write(&buf); err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
