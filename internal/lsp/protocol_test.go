package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`)))
	require.NoError(t, WriteFrame(&buf, []byte(`{"b":2}`)))

	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: 7\r\n\r\n"))

	r := bufio.NewReader(&buf)
	first, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))

	second, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(second))

	_, err = ReadFrame(r)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameIgnoresOtherHeaders(t *testing.T) {
	input := "content-length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}"
	body, err := ReadFrame(bufio.NewReader(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		line string
		want int
		ok   bool
	}{
		{"Content-Length: 10", 10, true},
		{"CONTENT-LENGTH:3", 3, true},
		{"Content-Type: text", 0, false},
		{"Content-Length: -1", 0, false},
		{"Content-Length: abc", 0, false},
		{"garbage", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			n, ok := decodeHeader(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

// peer is the server side of a Conn under test
type peer struct {
	t *testing.T
	r *bufio.Reader
	w io.WriteCloser
}

func newConnPair(t *testing.T) (*Conn, *peer) {
	t.Helper()
	connR, peerW := io.Pipe()
	peerR, connW := io.Pipe()

	conn := NewConn(connR, connW, zerolog.Nop())
	p := &peer{t: t, r: bufio.NewReader(peerR), w: peerW}
	t.Cleanup(func() {
		_ = conn.Close()
		_ = peerW.Close()
		_ = peerR.Close()
	})
	return conn, p
}

func (p *peer) read() map[string]any {
	p.t.Helper()
	body, err := ReadFrame(p.r)
	require.NoError(p.t, err)
	var msg map[string]any
	require.NoError(p.t, json.Unmarshal(body, &msg))
	return msg
}

func (p *peer) write(v any) {
	p.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(p.t, err)
	require.NoError(p.t, WriteFrame(p.w, data))
}

func TestConnCall(t *testing.T) {
	conn, p := newConnPair(t)

	type result struct {
		Value string `json:"value"`
	}
	done := make(chan error, 1)
	var got result
	go func() {
		done <- conn.Call(context.Background(), "test/echo", map[string]string{"x": "y"}, &got)
	}()

	req := p.read()
	assert.Equal(t, "test/echo", req["method"])
	assert.Equal(t, "2.0", req["jsonrpc"])
	p.write(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": map[string]string{"value": "ok"}})

	require.NoError(t, <-done)
	assert.Equal(t, "ok", got.Value)
}

func TestConnCallError(t *testing.T) {
	conn, p := newConnPair(t)

	done := make(chan error, 1)
	go func() {
		done <- conn.Call(context.Background(), "test/fail", nil, nil)
	}()

	req := p.read()
	p.write(map[string]any{
		"jsonrpc": "2.0",
		"id":      req["id"],
		"error":   map[string]any{"code": CodeMethodNotFound, "message": "nope"},
	})

	err := <-done
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
	assert.Equal(t, "LSP error -32601: nope", err.Error())
}

func TestConnAnswersServerRequests(t *testing.T) {
	_, p := newConnPair(t)

	p.write(map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "workspace/configuration",
		"params":  map[string]any{"items": []any{map[string]string{}, map[string]string{}}},
	})
	reply := p.read()
	assert.EqualValues(t, 7, reply["id"])
	assert.Equal(t, []any{nil, nil}, reply["result"])

	p.write(map[string]any{"jsonrpc": "2.0", "id": "tok", "method": "window/workDoneProgress/create"})
	reply = p.read()
	assert.Equal(t, "tok", reply["id"])
	assert.Contains(t, reply, "result")
	assert.Nil(t, reply["result"])
}

func TestConnIgnoresNotificationsWhileWaiting(t *testing.T) {
	conn, p := newConnPair(t)

	done := make(chan error, 1)
	go func() {
		done <- conn.Call(context.Background(), "test/slow", nil, nil)
	}()

	req := p.read()
	p.write(map[string]any{"jsonrpc": "2.0", "method": "window/logMessage", "params": map[string]any{"type": 3, "message": "hi"}})
	p.write(map[string]any{"jsonrpc": "2.0", "method": "textDocument/publishDiagnostics", "params": map[string]any{}})
	p.write(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": nil})

	require.NoError(t, <-done)
}

func TestConnCallCancelled(t *testing.T) {
	conn, p := newConnPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- conn.Call(ctx, "test/hang", nil, nil)
	}()

	req := p.read()
	cancel()

	cancelMsg := p.read()
	assert.Equal(t, "$/cancelRequest", cancelMsg["method"])
	params, ok := cancelMsg["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, req["id"], params["id"])

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConnClosedByServer(t *testing.T) {
	conn, p := newConnPair(t)

	done := make(chan error, 1)
	go func() {
		done <- conn.Call(context.Background(), "test/orphan", nil, nil)
	}()
	p.read()
	require.NoError(t, p.w.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not return after the server went away")
	}

	err := conn.Call(context.Background(), "test/after", nil, nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}
