package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const jsonrpcVersion = "2.0"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// rpcMessage is any inbound message: a response to one of our calls, a
// request from the server, or a notification
type rpcMessage struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *RPCError        `json:"error,omitempty"`
}

// Conn is a JSON-RPC 2.0 connection to a language server using the LSP
// Content-Length framing
type Conn struct {
	w      io.WriteCloser
	r      *bufio.Reader
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]chan *rpcMessage

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn starts reading from r and returns a connection that writes to w
func NewConn(r io.Reader, w io.WriteCloser, logger zerolog.Logger) *Conn {
	c := &Conn{
		w:       w,
		r:       bufio.NewReader(r),
		logger:  logger,
		pending: make(map[int64]chan *rpcMessage),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends a request and waits for its response. A nil result discards
// the response body
func (c *Conn) Call(ctx context.Context, method string, params any, result any) error {
	select {
	case <-c.closed:
		return c.err()
	default:
	}

	id := c.nextID.Add(1)
	ch := make(chan *rpcMessage, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := rpcRequest{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.send(req); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		_ = c.Notify("$/cancelRequest", map[string]int64{"id": id})
		return ctx.Err()
	case <-c.closed:
		return c.err()
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification; no response is expected
func (c *Conn) Notify(method string, params any) error {
	return c.send(rpcNotification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	})
}

// Close closes the write side and fails all pending calls
func (c *Conn) Close() error {
	err := c.w.Close()
	c.shutdown(ErrConnectionClosed)
	return err
}

func (c *Conn) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = cause
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *Conn) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.w, data)
}

func (c *Conn) readLoop() {
	for {
		body, err := ReadFrame(c.r)
		if err != nil {
			if err != io.EOF {
				c.logger.Debug().Err(err).Msg("lsp: read failed")
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("lsp: failed to unmarshal message")
			continue
		}

		switch {
		case msg.Method != "" && msg.ID != nil:
			c.handleServerRequest(&msg)
		case msg.Method != "":
			c.handleNotification(&msg)
		case msg.ID != nil:
			c.routeResponse(&msg)
		}
	}
}

func (c *Conn) routeResponse(msg *rpcMessage) {
	var id int64
	if err := json.Unmarshal(*msg.ID, &id); err != nil {
		c.logger.Debug().Err(err).Msg("lsp: failed to unmarshal response ID")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// handleServerRequest answers requests the server sends to the client.
// Servers such as pyright block until workspace/configuration is answered
func (c *Conn) handleServerRequest(msg *rpcMessage) {
	reply := rpcReply{JSONRPC: jsonrpcVersion, ID: *msg.ID}

	switch msg.Method {
	case "workspace/configuration":
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		reply.Result = make([]any, len(params.Items))
	case "workspace/workspaceFolders":
		reply.Result = []WorkspaceFolder{}
	default:
		// window/workDoneProgress/create, client/registerCapability, ...
		reply.Result = nil
	}

	c.logger.Debug().Str("method", msg.Method).Msg("lsp: answered server request")
	if err := c.send(reply); err != nil {
		c.logger.Debug().Err(err).Str("method", msg.Method).Msg("lsp: reply to server request failed")
	}
}

func (c *Conn) handleNotification(msg *rpcMessage) {
	if msg.Method == "window/logMessage" || msg.Method == "window/showMessage" {
		var params struct {
			Type    int    `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			c.logger.Debug().Int("type", params.Type).Str("message", params.Message).Msg("lsp: server message")
			return
		}
	}
	c.logger.Trace().Str("method", msg.Method).Msg("lsp: notification ignored")
}

// WriteFrame writes one Content-Length framed message
func WriteFrame(w io.Writer, body []byte) error {
	if _, err := io.WriteString(w, encodeHeader(len(body))); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame reads one Content-Length framed message. Headers other than
// Content-Length are ignored
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if contentLength < 0 {
				continue
			}
			break
		}
		if n, ok := decodeHeader(line); ok {
			contentLength = n
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func encodeHeader(bodyLen int) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n", bodyLen)
}

// decodeHeader parses a Content-Length header line
func decodeHeader(line string) (int, bool) {
	name, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
