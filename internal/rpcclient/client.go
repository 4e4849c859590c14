// Package rpcclient provides a JSON-RPC 2.0 client over WebSocket with
// subscription support.
package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrClosed is returned for calls on a closed client or a dropped
// connection.
var ErrClosed = errors.New("rpc client closed")

// maxEarlyNotifications bounds the notifications buffered for a
// subscription id the client has not registered yet.
const maxEarlyNotifications = 16

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

// message is any frame received from the server: a response to a request
// or a subscription notification.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type notification struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCError is returned when the server responds with an error.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a JSON-RPC 2.0 WebSocket client.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	// dispatchMu orders notification delivery against subscription
	// registration.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan message
	subs    map[string]func(json.RawMessage)
	early   map[string][]json.RawMessage
	closed  bool
	err     error
	done    chan struct{}
}

// Dial connects to a WebSocket JSON-RPC endpoint.
func Dial(ctx context.Context, url string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]chan message),
		subs:    make(map[string]func(json.RawMessage)),
		early:   make(map[string][]json.RawMessage),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes a JSON-RPC method and unmarshals the result into the provided pointer.
// If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := request{JSONRPC: "2.0", Method: method, Params: params, ID: id}
	if err := c.write(req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
		}
		return nil
	}
}

// Subscribe calls a subscription method and routes its notifications to
// fn. fn runs on the read goroutine and must not block. It returns the
// server-assigned subscription id.
func (c *Client) Subscribe(ctx context.Context, method string, params interface{}, fn func(json.RawMessage)) (string, error) {
	var id string
	if err := c.Call(ctx, method, params, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%s: empty subscription id", method)
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.subs[id] = fn
	queued := c.early[id]
	delete(c.early, id)
	c.mu.Unlock()

	for _, raw := range queued {
		fn(raw)
	}
	return id, nil
}

// Unsubscribe stops routing notifications for id and calls the server's
// unsubscribe method.
func (c *Client) Unsubscribe(ctx context.Context, method, id string) error {
	c.mu.Lock()
	delete(c.subs, id)
	delete(c.early, id)
	c.mu.Unlock()

	var ok bool
	err := c.Call(ctx, method, []string{id}, &ok)

	c.mu.Lock()
	delete(c.early, id)
	c.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: server rejected unsubscribe of %s", method, id)
	}
	return nil
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if !c.closed {
				c.err = err
			}
			c.mu.Unlock()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("RPC connection closed")
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed RPC frame")
			continue
		}

		if msg.ID != nil {
			c.mu.Lock()
			ch := c.pending[*msg.ID]
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
			continue
		}
		if msg.Method != "" {
			c.dispatch(msg)
		}
	}
}

func (c *Client) dispatch(msg message) {
	var n notification
	if err := json.Unmarshal(msg.Params, &n); err != nil || n.Subscription == "" {
		c.logger.Warn().Str("method", msg.Method).Msg("Dropping malformed notification")
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	fn := c.subs[n.Subscription]
	if fn == nil {
		if q := c.early[n.Subscription]; len(q) < maxEarlyNotifications {
			c.early[n.Subscription] = append(q, n.Result)
		}
	}
	c.mu.Unlock()

	if fn != nil {
		fn(n.Result)
	}
}
