// Package indexer is a graphql-transport-ws client for the indexing
// service, plus the typed subscriptions and queries the state layer uses.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Klingon-tech/klingnet-dexstate/internal/metrics"
)

// ErrClosed is returned for operations on a closed client.
var ErrClosed = errors.New("indexer client closed")

// Subprotocol is the WebSocket subprotocol spoken by the client.
const Subprotocol = "graphql-transport-ws"

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// GraphQLError carries the errors reported by the service for one
// operation.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

func parseErrors(v gjson.Result) *GraphQLError {
	var msgs []string
	v.ForEach(func(_, e gjson.Result) bool {
		if m := e.Get("message").String(); m != "" {
			msgs = append(msgs, m)
		}
		return true
	})
	if len(msgs) == 0 {
		if !v.Exists() {
			return nil
		}
		msgs = []string{v.Raw}
	}
	return &GraphQLError{Messages: msgs}
}

type outgoing struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type operation struct {
	onData  func(data gjson.Result)
	onError func(err error)
	onDone  func()
}

// Client is a graphql-transport-ws connection.
type Client struct {
	conn    *websocket.Conn
	logger  zerolog.Logger
	metrics *metrics.Collector

	writeMu sync.Mutex

	mu     sync.Mutex
	ops    map[string]*operation
	closed bool
	done   chan struct{}
}

// NormalizeURL turns an http(s) endpoint into its ws(s) form.
func NormalizeURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Dial connects and completes the connection_init handshake within timeout.
func Dial(ctx context.Context, url string, timeout time.Duration, logger zerolog.Logger, m *metrics.Collector) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		Subprotocols:     []string{Subprotocol},
	}
	url = NormalizeURL(url)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	if err := handshake(conn, timeout); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:    conn,
		logger:  logger,
		metrics: m,
		ops:     make(map[string]*operation),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func handshake(conn *websocket.Conn, timeout time.Duration) error {
	if err := conn.WriteJSON(outgoing{Type: msgConnectionInit, Payload: map[string]interface{}{}}); err != nil {
		return fmt.Errorf("connection_init: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await connection_ack: %w", err)
		}
		switch t := gjson.GetBytes(data, "type").String(); t {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := conn.WriteJSON(outgoing{Type: msgPong}); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		default:
			return fmt.Errorf("unexpected %q before connection_ack", t)
		}
	}
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Subscribe starts an operation. onData receives the data object of every
// result; onError receives a *GraphQLError when the service rejects the
// operation or a result carries errors. Callbacks run on the read
// goroutine and must not block. The returned func stops the operation.
func (c *Client) Subscribe(query string, vars map[string]interface{}, onData func(gjson.Result), onError func(error)) (func(), error) {
	return c.start(query, vars, &operation{onData: onData, onError: onError})
}

func (c *Client) start(query string, vars map[string]interface{}, op *operation) (func(), error) {
	id := uuid.NewString()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.ops[id] = op
	c.mu.Unlock()

	err := c.write(outgoing{
		ID:      id,
		Type:    msgSubscribe,
		Payload: subscribePayload{Query: query, Variables: vars},
	})
	if err != nil {
		c.remove(id)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.remove(id) {
				c.write(outgoing{ID: id, Type: msgComplete})
			}
		})
	}, nil
}

// Query runs a single-result operation.
func (c *Client) Query(ctx context.Context, query string, vars map[string]interface{}) (gjson.Result, error) {
	type result struct {
		data gjson.Result
		err  error
	}
	ch := make(chan result, 1)
	deliver := func(r result) {
		select {
		case ch <- r:
		default:
		}
	}

	stop, err := c.start(query, vars, &operation{
		onData:  func(d gjson.Result) { deliver(result{data: d}) },
		onError: func(err error) { deliver(result{err: err}) },
		onDone:  func() { deliver(result{err: errors.New("operation completed without result")}) },
	})
	if err != nil {
		return gjson.Result{}, err
	}
	defer stop()

	select {
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-c.done:
		return gjson.Result{}, ErrClosed
	case r := <-ch:
		return r.data, r.err
	}
}

// Close closes the connection.
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

func (c *Client) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ops[id]
	delete(c.ops, id)
	return ok
}

func (c *Client) lookup(id string) *operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[id]
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
		ops := c.ops
		c.ops = make(map[string]*operation)
		c.mu.Unlock()
		close(c.done)
		for _, op := range ops {
			if op.onError != nil {
				op.onError(ErrClosed)
			}
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Indexer connection closed")
			}
			return
		}

		msg := gjson.ParseBytes(data)
		typ := msg.Get("type").String()
		c.metrics.IndexerMessage(typ)

		switch typ {
		case msgPing:
			c.write(outgoing{Type: msgPong})
		case msgPong, msgConnectionAck:
		case msgNext:
			op := c.lookup(msg.Get("id").String())
			if op == nil {
				continue
			}
			payload := msg.Get("payload")
			if gqlErr := parseErrors(payload.Get("errors")); gqlErr != nil {
				if op.onError != nil {
					op.onError(gqlErr)
				}
				continue
			}
			if op.onData != nil {
				op.onData(payload.Get("data"))
			}
		case msgError:
			id := msg.Get("id").String()
			op := c.lookup(id)
			c.remove(id)
			if op != nil && op.onError != nil {
				gqlErr := parseErrors(msg.Get("payload"))
				if gqlErr == nil {
					gqlErr = &GraphQLError{Messages: []string{"operation rejected"}}
				}
				op.onError(gqlErr)
			}
		case msgComplete:
			id := msg.Get("id").String()
			op := c.lookup(id)
			c.remove(id)
			if op != nil && op.onDone != nil {
				op.onDone()
			}
		default:
			c.logger.Debug().Str("type", typ).Msg("Ignoring unknown indexer message")
		}
	}
}
