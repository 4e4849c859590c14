package rpcclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	klog "github.com/Klingon-tech/klingnet-dexstate/internal/log"
)

type serverReq struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// testServer speaks just enough JSON-RPC over WebSocket for the client.
type testServer struct {
	*httptest.Server
	mu       sync.Mutex
	unsubbed []string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req serverReq
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			switch req.Method {
			case "echo":
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": json.RawMessage(req.Params)})
			case "fail":
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]any{"code": -32601, "message": "method not found"}})
			case "ticks_subscribe":
				// Notification before the subscribe response exercises early buffering.
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": "ticks",
					"params": map[string]any{"subscription": "s1", "result": 1}})
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "s1"})
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": "ticks",
					"params": map[string]any{"subscription": "s1", "result": 2}})
			case "ticks_unsubscribe":
				var ids []string
				json.Unmarshal(req.Params, &ids)
				ts.mu.Lock()
				ts.unsubbed = append(ts.unsubbed, ids...)
				ts.mu.Unlock()
				conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": true})
			case "hang":
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, ts *testServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), ts.wsURL(), time.Second, klog.Nop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Call(t *testing.T) {
	c := dial(t, newTestServer(t))

	var got []string
	if err := c.Call(context.Background(), "echo", []string{"a", "b"}, &got); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("echo result = %v", got)
	}
}

func TestClient_RPCError(t *testing.T) {
	c := dial(t, newTestServer(t))

	err := c.Call(context.Background(), "fail", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("Code = %d, want -32601", rpcErr.Code)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	c := dial(t, newTestServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "hang", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Call error = %v, want deadline exceeded", err)
	}
}

func TestClient_Subscribe(t *testing.T) {
	ts := newTestServer(t)
	c := dial(t, ts)

	got := make(chan int, 4)
	id, err := c.Subscribe(context.Background(), "ticks_subscribe", nil, func(raw json.RawMessage) {
		var v int
		json.Unmarshal(raw, &v)
		got <- v
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if id != "s1" {
		t.Errorf("subscription id = %q, want s1", id)
	}

	for _, want := range []int{1, 2} {
		select {
		case v := <-got:
			if v != want {
				t.Errorf("notification = %d, want %d", v, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing notification %d", want)
		}
	}

	if err := c.Unsubscribe(context.Background(), "ticks_unsubscribe", id); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.unsubbed) != 1 || ts.unsubbed[0] != "s1" {
		t.Errorf("server unsubscribes = %v", ts.unsubbed)
	}
}

func TestClient_Closed(t *testing.T) {
	c := dial(t, newTestServer(t))
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
	if err := c.Call(context.Background(), "echo", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Call after Close error = %v, want ErrClosed", err)
	}
}

func TestDial_Refused(t *testing.T) {
	if _, err := Dial(context.Background(), "ws://127.0.0.1:1", 200*time.Millisecond, klog.Nop()); err == nil {
		t.Fatal("Dial to closed port succeeded")
	}
}
