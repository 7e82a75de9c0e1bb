package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// wsConn wraps a websocket connection with a watchdog that closes the
// underlying socket when ctx is cancelled, unblocking any pending read.
type wsConn struct {
	*websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// dialWS connects to url and ties the connection lifetime to ctx.
func dialWS(ctx context.Context, url string) (*wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feed: dial %s: %w", url, err)
	}

	c := &wsConn{Conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-c.done:
		}
	}()
	return c, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.Conn.Close()
}

// closed is signalled once Close has been called.
func (c *wsConn) closed() <-chan struct{} { return c.done }

func (c *wsConn) writeJSON(v any) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteJSON(v)
}

func (c *wsConn) writeText(s string) error {
	c.SetWriteDeadline(time.Now().Add(writeWait))
	return c.WriteMessage(websocket.TextMessage, []byte(s))
}

// readText blocks for the next text or binary frame.
func (c *wsConn) readText() ([]byte, error) {
	_, data, err := c.ReadMessage()
	return data, err
}

// flexFloat decodes numeric JSON fields that venues send either quoted or
// bare. Absent, null, and unparseable values all decode to a nil pointer.
type flexFloat struct {
	val *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.val = &v
	return nil
}

func (f flexFloat) ptr() *float64 { return f.val }

// minNotional returns the smaller of the two side notionals, counting a side
// only when both its price and size are known and non-zero.
func minNotional(bid, bidSize, ask, askSize *float64) *float64 {
	var out *float64
	consider := func(price, size *float64) {
		if price == nil || size == nil || *price == 0 || *size == 0 {
			return
		}
		n := *price * *size
		if out == nil || n < *out {
			out = &n
		}
	}
	consider(bid, bidSize)
	consider(ask, askSize)
	return out
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
