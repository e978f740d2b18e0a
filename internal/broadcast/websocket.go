package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var errObserverClosed = errors.New("observer closed")

// WSObserver adapts a websocket connection to Observer. Writes are
// serialized and bounded by a write deadline.
type WSObserver struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewWSObserver wraps conn.
func NewWSObserver(conn *websocket.Conn) *WSObserver {
	return &WSObserver{conn: conn}
}

// Send writes data as a single text frame.
func (o *WSObserver) Send(data []byte) error {
	if o == nil || o.conn == nil {
		return errObserverClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errObserverClosed
	}
	if err := o.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return o.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection once.
func (o *WSObserver) Close() error {
	if o == nil || o.conn == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return o.conn.Close()
}

// Drain reads and discards client frames until the connection fails, which
// is how a closed browser tab is noticed.
func (o *WSObserver) Drain() {
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}
