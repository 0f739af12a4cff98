package workerdispatch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn Submit needs; tests substitute a
// fake so the frame-sequencing logic is verifiable without a real socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
}

// Dialer opens a task connection to the worker. It wraps gorilla's default
// dialer the way the teacher's WebSocketHandler wraps its upgrader.
type Dialer struct {
	underlying *websocket.Dialer
	Header     http.Header
}

// NewDialer returns a Dialer with gorilla's default handshake timeout.
func NewDialer() *Dialer {
	return &Dialer{underlying: websocket.DefaultDialer}
}

// Dial opens a new WebSocket connection to the worker's task endpoint.
func (d *Dialer) Dial(url string) (wsConn, error) {
	conn, _, err := d.underlying.Dial(url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("workerdispatch: dial %s: %w", url, err)
	}
	return conn, nil
}

var _ wsConn = (*websocket.Conn)(nil)
