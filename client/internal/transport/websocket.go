package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Socket is one open, message-oriented connection.
type Socket interface {
	// ReadMessage blocks until a text frame arrives or the socket fails.
	ReadMessage() (string, error)
	WriteMessage(text string) error
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *wsSocket) ReadMessage() (string, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (s *wsSocket) WriteMessage(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *wsSocket) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
