package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ErrNotConnected is returned for any send attempted while the channel
// is down. Sends never queue and never silently drop.
var ErrNotConnected = errors.New("channel not connected")

// Conn is one live channel connection. The websocket implementation
// below is the production one; tests substitute fakes to assert
// call-order guarantees.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a fresh Conn. Injected so channel lifecycle logic stays
// independent of the websocket stack.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsConn) Read(ctx context.Context) ([]byte, error) {
	if s == nil || s.conn == nil {
		return nil, ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		mt, data, err := s.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (s *wsConn) Write(ctx context.Context, data []byte) error {
	if s == nil || s.conn == nil {
		return ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsConn) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}

// WSDialer dials websocket endpoints with a bearer token attached.
type WSDialer struct {
	Token           string
	MaxMessageBytes int64
	DialTimeout     time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("channel url is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := 15 * time.Second
	if d != nil && d.DialTimeout > 0 {
		timeout = d.DialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var opts websocket.DialOptions
	if d != nil && strings.TrimSpace(d.Token) != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + strings.TrimSpace(d.Token)}}
	}
	conn, _, err := websocket.Dial(dialCtx, url, &opts)
	if err != nil {
		return nil, err
	}
	maxMsg := int64(4 << 20)
	if d != nil && d.MaxMessageBytes > 0 {
		maxMsg = d.MaxMessageBytes
	}
	conn.SetReadLimit(maxMsg)
	return &wsConn{conn: conn}, nil
}
