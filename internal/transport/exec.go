package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/AximoxAI/orbital/internal/wire"
)

type ExecCallbacks struct {
	OnConnect    func()
	OnDisconnect func()
	OnEvent      func(wire.ExecEvent)
}

type ExecClientOptions struct {
	URL    string
	Dialer Dialer
	Logf   func(format string, args ...any)
}

// ExecClient owns one execution channel. Opens are forced-fresh: a new
// dial per open, never a reused transport session, because execution is
// scoped to exactly one task run. There is no reconnect; a dropped
// channel stays down until the owner opens a new one.
type ExecClient struct {
	url    string
	dialer Dialer
	logf   func(format string, args ...any)
	cb     ExecCallbacks

	mu     sync.Mutex
	conn   Conn
	closed bool
	done   chan struct{}
}

func NewExecClient(opts ExecClientOptions, cb ExecCallbacks) (*ExecClient, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("execution url is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WSDialer{}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &ExecClient{url: url, dialer: dialer, logf: logf, cb: cb}, nil
}

func (c *ExecClient) Open(ctx context.Context) error {
	if c == nil {
		return errors.New("exec client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		// A connect error is a disconnect signal, not a half-open state.
		if c.cb.OnDisconnect != nil {
			c.cb.OnDisconnect()
		}
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("exec client is closed")
	}
	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}
	c.logf("exec: connected url=%s", c.url)

	go func() {
		defer close(done)
		c.readLoop(ctx, conn)
	}()
	return nil
}

func (c *ExecClient) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		env, err := wire.UnmarshalEnvelope(data)
		if err != nil {
			continue
		}
		if env.Type != wire.MsgTypeExecResult {
			continue
		}
		// Decode errors still yield an event; the router treats whatever
		// is missing as a no-op so one bad event never stalls the stream.
		ev, _ := wire.ParseExecEvent(env.Payload)
		if c.cb.OnEvent != nil {
			c.cb.OnEvent(ev)
		}
	}

	c.mu.Lock()
	stillOwned := c.conn == conn
	if stillOwned {
		c.conn = nil
	}
	c.mu.Unlock()

	if stillOwned && c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
}

// Execute submits a run payload. Fails immediately with ErrNotConnected
// while the channel is down.
func (c *ExecClient) Execute(ctx context.Context, payload wire.ExecutePayload) error {
	if c == nil {
		return ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := wire.NewEnvelope(wire.MsgTypeExecute, "", payload)
	if err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

func (c *ExecClient) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	done := c.done
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	c.logf("exec: closed url=%s", c.url)
}
