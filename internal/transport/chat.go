package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/AximoxAI/orbital/internal/wire"
)

type ChatCallbacks struct {
	OnConnect    func()
	OnDisconnect func()
	OnMessage    func(wire.RawMessage)
}

type ChatClientOptions struct {
	URL        string
	TaskRoomID string
	SenderID   string
	Dialer     Dialer
	AckTimeout time.Duration
	Logf       func(format string, args ...any)
}

// ChatClient owns one task-room channel. On every successful connect it
// announces room membership before any message traffic; on close it
// announces departure before tearing the connection down. Dropped
// connections redial with backoff and re-join.
type ChatClient struct {
	url        string
	roomID     string
	senderID   string
	dialer     Dialer
	ackTimeout time.Duration
	logf       func(format string, args ...any)
	cb         ChatCallbacks

	mu     sync.Mutex
	conn   Conn
	closed bool
	cancel context.CancelFunc
	done   chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan wire.SendAckPayload
}

func NewChatClient(opts ChatClientOptions, cb ChatCallbacks) (*ChatClient, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("chat url is required")
	}
	roomID := strings.TrimSpace(opts.TaskRoomID)
	if roomID == "" {
		return nil, errors.New("task room id is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WSDialer{}
	}
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &ChatClient{
		url:        url,
		roomID:     roomID,
		senderID:   strings.TrimSpace(opts.SenderID),
		dialer:     dialer,
		ackTimeout: ackTimeout,
		logf:       logf,
		cb:         cb,
		pending:    make(map[string]chan wire.SendAckPayload),
	}, nil
}

func (c *ChatClient) TaskRoomID() string {
	if c == nil {
		return ""
	}
	return c.roomID
}

// Open starts the connection loop. It returns once the first dial
// attempt has resolved so callers observe immediate dial failures.
func (c *ChatClient) Open(ctx context.Context) error {
	if c == nil {
		return errors.New("chat client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return errors.New("chat client is closed")
	}
	if c.done != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("chat client already open")
	}
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		defer close(done)
		c.run(runCtx, first)
	}()
	return <-first
}

func (c *ChatClient) run(ctx context.Context, first chan<- error) {
	backoff := 1 * time.Second
	const backoffMax = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			c.reportFirst(first, err)
			return
		}
		connected, err := c.runOnce(ctx, first)
		if c.isClosed() || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if attempt == 0 && !connected {
			// Open already surfaced the dial failure; do not retry a
			// channel the caller never saw connected.
			return
		}
		if err == nil {
			backoff = 1 * time.Second
			continue
		}
		c.logf("chat: disconnected room=%s err=%v", c.roomID, err)

		jitter := time.Duration(rand.IntN(500)) * time.Millisecond
		sleep := backoff + jitter
		if sleep > backoffMax {
			sleep = backoffMax
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (c *ChatClient) runOnce(ctx context.Context, first chan<- error) (connected bool, _ error) {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.reportFirst(first, err)
		return false, err
	}

	// Membership is announced before any message traffic is expected.
	if err := c.writeEnvelope(ctx, conn, wire.MsgTypeJoinRoom, "", wire.JoinRoomPayload{TaskID: c.roomID, SenderID: c.senderID}); err != nil {
		_ = conn.Close()
		c.reportFirst(first, err)
		return false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.teardownConn(conn)
		c.reportFirst(first, errors.New("chat client is closed"))
		return false, nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.reportFirst(first, nil)
	c.logf("chat: joined room=%s", c.roomID)
	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}

	var readErr error
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			readErr = err
			break
		}
		env, err := wire.UnmarshalEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case wire.MsgTypeNewMessage:
			var raw wire.RawMessage
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &raw); err != nil {
					continue
				}
			}
			if c.cb.OnMessage != nil {
				c.cb.OnMessage(raw)
			}
		case wire.MsgTypeSendAck:
			var ack wire.SendAckPayload
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &ack); err != nil {
					continue
				}
			}
			c.deliverAck(env.ID, ack)
		default:
			// ignore
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
	return true, readErr
}

// Send submits a message and waits for the transport acknowledgment.
// It fails immediately with ErrNotConnected while the channel is down.
func (c *ChatClient) Send(ctx context.Context, msg wire.OutgoingMessage) error {
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

	if strings.TrimSpace(msg.TaskID) == "" {
		msg.TaskID = c.roomID
	}
	if strings.TrimSpace(msg.SenderID) == "" {
		msg.SenderID = c.senderID
	}

	reqID := wire.NewID("req")
	ch := make(chan wire.SendAckPayload, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.writeEnvelope(ctx, conn, wire.MsgTypeSendMessage, reqID, msg); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	defer cancel()
	select {
	case ack := <-ch:
		if !ack.Accepted {
			return fmt.Errorf("send rejected: %s", strings.TrimSpace(ack.Reason))
		}
		return nil
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

// Close announces departure from the room, then disconnects, then stops
// the connection loop. The leave-before-disconnect order holds on every
// exit path.
func (c *ChatClient) Close() {
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
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if conn != nil {
		c.teardownConn(conn)
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.logf("chat: left room=%s", c.roomID)
}

func (c *ChatClient) teardownConn(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = c.writeEnvelope(ctx, conn, wire.MsgTypeLeaveRoom, "", wire.LeaveRoomPayload{TaskID: c.roomID, SenderID: c.senderID})
	_ = conn.Close()
}

func (c *ChatClient) writeEnvelope(ctx context.Context, conn Conn, msgType, id string, payload any) error {
	env, err := wire.NewEnvelope(msgType, id, payload)
	if err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return conn.Write(ctx, data)
}

func (c *ChatClient) deliverAck(requestID string, ack wire.SendAckPayload) {
	id := strings.TrimSpace(requestID)
	if id == "" {
		return
	}
	c.pendingMu.Lock()
	ch := c.pending[id]
	c.pendingMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

func (c *ChatClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *ChatClient) reportFirst(first chan<- error, err error) {
	if first == nil {
		return
	}
	select {
	case first <- err:
	default:
	}
}
