package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/AximoxAI/orbital/internal/wire"
)

type ManagerOptions struct {
	ChatURL      string
	ExecutionURL string
	SenderID     string
	Dialer       Dialer
	AckTimeout   time.Duration
	Logf         func(format string, args ...any)
}

// Manager owns the two channel lifecycles of an active task view: one
// chat channel bound to a task room and one execution channel bound to a
// task run. At most one of each is open at a time; opening a new one
// first closes the old one so channels never leak.
type Manager struct {
	chatURL    string
	execURL    string
	senderID   string
	dialer     Dialer
	ackTimeout time.Duration
	logf       func(format string, args ...any)

	mu   sync.Mutex
	chat *ChatClient
	exec *ExecClient
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	chatURL := strings.TrimSpace(opts.ChatURL)
	execURL := strings.TrimSpace(opts.ExecutionURL)
	if chatURL == "" && execURL == "" {
		return nil, errors.New("at least one channel url is required")
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &WSDialer{}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Manager{
		chatURL:    chatURL,
		execURL:    execURL,
		senderID:   strings.TrimSpace(opts.SenderID),
		dialer:     dialer,
		ackTimeout: opts.AckTimeout,
		logf:       logf,
	}, nil
}

// OpenChat opens the chat channel for a task room, closing any
// previously open chat channel first.
func (m *Manager) OpenChat(ctx context.Context, taskRoomID string, cb ChatCallbacks) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	m.mu.Lock()
	old := m.chat
	m.chat = nil
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	client, err := NewChatClient(ChatClientOptions{
		URL:        m.chatURL,
		TaskRoomID: taskRoomID,
		SenderID:   m.senderID,
		Dialer:     m.dialer,
		AckTimeout: m.ackTimeout,
		Logf:       m.logf,
	}, cb)
	if err != nil {
		return err
	}
	if err := client.Open(ctx); err != nil {
		client.Close()
		return err
	}

	m.mu.Lock()
	m.chat = client
	m.mu.Unlock()
	return nil
}

// CloseChat leaves the room and disconnects, in that order.
func (m *Manager) CloseChat() {
	if m == nil {
		return
	}
	m.mu.Lock()
	client := m.chat
	m.chat = nil
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// SendMessage fails with ErrNotConnected when no chat channel is open.
func (m *Manager) SendMessage(ctx context.Context, msg wire.OutgoingMessage) error {
	if m == nil {
		return ErrNotConnected
	}
	m.mu.Lock()
	client := m.chat
	m.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(ctx, msg)
}

// OpenExecution opens a forced-fresh execution channel, closing any
// previously open one first. Sessions are never reused across runs.
func (m *Manager) OpenExecution(ctx context.Context, cb ExecCallbacks) error {
	if m == nil {
		return errors.New("manager is nil")
	}
	m.mu.Lock()
	old := m.exec
	m.exec = nil
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}

	client, err := NewExecClient(ExecClientOptions{
		URL:    m.execURL,
		Dialer: m.dialer,
		Logf:   m.logf,
	}, cb)
	if err != nil {
		return err
	}
	if err := client.Open(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.exec = client
	m.mu.Unlock()
	return nil
}

func (m *Manager) CloseExecution() {
	if m == nil {
		return
	}
	m.mu.Lock()
	client := m.exec
	m.exec = nil
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// Execute fails with ErrNotConnected when no execution channel is open.
func (m *Manager) Execute(ctx context.Context, payload wire.ExecutePayload) error {
	if m == nil {
		return ErrNotConnected
	}
	m.mu.Lock()
	client := m.exec
	m.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Execute(ctx, payload)
}

// Close tears down both channels: chat leave-then-disconnect first, then
// the execution channel.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.CloseChat()
	m.CloseExecution()
}
