package gateway_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/AximoxAI/orbital/internal/gateway"
	"github.com/AximoxAI/orbital/internal/transport"
	"github.com/AximoxAI/orbital/internal/wire"
)

type recordingPresence struct {
	mu      sync.Mutex
	upserts []gateway.MemberInfo
	deletes []string
}

func (p *recordingPresence) Upsert(_ context.Context, info gateway.MemberInfo, _ string, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upserts = append(p.upserts, info)
	return nil
}

func (p *recordingPresence) Delete(_ context.Context, taskID, senderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, taskID+"/"+senderID)
	return nil
}

func (p *recordingPresence) List(context.Context, string) ([]gateway.MemberInfo, error) {
	return nil, nil
}

func startGateway(t *testing.T, opts gateway.GatewayOptions) (*gateway.Gateway, string) {
	t.Helper()
	gw, err := gateway.NewGateway(opts)
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return gw, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func openChat(t *testing.T, baseURL, room, sender, token string, cb transport.ChatCallbacks) *transport.ChatClient {
	t.Helper()
	client, err := transport.NewChatClient(transport.ChatClientOptions{
		URL:        baseURL + "/chat",
		TaskRoomID: room,
		SenderID:   sender,
		Dialer:     &transport.WSDialer{Token: token},
		AckTimeout: 5 * time.Second,
	}, cb)
	if err != nil {
		t.Fatalf("NewChatClient failed: %v", err)
	}
	if err := client.Open(context.Background()); err != nil {
		t.Fatalf("chat open failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestChatBroadcastReachesAllMembers(t *testing.T) {
	t.Parallel()

	gw, baseURL := startGateway(t, gateway.GatewayOptions{})

	type received struct {
		mu   sync.Mutex
		msgs []wire.RawMessage
	}
	collect := func(r *received) transport.ChatCallbacks {
		return transport.ChatCallbacks{OnMessage: func(raw wire.RawMessage) {
			r.mu.Lock()
			r.msgs = append(r.msgs, raw)
			r.mu.Unlock()
		}}
	}
	var recvA, recvB received

	sender := openChat(t, baseURL, "task-1", "alice", "", collect(&recvA))
	openChat(t, baseURL, "task-1", "bob", "", collect(&recvB))

	waitFor(t, 3*time.Second, func() bool {
		return len(gw.Registry().Members("task-1")) == 2
	})

	if err := sender.Send(context.Background(), wire.OutgoingMessage{Content: "hello room"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	check := func(r *received) wire.RawMessage {
		var got wire.RawMessage
		waitFor(t, 3*time.Second, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			if len(r.msgs) == 0 {
				return false
			}
			got = r.msgs[0]
			return true
		})
		return got
	}
	msgA := check(&recvA)
	msgB := check(&recvB)

	// The sender learns the server-assigned id from the same push.
	if msgA.ID == "" || msgA.ID != msgB.ID {
		t.Fatalf("broadcast ids differ: %q vs %q", msgA.ID, msgB.ID)
	}
	if msgA.Content != "hello room" || msgA.SenderID != "alice" || msgA.Type != "text" {
		t.Fatalf("unexpected broadcast: %+v", msgA)
	}
	if msgA.Timestamp == "" {
		t.Fatalf("broadcast missing timestamp")
	}
}

func TestChatRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	_, baseURL := startGateway(t, gateway.GatewayOptions{})
	client := openChat(t, baseURL, "task-1", "alice", "", transport.ChatCallbacks{})

	err := client.Send(context.Background(), wire.OutgoingMessage{Content: "   "})
	if err == nil || !strings.Contains(err.Error(), "content") {
		t.Fatalf("expected content rejection, got %v", err)
	}
}

func TestChatTokenRequired(t *testing.T) {
	t.Parallel()

	_, baseURL := startGateway(t, gateway.GatewayOptions{Token: "secret"})

	client, err := transport.NewChatClient(transport.ChatClientOptions{
		URL:        baseURL + "/chat",
		TaskRoomID: "task-1",
		Dialer:     &transport.WSDialer{Token: "wrong"},
	}, transport.ChatCallbacks{})
	if err != nil {
		t.Fatalf("NewChatClient failed: %v", err)
	}
	if err := client.Open(context.Background()); err == nil {
		client.Close()
		t.Fatalf("expected unauthorized dial to fail")
	}

	authed, err := transport.NewChatClient(transport.ChatClientOptions{
		URL:        baseURL + "/chat",
		TaskRoomID: "task-1",
		Dialer:     &transport.WSDialer{Token: "secret"},
	}, transport.ChatCallbacks{})
	if err != nil {
		t.Fatalf("NewChatClient failed: %v", err)
	}
	if err := authed.Open(context.Background()); err != nil {
		t.Fatalf("authorized dial failed: %v", err)
	}
	authed.Close()
}

func TestChatFirstFrameMustBeJoin(t *testing.T) {
	t.Parallel()

	_, baseURL := startGateway(t, gateway.GatewayOptions{JoinTimeout: 500 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, baseURL+"/chat", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	env, err := wire.NewEnvelope(wire.MsgTypeSendMessage, "", wire.OutgoingMessage{Content: "hi"})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The gateway closes the connection instead of accepting traffic.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected close after non-join first frame")
	}
}

func TestChatLeaveUpdatesRegistryAndPresence(t *testing.T) {
	t.Parallel()

	presence := &recordingPresence{}
	gw, baseURL := startGateway(t, gateway.GatewayOptions{Presence: presence})

	client := openChat(t, baseURL, "task-1", "alice", "", transport.ChatCallbacks{})
	waitFor(t, 3*time.Second, func() bool {
		return len(gw.Registry().Members("task-1")) == 1
	})

	presence.mu.Lock()
	joined := len(presence.upserts) == 1 && presence.upserts[0].SenderID == "alice"
	presence.mu.Unlock()
	if !joined {
		t.Fatalf("presence upsert not recorded: %+v", presence.upserts)
	}

	client.Close()
	waitFor(t, 3*time.Second, func() bool {
		return len(gw.Registry().Members("task-1")) == 0
	})
	waitFor(t, 3*time.Second, func() bool {
		presence.mu.Lock()
		defer presence.mu.Unlock()
		return len(presence.deletes) >= 1 && presence.deletes[0] == "task-1/alice"
	})
}

func TestExecRelayBetweenSubscribers(t *testing.T) {
	t.Parallel()

	_, baseURL := startGateway(t, gateway.GatewayOptions{})

	got := make(chan wire.ExecEvent, 4)
	viewer, err := transport.NewExecClient(transport.ExecClientOptions{
		URL:    baseURL + "/exec?task_id=task-1",
		Dialer: &transport.WSDialer{},
	}, transport.ExecCallbacks{OnEvent: func(ev wire.ExecEvent) { got <- ev }})
	if err != nil {
		t.Fatalf("NewExecClient failed: %v", err)
	}
	if err := viewer.Open(context.Background()); err != nil {
		t.Fatalf("viewer open failed: %v", err)
	}
	defer viewer.Close()

	// The runner side is a plain websocket pushing telemetry frames.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runner, _, err := websocket.Dial(ctx, baseURL+"/exec?task_id=task-1", nil)
	if err != nil {
		t.Fatalf("runner dial failed: %v", err)
	}
	defer runner.Close(websocket.StatusNormalClosure, "bye")

	env, err := wire.NewEnvelope(wire.MsgTypeExecResult, "", map[string]any{
		"kind": "agent", "task_id": "task-1", "status": "in_progress", "content": "compiling",
	})
	if err != nil {
		t.Fatalf("NewEnvelope failed: %v", err)
	}
	data, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// First frames can race the gateway's subscriber registration, so
	// retry until the viewer sees one.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := runner.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("runner write failed: %v", err)
		}
		select {
		case ev := <-got:
			if ev.Kind != wire.KindAgent || ev.TaskID != "task-1" || ev.Content != "compiling" {
				t.Fatalf("unexpected relayed event: %+v", ev)
			}
			return
		case <-time.After(200 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatalf("relayed event never arrived")
			}
		}
	}
}

func TestExecRequiresTaskID(t *testing.T) {
	t.Parallel()

	_, baseURL := startGateway(t, gateway.GatewayOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, baseURL+"/exec", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected close for missing task_id")
	}
}
