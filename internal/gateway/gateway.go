package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/AximoxAI/orbital/internal/wire"
)

type GatewayOptions struct {
	// Token is the bearer token every upgrade must present. Empty
	// disables the check (tests, local runs). Token acquisition is
	// external; the gateway only compares.
	Token              string
	InstanceID         string
	Registry           *RoomRegistry
	Presence           PresenceStore
	PresenceTTLSeconds int
	MaxMessageBytes    int64
	JoinTimeout        time.Duration
	AcceptOriginAny    bool
	AllowedOrigins     []string
	Logf               func(format string, args ...any)
}

// Gateway is the reference task-room hub: it accepts chat channels,
// tracks room membership, broadcasts messages, and relays execution
// telemetry between subscribers of the same task run. It keeps no
// durable state.
type Gateway struct {
	token              string
	instanceID         string
	registry           *RoomRegistry
	presence           PresenceStore
	presenceTTLSeconds int
	maxMessageBytes    int64
	joinTimeout        time.Duration
	originPatterns     []string
	logf               func(format string, args ...any)

	execMu   sync.Mutex
	execSubs map[string]map[*Session]struct{}
}

func NewGateway(opts GatewayOptions) (*Gateway, error) {
	reg := opts.Registry
	if reg == nil {
		reg = NewRoomRegistry()
	}
	instanceID := strings.TrimSpace(opts.InstanceID)
	if instanceID == "" {
		instanceID = wire.NewID("gw")
	}
	maxMsg := opts.MaxMessageBytes
	if maxMsg <= 0 {
		maxMsg = 4 << 20 // 4MiB
	}
	joinTimeout := opts.JoinTimeout
	if joinTimeout <= 0 {
		joinTimeout = 10 * time.Second
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	presence := opts.Presence
	if presence == nil {
		presence = NoopPresenceStore{}
	}
	ttlSeconds := opts.PresenceTTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = 15
	}
	originPatterns := opts.AllowedOrigins
	if opts.AcceptOriginAny || len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &Gateway{
		token:              strings.TrimSpace(opts.Token),
		instanceID:         instanceID,
		registry:           reg,
		presence:           presence,
		presenceTTLSeconds: ttlSeconds,
		maxMessageBytes:    maxMsg,
		joinTimeout:        joinTimeout,
		originPatterns:     originPatterns,
		logf:               logf,
		execSubs:           make(map[string]map[*Session]struct{}),
	}, nil
}

func (g *Gateway) InstanceID() string {
	if g == nil {
		return ""
	}
	return g.instanceID
}

func (g *Gateway) Registry() *RoomRegistry {
	if g == nil {
		return nil
	}
	return g.registry
}

// Handler routes /chat and /exec websocket upgrades.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", g.handleChatWS)
	mux.HandleFunc("/exec", g.handleExecWS)
	return mux
}

func (g *Gateway) authorized(r *http.Request) bool {
	if g.token == "" {
		return true
	}
	return r.Header.Get("Authorization") == "Bearer "+g.token
}

func (g *Gateway) accept(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if g == nil {
		http.Error(w, "gateway not configured", http.StatusInternalServerError)
		return nil, false
	}
	if !g.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		return nil, false
	}
	conn.SetReadLimit(g.maxMessageBytes)
	return &Session{conn: conn}, true
}

func (g *Gateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	session, ok := g.accept(w, r)
	if !ok {
		return
	}
	go g.handleChatConn(session, strings.TrimSpace(r.RemoteAddr))
}

func (g *Gateway) handleChatConn(session *Session, remoteAddr string) {
	defer session.Close(websocket.StatusNormalClosure, "bye")

	joinCtx, cancel := context.WithTimeout(context.Background(), g.joinTimeout)
	join, err := g.readJoin(joinCtx, session)
	cancel()
	if err != nil {
		g.logf("chat: join failed remote=%s err=%v", remoteAddr, err)
		session.Close(websocket.StatusPolicyViolation, "join_room required")
		return
	}

	now := time.Now().UTC()
	info := MemberInfo{
		TaskID:      join.TaskID,
		SenderID:    strings.TrimSpace(join.SenderID),
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		LastSeen:    now,
	}
	taskID := join.TaskID
	g.registry.Join(taskID, session, info)
	g.upsertPresence(info)
	g.logf("chat: member joined task=%s sender=%s remote=%s", taskID, info.SenderID, remoteAddr)

	for {
		data, err := g.readText(context.Background(), session)
		if err != nil {
			break
		}
		env, err := wire.UnmarshalEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case wire.MsgTypeSendMessage:
			var out wire.OutgoingMessage
			if len(env.Payload) > 0 {
				if err := json.Unmarshal(env.Payload, &out); err != nil {
					g.ack(session, env.ID, wire.SendAckPayload{Accepted: false, Reason: "invalid payload"})
					continue
				}
			}
			if strings.TrimSpace(out.Content) == "" {
				g.ack(session, env.ID, wire.SendAckPayload{Accepted: false, Reason: "content is required"})
				continue
			}
			msgID := wire.NewID("m")
			g.ack(session, env.ID, wire.SendAckPayload{Accepted: true, MessageID: msgID})
			g.broadcast(taskID, wire.RawMessage{
				ID:        msgID,
				Content:   out.Content,
				SenderID:  strings.TrimSpace(out.SenderID),
				Type:      "text",
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				Mentions:  out.Mentions,
			})
		case wire.MsgTypeLeaveRoom:
			g.registry.Leave(taskID, session)
			g.deletePresence(info)
			g.logf("chat: member left task=%s sender=%s", taskID, info.SenderID)
		case wire.MsgTypeJoinRoom:
			// Already joined; refresh presence.
			info.LastSeen = time.Now().UTC()
			g.upsertPresence(info)
		default:
			// ignore
		}
	}

	g.registry.Leave(taskID, session)
	g.deletePresence(info)
	g.logf("chat: member disconnected task=%s sender=%s remote=%s", taskID, info.SenderID, remoteAddr)
}

func (g *Gateway) readJoin(ctx context.Context, session *Session) (wire.JoinRoomPayload, error) {
	data, err := g.readText(ctx, session)
	if err != nil {
		return wire.JoinRoomPayload{}, err
	}
	env, err := wire.UnmarshalEnvelope(data)
	if err != nil {
		return wire.JoinRoomPayload{}, err
	}
	if env.Type != wire.MsgTypeJoinRoom {
		return wire.JoinRoomPayload{}, errors.New("first frame must be join_room")
	}
	var join wire.JoinRoomPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &join); err != nil {
			return wire.JoinRoomPayload{}, err
		}
	}
	join.TaskID = strings.TrimSpace(join.TaskID)
	if join.TaskID == "" {
		return wire.JoinRoomPayload{}, errors.New("task_id is required")
	}
	return join, nil
}

func (g *Gateway) readText(ctx context.Context, session *Session) ([]byte, error) {
	for {
		mt, data, err := session.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if mt != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (g *Gateway) ack(session *Session, requestID string, payload wire.SendAckPayload) {
	env, err := wire.NewEnvelope(wire.MsgTypeSendAck, requestID, payload)
	if err != nil {
		return
	}
	data, err := env.Marshal()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = session.WriteText(ctx, data)
}

// broadcast delivers a new_message frame to every member of the room,
// the sender included: the sender's view learns the server-assigned id
// from the same push everyone else gets.
func (g *Gateway) broadcast(taskID string, msg wire.RawMessage) {
	env, err := wire.NewEnvelope(wire.MsgTypeNewMessage, "", msg)
	if err != nil {
		return
	}
	data, err := env.Marshal()
	if err != nil {
		return
	}
	for _, s := range g.registry.Sessions(taskID) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.WriteText(ctx, data)
		cancel()
	}
}

func (g *Gateway) handleExecWS(w http.ResponseWriter, r *http.Request) {
	session, ok := g.accept(w, r)
	if !ok {
		return
	}
	taskID := strings.TrimSpace(r.URL.Query().Get("task_id"))
	if taskID == "" {
		session.Close(websocket.StatusPolicyViolation, "task_id required")
		return
	}
	go g.handleExecConn(session, taskID)
}

// handleExecConn relays execution frames between subscribers of one task
// run: telemetry from the runner side reaches every viewer, and execute
// requests from viewers reach the runner.
func (g *Gateway) handleExecConn(session *Session, taskID string) {
	defer session.Close(websocket.StatusNormalClosure, "bye")

	g.execMu.Lock()
	subs := g.execSubs[taskID]
	if subs == nil {
		subs = make(map[*Session]struct{})
		g.execSubs[taskID] = subs
	}
	subs[session] = struct{}{}
	g.execMu.Unlock()
	g.logf("exec: subscriber joined task=%s", taskID)

	for {
		data, err := g.readText(context.Background(), session)
		if err != nil {
			break
		}
		env, err := wire.UnmarshalEnvelope(data)
		if err != nil {
			continue
		}
		switch env.Type {
		case wire.MsgTypeExecResult, wire.MsgTypeExecute:
			g.relayExec(taskID, session, data)
		default:
			// ignore
		}
	}

	g.execMu.Lock()
	if subs := g.execSubs[taskID]; subs != nil {
		delete(subs, session)
		if len(subs) == 0 {
			delete(g.execSubs, taskID)
		}
	}
	g.execMu.Unlock()
	g.logf("exec: subscriber left task=%s", taskID)
}

func (g *Gateway) relayExec(taskID string, from *Session, data []byte) {
	g.execMu.Lock()
	targets := make([]*Session, 0, len(g.execSubs[taskID]))
	for s := range g.execSubs[taskID] {
		if s != from {
			targets = append(targets, s)
		}
	}
	g.execMu.Unlock()

	for _, s := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.WriteText(ctx, data)
		cancel()
	}
}

func (g *Gateway) upsertPresence(info MemberInfo) {
	if g == nil || g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.presence.Upsert(ctx, info, g.instanceID, g.presenceTTLSeconds)
}

func (g *Gateway) deletePresence(info MemberInfo) {
	if g == nil || g.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = g.presence.Delete(ctx, info.TaskID, info.SenderID)
}
