package taskview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/AximoxAI/orbital/internal/applog"
	"github.com/AximoxAI/orbital/internal/filestate"
	"github.com/AximoxAI/orbital/internal/history"
	"github.com/AximoxAI/orbital/internal/mention"
	"github.com/AximoxAI/orbital/internal/runview"
	"github.com/AximoxAI/orbital/internal/timeline"
	"github.com/AximoxAI/orbital/internal/transport"
	"github.com/AximoxAI/orbital/internal/wire"
)

type ViewOptions struct {
	TaskID        string
	TaskRoomID    string
	CurrentUserID string
	Manager       *transport.Manager
	History       *history.Client
	Mentions      *mention.Registry
	Logger        *applog.Logger
}

// View is one open task workspace: the chat channel, the execution
// channel, the reconciled message sequence, the routed run buffers, and
// the file state, all owned by this instance alone.
//
// Every inbound event from either channel is pushed onto one reaction
// queue consumed by a single goroutine, so the reconciler, router, and
// file store see a single writer regardless of how the transport
// delivers callbacks. Read accessors return copies.
type View struct {
	taskID   string
	roomID   string
	manager  *transport.Manager
	history  *history.Client
	mentions *mention.Registry
	logger   *applog.Logger

	rec    *timeline.Reconciler
	router *runview.Router
	files  *filestate.Store

	events    chan func()
	loopDone  chan struct{}
	closeOnce sync.Once
	closed    chan struct{}

	mu            sync.RWMutex
	messages      []timeline.Message
	messageLog    []timeline.SystemLogEntry
	chatConnected bool
	execConnected bool
}

func NewView(opts ViewOptions) (*View, error) {
	taskID := strings.TrimSpace(opts.TaskID)
	if taskID == "" {
		return nil, errors.New("task id is required")
	}
	roomID := strings.TrimSpace(opts.TaskRoomID)
	if roomID == "" {
		roomID = taskID
	}
	if opts.Manager == nil {
		return nil, errors.New("transport manager is required")
	}
	mentions := opts.Mentions
	if mentions == nil {
		mentions = mention.NewRegistry(mention.DefaultHandles)
	}

	v := &View{
		taskID:   taskID,
		roomID:   roomID,
		manager:  opts.Manager,
		history:  opts.History,
		mentions: mentions,
		logger:   opts.Logger,
		files:    filestate.NewStore(),
		events:   make(chan func(), 256),
		loopDone: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	v.rec = timeline.NewReconciler(timeline.ReconcilerOptions{
		CurrentUserID: opts.CurrentUserID,
		Mentions:      mentions,
		OnSystem:      v.appendMessageLog,
	})
	v.router = runview.NewRouter(runview.RouterOptions{
		TaskID: taskID,
		Files:  v.files,
		Logger: opts.Logger,
	})
	return v, nil
}

func (v *View) TaskID() string {
	if v == nil {
		return ""
	}
	return v.taskID
}

// Open starts the reaction loop, opens the chat channel (which joins the
// task room), and seeds the message sequence from history. A history
// load failure becomes one synthetic placeholder entry, never an open
// failure.
func (v *View) Open(ctx context.Context) error {
	if v == nil {
		return errors.New("view is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go v.loop()

	err := v.manager.OpenChat(ctx, v.roomID, transport.ChatCallbacks{
		OnConnect: func() {
			v.enqueue(func() { v.setChatConnected(true) })
		},
		OnDisconnect: func() {
			v.enqueue(func() { v.setChatConnected(false) })
		},
		OnMessage: func(raw wire.RawMessage) {
			v.logger.Logf(applog.KindChat, "view: message id=%s sender=%s content=%s", raw.ID, raw.SenderID, applog.Preview(raw.Content, 80))
			v.enqueue(func() { v.setMessages(v.rec.MergeIncoming(raw)) })
		},
	})
	if err != nil {
		return err
	}

	if v.history != nil {
		raw, err := v.history.Messages(ctx, v.taskID)
		if err != nil {
			v.logger.Logf(applog.KindError, "view: history load failed task=%s err=%v", v.taskID, err)
			v.enqueue(func() { v.setMessages(v.rec.SeedFailed(err)) })
		} else {
			v.enqueue(func() { v.setMessages(v.rec.SeedFromHistory(raw)) })
		}
	}
	return nil
}

// StartRun opens a fresh execution channel for this task's run.
func (v *View) StartRun(ctx context.Context) error {
	if v == nil {
		return errors.New("view is nil")
	}
	return v.manager.OpenExecution(ctx, transport.ExecCallbacks{
		OnConnect: func() {
			v.enqueue(func() { v.setExecConnected(true) })
		},
		OnDisconnect: func() {
			v.enqueue(func() { v.setExecConnected(false) })
		},
		OnEvent: func(ev wire.ExecEvent) {
			v.enqueue(func() { v.router.Handle(ev) })
		},
	})
}

// Execute submits a run payload on the execution channel.
func (v *View) Execute(ctx context.Context, task string, metadata map[string]any) error {
	if v == nil {
		return transport.ErrNotConnected
	}
	return v.manager.Execute(ctx, wire.ExecutePayload{
		TaskID:   v.taskID,
		Task:     task,
		Metadata: metadata,
	})
}

// Send annotates the outgoing message with mentions (unless the caller
// supplied some) and submits it on the chat channel.
func (v *View) Send(ctx context.Context, msg wire.OutgoingMessage) error {
	if v == nil {
		return transport.ErrNotConnected
	}
	if strings.TrimSpace(msg.TaskID) == "" {
		msg.TaskID = v.taskID
	}
	v.mentions.Annotate(&msg)
	return v.manager.SendMessage(ctx, msg)
}

// Close tears both channels down: leave-then-disconnect for chat, then
// the execution channel, then the reaction loop. Safe to call more than
// once; always the same order.
func (v *View) Close() {
	if v == nil {
		return
	}
	v.closeOnce.Do(func() {
		v.manager.Close()
		close(v.closed)
		<-v.loopDone
	})
}

func (v *View) loop() {
	defer close(v.loopDone)
	for {
		select {
		case fn := <-v.events:
			fn()
		case <-v.closed:
			// Drain what is already queued so late events are not lost.
			for {
				select {
				case fn := <-v.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (v *View) enqueue(fn func()) {
	select {
	case v.events <- fn:
	case <-v.closed:
	}
}

// Messages returns the current ordered, de-duplicated sequence.
func (v *View) Messages() []timeline.Message {
	if v == nil {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]timeline.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// SystemLog merges status entries from chat history with entries derived
// from the execution channel into one ascending timeline.
func (v *View) SystemLog() []timeline.SystemLogEntry {
	if v == nil {
		return nil
	}
	v.mu.RLock()
	fromMessages := make([]timeline.SystemLogEntry, len(v.messageLog))
	copy(fromMessages, v.messageLog)
	v.mu.RUnlock()
	return timeline.MergeSystemLog(fromMessages, v.router.SystemEntries())
}

func (v *View) Files() []filestate.FileItem {
	if v == nil {
		return nil
	}
	return v.files.Files()
}

// Tree derives the current file hierarchy. Collisions are logged and
// skipped per the first-writer-for-structure policy.
func (v *View) Tree() *filestate.Node {
	if v == nil {
		return nil
	}
	root, skipped := filestate.BuildTree(v.files.Files())
	for _, path := range skipped {
		v.logger.Logf(applog.KindWarn, "view: tree collision, kept existing node path=%s", path)
	}
	return root
}

func (v *View) Console() []string {
	if v == nil {
		return nil
	}
	return v.router.Console()
}

func (v *View) AgentOutput() string { return v.router.AgentOutput() }
func (v *View) Summary() string     { return v.router.Summary() }
func (v *View) LiveValue() string   { return v.router.LiveValue() }

func (v *View) ChatConnected() bool {
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.chatConnected
}

func (v *View) ExecConnected() bool {
	if v == nil {
		return false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.execConnected
}

func (v *View) setMessages(msgs []timeline.Message) {
	v.mu.Lock()
	v.messages = msgs
	v.mu.Unlock()
}

func (v *View) appendMessageLog(e timeline.SystemLogEntry) {
	v.mu.Lock()
	v.messageLog = append(v.messageLog, e)
	v.mu.Unlock()
}

func (v *View) setChatConnected(up bool) {
	v.mu.Lock()
	v.chatConnected = up
	v.mu.Unlock()
	if up {
		v.logger.Logf(applog.KindChat, "view: chat connected room=%s", v.roomID)
	} else {
		v.logger.Logf(applog.KindChat, "view: chat disconnected room=%s", v.roomID)
	}
}

func (v *View) setExecConnected(up bool) {
	v.mu.Lock()
	v.execConnected = up
	v.mu.Unlock()
}
