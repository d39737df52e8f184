package runview

import (
	"strings"
	"sync"
	"time"

	"github.com/AximoxAI/orbital/internal/applog"
	"github.com/AximoxAI/orbital/internal/filestate"
	"github.com/AximoxAI/orbital/internal/timeline"
	"github.com/AximoxAI/orbital/internal/wire"
)

// Effects reports what one event changed. An event may trigger several
// effects at once; an event matching no rule is an effect-free no-op.
type Effects struct {
	ConsoleAppend     bool
	AgentOutputAppend bool
	SummaryAppend     bool
	LiveValueUpdate   bool
	FileUpsert        bool
}

func (e Effects) Any() bool {
	return e.ConsoleAppend || e.AgentOutputAppend || e.SummaryAppend || e.LiveValueUpdate || e.FileUpsert
}

type RouterOptions struct {
	// TaskID scopes live-value and file effects to the active task.
	TaskID string
	// Files receives file upserts; required for file-status events to
	// take effect.
	Files *filestate.Store
	// Logger is optional.
	Logger *applog.Logger
}

// Router classifies execution-channel events and fans them out into the
// per-run buffers. All mutation happens on the caller's goroutine; the
// view's single-writer loop is the only expected caller.
type Router struct {
	taskID string
	files  *filestate.Store
	logger *applog.Logger

	mu          sync.Mutex
	console     []string
	agentOutput strings.Builder
	summary     strings.Builder
	liveValue   string
	syslog      []timeline.SystemLogEntry
}

func NewRouter(opts RouterOptions) *Router {
	return &Router{
		taskID: strings.TrimSpace(opts.TaskID),
		files:  opts.Files,
		logger: opts.Logger,
	}
}

// Handle evaluates ev against every routing rule. Rules are independent:
// more than one may fire for the same event. Malformed events (missing
// the fields their kind needs) fall through as no-ops, never errors.
func (r *Router) Handle(ev wire.ExecEvent) Effects {
	if r == nil {
		return Effects{}
	}
	var fx Effects

	r.mu.Lock()

	if (ev.Kind == wire.KindAgent || ev.Kind == wire.KindSandbox) && textual(ev.Content) {
		r.console = append(r.console, ev.Content)
		fx.ConsoleAppend = true
	}
	if ev.Kind == wire.KindAgentOutput {
		r.agentOutput.WriteString(ev.Content)
		fx.AgentOutputAppend = true
	}
	if ev.Kind == wire.KindSummary && textual(ev.Content) {
		r.summary.WriteString(ev.Content)
		fx.SummaryAppend = true
	}
	if r.taskMatches(ev) && ev.Status == wire.StatusInProgress && textual(ev.Message) && ev.Message != r.liveValue {
		r.liveValue = ev.Message
		fx.LiveValueUpdate = true
	}

	if strings.TrimSpace(string(ev.Status)) != "" {
		r.syslog = append(r.syslog, timeline.SystemLogEntry{
			ID:        wire.NewID("exec"),
			Status:    string(ev.Status),
			Message:   firstNonEmpty(ev.Message, ev.Content),
			Timestamp: time.Now().UTC(),
			FilePath:  filePathOf(ev),
		})
	}
	r.mu.Unlock()

	if r.taskMatches(ev) && ev.Status == wire.StatusFile {
		if ev.File != nil && strings.TrimSpace(ev.File.Path) != "" && ev.File.Content != "" {
			if r.files != nil {
				r.files.Upsert(ev.File.Path, ev.File.Content, time.Now().UTC())
				fx.FileUpsert = true
				r.logger.Logf(applog.KindFile, "exec: file updated path=%s bytes=%d", ev.File.Path, len(ev.File.Content))
			}
		} else {
			r.logger.Logf(applog.KindWarn, "exec: file event missing path or content task=%s", ev.TaskID)
		}
	}

	if fx.Any() {
		r.logger.Logf(applog.KindExec, "exec: routed kind=%s status=%s effects=%+v", ev.Kind, ev.Status, fx)
	}
	return fx
}

func (r *Router) taskMatches(ev wire.ExecEvent) bool {
	return r.taskID != "" && ev.TaskID == r.taskID
}

// Console returns a copy of the agent/sandbox log buffer.
func (r *Router) Console() []string {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.console))
	copy(out, r.console)
	return out
}

func (r *Router) AgentOutput() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentOutput.String()
}

func (r *Router) Summary() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary.String()
}

// LiveValue is the latest in-progress preview text for the active task.
func (r *Router) LiveValue() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveValue
}

// SystemEntries returns the execution-derived half of the status
// timeline, ready for timeline.MergeSystemLog.
func (r *Router) SystemEntries() []timeline.SystemLogEntry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]timeline.SystemLogEntry, len(r.syslog))
	copy(out, r.syslog)
	return out
}

func textual(s string) bool {
	return strings.TrimSpace(s) != ""
}

func filePathOf(ev wire.ExecEvent) string {
	if ev.File == nil {
		return ""
	}
	return strings.TrimSpace(ev.File.Path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
