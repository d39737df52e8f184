package timeline

import (
	"sort"
	"strings"

	"github.com/AximoxAI/orbital/internal/mention"
	"github.com/AximoxAI/orbital/internal/wire"
)

type ReconcilerOptions struct {
	// CurrentUserID resolves the "You" author label.
	CurrentUserID string
	// Mentions annotates normalized messages; optional.
	Mentions *mention.Registry
	// OnSystem receives a SystemLogEntry for every message that carries
	// status markers; optional.
	OnSystem func(SystemLogEntry)
}

// Reconciler merges REST-fetched history with live-pushed messages into
// one ordered, de-duplicated sequence. A live push whose id already
// exists is dropped.
type Reconciler struct {
	userID   string
	mentions *mention.Registry
	onSystem func(SystemLogEntry)

	seq  int64
	ids  map[string]struct{}
	msgs []Message
}

func NewReconciler(opts ReconcilerOptions) *Reconciler {
	return &Reconciler{
		userID:   strings.TrimSpace(opts.CurrentUserID),
		mentions: opts.Mentions,
		onSystem: opts.OnSystem,
		ids:      make(map[string]struct{}),
	}
}

// SeedFromHistory normalizes the initial history fetch and returns the
// ordered sequence. Seeding again (duplicate history delivery after a
// reconnect) only adds ids not already present.
func (r *Reconciler) SeedFromHistory(raw []wire.RawMessage) []Message {
	if r == nil {
		return nil
	}
	for _, rm := range raw {
		r.add(rm)
	}
	r.sortStable()
	return r.Messages()
}

// MergeIncoming merges one live-pushed message and returns the updated
// ordered sequence. Duplicate ids are a no-op for the sequence.
func (r *Reconciler) MergeIncoming(raw wire.RawMessage) []Message {
	if r == nil {
		return nil
	}
	if r.add(raw) {
		r.sortStable()
	}
	return r.Messages()
}

// SeedFailed records the single synthetic placeholder for a history load
// failure. The stream stays usable; live pushes still merge after it.
func (r *Reconciler) SeedFailed(err error) []Message {
	if r == nil {
		return nil
	}
	detail := ""
	if err != nil {
		detail = ": " + err.Error()
	}
	return r.MergeIncoming(wire.RawMessage{
		ID:         wire.NewID("history-error"),
		Content:    "Failed to load message history" + detail,
		SenderType: "agent",
		Status:     "error",
	})
}

func (r *Reconciler) Messages() []Message {
	if r == nil {
		return nil
	}
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *Reconciler) add(raw wire.RawMessage) bool {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = wire.NewID("msg")
	}
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	r.seq++

	kind := resolveSenderKind(raw)
	created, hasCreated := parseTimestamp(raw.Timestamp)
	msg := Message{
		ID:             id,
		SenderKind:     kind,
		SenderID:       strings.TrimSpace(raw.SenderID),
		Author:         resolveAuthor(kind, raw.SenderID, r.userID),
		Content:        raw.Content,
		RawTimestamp:   raw.Timestamp,
		CreatedAt:      created,
		HasCreatedAt:   hasCreated,
		IsCode:         containsCodeBlock(raw.Content),
		TaskSuggestion: raw.TaskSuggestion,
		seq:            r.seq,
	}
	if len(raw.Mentions) > 0 {
		msg.Mentions = raw.Mentions
	} else if r.mentions != nil {
		msg.Mentions = r.mentions.Extract(raw.Content)
	}
	r.msgs = append(r.msgs, msg)

	if r.onSystem != nil && strings.TrimSpace(raw.Status) != "" {
		r.onSystem(SystemLogEntry{
			ID:        id,
			Status:    strings.TrimSpace(raw.Status),
			Message:   raw.Content,
			Summary:   raw.Summary,
			Timestamp: created,
			FilePath:  strings.TrimSpace(raw.FilePath),
		})
	}
	return true
}

func (r *Reconciler) sortStable() {
	sort.SliceStable(r.msgs, func(i, j int) bool {
		return r.msgs[i].SortKey() < r.msgs[j].SortKey()
	})
}
