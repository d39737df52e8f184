package timeline

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/AximoxAI/orbital/internal/wire"
)

type SenderKind string

const (
	SenderHuman SenderKind = "human"
	SenderAgent SenderKind = "agent"
)

// Message is a normalized chat message. Immutable once created; identity
// is ID and must stay unique across history/live merges.
type Message struct {
	ID             string
	SenderKind     SenderKind
	SenderID       string
	Author         string
	Content        string
	RawTimestamp   string
	CreatedAt      time.Time
	HasCreatedAt   bool
	IsCode         bool
	Mentions       []string
	TaskSuggestion json.RawMessage

	// seq is the arrival order, used as the ordering fallback and the
	// stable tie-breaker.
	seq int64
}

// SortKey is the merge ordering key: the parsed timestamp when present,
// else the numeric prefix of the id, else the arrival sequence.
func (m Message) SortKey() int64 {
	if m.HasCreatedAt {
		return m.CreatedAt.UnixMilli()
	}
	if n, ok := numericIDPrefix(m.ID); ok {
		return n
	}
	return m.seq
}

// DisplayTime renders the creation time for the local locale. Display
// only; ordering always uses the raw timestamp.
func (m Message) DisplayTime() string {
	if !m.HasCreatedAt {
		return ""
	}
	return m.CreatedAt.Local().Format("15:04:05")
}

// resolveSenderKind applies the precedence: explicit sender_type, then
// the generic type field (literal "text" means human), then agent.
func resolveSenderKind(raw wire.RawMessage) SenderKind {
	switch strings.ToLower(strings.TrimSpace(raw.SenderType)) {
	case "human", "user":
		return SenderHuman
	case "agent", "ai", "bot":
		return SenderAgent
	}
	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "text", "human", "user":
		return SenderHuman
	}
	return SenderAgent
}

func resolveAuthor(kind SenderKind, senderID, currentUserID string) string {
	if kind == SenderAgent {
		return "Bot"
	}
	id := strings.TrimSpace(senderID)
	if id != "" && id == strings.TrimSpace(currentUserID) {
		return "You"
	}
	if id != "" {
		return id
	}
	return "Bot"
}

func parseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}

func numericIDPrefix(id string) (int64, bool) {
	s := strings.TrimSpace(id)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var (
	codeMarkdown   = goldmark.New()
	codeMarkdownMu sync.Mutex
)

// containsCodeBlock reports whether content carries a fenced or indented
// code block.
func containsCodeBlock(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	codeMarkdownMu.Lock()
	defer codeMarkdownMu.Unlock()
	doc := codeMarkdown.Parser().Parse(gmtext.NewReader([]byte(content)))
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}
