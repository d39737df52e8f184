package mention

import (
	"strings"

	"github.com/AximoxAI/orbital/internal/wire"
)

// DefaultHandles is the closed set of agent handles the workspace
// recognizes. The set is fixed per deployment, never extended at runtime.
var DefaultHandles = []string{
	"@orbital_cli",
	"@goose",
	"@openhands",
	"@aider",
}

// Registry matches agent handles in free-form message text. Construct it
// once with the deployment's handle set and share it; it is immutable.
type Registry struct {
	handles []string
}

func NewRegistry(handles []string) *Registry {
	out := make([]string, 0, len(handles))
	seen := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return &Registry{handles: out}
}

func (r *Registry) Handles() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.handles))
	copy(out, r.handles)
	return out
}

// Extract returns every registered handle contained in content, in
// registry order. Repeated occurrences yield a single entry.
func (r *Registry) Extract(content string) []string {
	if r == nil || strings.TrimSpace(content) == "" {
		return nil
	}
	var out []string
	for _, h := range r.handles {
		if strings.Contains(content, h) {
			out = append(out, h)
		}
	}
	return out
}

// Annotate fills in msg.Mentions from the content when the caller did not
// supply any. Explicit mentions are preserved; an extraction that finds
// nothing leaves the message untouched.
func (r *Registry) Annotate(msg *wire.OutgoingMessage) {
	if r == nil || msg == nil {
		return
	}
	if len(msg.Mentions) > 0 {
		return
	}
	if found := r.Extract(msg.Content); len(found) > 0 {
		msg.Mentions = found
	}
}
