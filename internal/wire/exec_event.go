package wire

import (
	"encoding/json"
	"strings"
)

// ExecEventKind classifies execution telemetry. Unknown kinds are kept
// (not dropped) so the router can evaluate them as effect-free no-ops.
type ExecEventKind string

const (
	KindAgent       ExecEventKind = "agent"
	KindSandbox     ExecEventKind = "sandbox"
	KindAgentOutput ExecEventKind = "agent_output"
	KindSummary     ExecEventKind = "summary"
	KindFile        ExecEventKind = "file"
	KindUnknown     ExecEventKind = "unknown"
)

type ExecStatus string

const (
	StatusInProgress ExecStatus = "in_progress"
	StatusFile       ExecStatus = "file"
	StatusCompleted  ExecStatus = "completed"
	StatusFailed     ExecStatus = "failed"
)

// FilePayload is the decoded message body of a file-status event.
type FilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ExecEvent is the decoded execution-channel event. Decoding happens at
// the transport boundary; routing logic never touches raw JSON.
type ExecEvent struct {
	Kind    ExecEventKind
	Status  ExecStatus
	TaskID  string
	Content string
	Message string
	File    *FilePayload
}

// rawExecEvent mirrors the loose wire shape: message may be a plain
// string or a {path, content} object depending on status.
type rawExecEvent struct {
	Kind    string          `json:"kind"`
	Type    string          `json:"type,omitempty"`
	Status  string          `json:"status,omitempty"`
	TaskID  string          `json:"task_id,omitempty"`
	Content string          `json:"content,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// ParseExecEvent decodes an execution event. It never fails hard:
// unrecognized kinds become KindUnknown and missing fields stay zero so a
// single malformed event cannot stall the stream.
func ParseExecEvent(data []byte) (ExecEvent, error) {
	var raw rawExecEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return ExecEvent{Kind: KindUnknown}, err
	}

	kind := strings.ToLower(strings.TrimSpace(raw.Kind))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(raw.Type))
	}
	ev := ExecEvent{
		Kind:   normalizeKind(kind),
		Status: ExecStatus(strings.ToLower(strings.TrimSpace(raw.Status))),
		TaskID: strings.TrimSpace(raw.TaskID),
	}
	ev.Content = raw.Content

	if len(raw.Message) > 0 {
		var text string
		if err := json.Unmarshal(raw.Message, &text); err == nil {
			ev.Message = text
		} else {
			var fp FilePayload
			if err := json.Unmarshal(raw.Message, &fp); err == nil {
				if strings.TrimSpace(fp.Path) != "" || fp.Content != "" {
					ev.File = &fp
				}
			}
		}
	}
	return ev, nil
}

func normalizeKind(kind string) ExecEventKind {
	switch ExecEventKind(kind) {
	case KindAgent, KindSandbox, KindAgentOutput, KindSummary, KindFile:
		return ExecEventKind(kind)
	default:
		return KindUnknown
	}
}
