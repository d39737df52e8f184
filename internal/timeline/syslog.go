package timeline

import (
	"sort"
	"time"
)

// SystemLogEntry is one entry in the unified status timeline, produced
// from status-bearing chat messages and from execution-channel events.
// Append-only; ordering key is the timestamp, with the numeric prefix of
// the id as fallback.
type SystemLogEntry struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	FilePath  string    `json:"file_path,omitempty"`
}

func (e SystemLogEntry) sortKey() int64 {
	if !e.Timestamp.IsZero() {
		return e.Timestamp.UnixMilli()
	}
	if n, ok := numericIDPrefix(e.ID); ok {
		return n
	}
	return 0
}

// MergeSystemLog merges the two sources into one ascending timeline. It
// is pure: repeated invocation with the same inputs yields the same
// output, and the inputs are never mutated. Callers own accumulation.
func MergeSystemLog(fromMessages, fromExecution []SystemLogEntry) []SystemLogEntry {
	out := make([]SystemLogEntry, 0, len(fromMessages)+len(fromExecution))
	out = append(out, fromMessages...)
	out = append(out, fromExecution...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].sortKey() < out[j].sortKey()
	})
	return out
}
