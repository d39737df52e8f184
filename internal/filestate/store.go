package filestate

import (
	"strings"
	"sync"
	"time"
)

// FileItem is the current content snapshot for one path within an open
// task run. Path is the unique key; last writer wins.
type FileItem struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Store holds the file set for one open run view. Mutation is upsert
// only; subscribers receive the full updated set after every change.
type Store struct {
	mu    sync.Mutex
	index map[string]int
	files []FileItem
	subs  []func([]FileItem)
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Upsert replaces the content at path or appends a new entry. Replaying
// the same path/content pair leaves the set unchanged apart from the
// timestamp, so subscribers are still notified with an identical set.
func (s *Store) Upsert(path, content string, ts time.Time) {
	if s == nil {
		return
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	s.mu.Lock()
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[path]; ok {
		s.files[i].Content = content
		s.files[i].Timestamp = ts
	} else {
		s.index[path] = len(s.files)
		s.files = append(s.files, FileItem{Path: path, Content: content, Timestamp: ts})
	}
	snapshot := make([]FileItem, len(s.files))
	copy(snapshot, s.files)
	subs := s.subs
	s.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(snapshot)
		}
	}
}

// Files returns the current set in first-insertion order.
func (s *Store) Files() []FileItem {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileItem, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// Subscribe registers fn to receive the full file set after each upsert.
// There is no unsubscribe; the store dies with its run view.
func (s *Store) Subscribe(fn func([]FileItem)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
