package filestate

import (
	"testing"
	"time"
)

func TestUpsertLastWriterWins(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Upsert("src/a.ts", "v1", time.Now())
	s.Upsert("src/a.ts", "v2", time.Now())

	files := s.Files()
	if len(files) != 1 {
		t.Fatalf("expected one entry, got %d", len(files))
	}
	if files[0].Path != "src/a.ts" || files[0].Content != "v2" {
		t.Fatalf("unexpected entry: %+v", files[0])
	}
}

func TestFirstInsertionOrderPreserved(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Upsert("z.txt", "1", time.Time{})
	s.Upsert("a.txt", "2", time.Time{})
	s.Upsert("m.txt", "3", time.Time{})
	s.Upsert("z.txt", "updated", time.Time{})

	files := s.Files()
	want := []string{"z.txt", "a.txt", "m.txt"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %d", len(want), len(files))
	}
	for i, path := range want {
		if files[i].Path != path {
			t.Fatalf("position %d: expected %s, got %s", i, path, files[i].Path)
		}
	}
}

func TestUpsertIdempotentReplay(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Upsert("src/a.ts", "v1", time.Time{})
	before := s.Files()
	s.Upsert("src/a.ts", "v1", time.Time{})
	after := s.Files()

	if len(before) != len(after) {
		t.Fatalf("replay changed the set size: %d vs %d", len(before), len(after))
	}
	if before[0].Path != after[0].Path || before[0].Content != after[0].Content {
		t.Fatalf("replay changed content: %+v vs %+v", before[0], after[0])
	}
}

func TestSubscribersReceiveFullSet(t *testing.T) {
	t.Parallel()

	s := NewStore()
	var last []FileItem
	calls := 0
	s.Subscribe(func(files []FileItem) {
		last = files
		calls++
	})

	s.Upsert("a.txt", "1", time.Time{})
	s.Upsert("b.txt", "2", time.Time{})
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}
	if len(last) != 2 || last[0].Path != "a.txt" || last[1].Path != "b.txt" {
		t.Fatalf("subscriber did not receive the full set: %+v", last)
	}
}

func TestUpsertIgnoresEmptyPath(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.Upsert("  ", "content", time.Time{})
	if s.Len() != 0 {
		t.Fatalf("empty path must not be stored")
	}
}
