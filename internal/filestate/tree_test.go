package filestate

import (
	"testing"
)

func files(paths ...string) []FileItem {
	out := make([]FileItem, 0, len(paths))
	for _, p := range paths {
		out = append(out, FileItem{Path: p, Content: "x"})
	}
	return out
}

func TestBuildTreeRoundTrip(t *testing.T) {
	t.Parallel()

	in := files("src/a.ts", "src/lib/b.ts", "README.md", "src/lib/c.ts")
	root, skipped := BuildTree(in)
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %v", skipped)
	}
	if root.Kind != NodeFolder || root.Name != "" || root.Path != "" {
		t.Fatalf("root must be an anonymous folder: %+v", root)
	}

	got := Flatten(root)
	want := map[string]bool{"src/a.ts": true, "src/lib/b.ts": true, "README.md": true, "src/lib/c.ts": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d leaves, got %d (%v)", len(want), len(got), got)
	}
	for _, p := range got {
		if !want[p] {
			t.Fatalf("unexpected leaf %s", p)
		}
	}
}

func TestBuildTreePreservesInsertionOrder(t *testing.T) {
	t.Parallel()

	root, _ := BuildTree(files("zeta.txt", "alpha/a.txt", "beta.txt"))
	if len(root.Children) != 3 {
		t.Fatalf("expected 3 top-level entries, got %d", len(root.Children))
	}
	want := []string{"zeta.txt", "alpha", "beta.txt"}
	for i, name := range want {
		if root.Children[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, root.Children[i].Name)
		}
	}
}

func TestBuildTreeNesting(t *testing.T) {
	t.Parallel()

	root, _ := BuildTree(files("a/b/c.txt"))
	a := root.Children[0]
	if a.Kind != NodeFolder || a.Name != "a" || a.Path != "a" {
		t.Fatalf("unexpected folder a: %+v", a)
	}
	b := a.Children[0]
	if b.Kind != NodeFolder || b.Path != "a/b" {
		t.Fatalf("unexpected folder b: %+v", b)
	}
	c := b.Children[0]
	if c.Kind != NodeFile || c.Name != "c.txt" || c.Path != "a/b/c.txt" {
		t.Fatalf("unexpected file c: %+v", c)
	}
}

func TestBuildTreeCollisionExistingWins(t *testing.T) {
	t.Parallel()

	// "src" exists as a file first; a later file wants it as a folder.
	root, skipped := BuildTree(files("src", "src/a.ts"))
	if len(skipped) != 1 || skipped[0] != "src/a.ts" {
		t.Fatalf("expected src/a.ts skipped, got %v", skipped)
	}
	if len(root.Children) != 1 || root.Children[0].Kind != NodeFile {
		t.Fatalf("existing file node must win: %+v", root.Children)
	}

	// Reverse: folder exists first, then a file at the same name.
	root, skipped = BuildTree(files("src/a.ts", "src"))
	if len(skipped) != 1 || skipped[0] != "src" {
		t.Fatalf("expected src skipped, got %v", skipped)
	}
	if root.Children[0].Kind != NodeFolder {
		t.Fatalf("existing folder node must win: %+v", root.Children[0])
	}
}

func TestBuildTreeDeterministic(t *testing.T) {
	t.Parallel()

	in := files("a/x.txt", "a/y.txt", "b/z.txt")
	first, _ := BuildTree(in)
	second, _ := BuildTree(in)
	a := Flatten(first)
	b := Flatten(second)
	if len(a) != len(b) {
		t.Fatalf("rebuild changed leaf count")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("rebuild changed order at %d: %s vs %s", i, a[i], b[i])
		}
	}
}
