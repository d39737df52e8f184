package filestate

import "strings"

type NodeKind string

const (
	NodeFile   NodeKind = "file"
	NodeFolder NodeKind = "folder"
)

// Node is one entry in the derived file tree. The tree is disposable:
// rebuilt from the current file set whenever a consumer needs it.
type Node struct {
	Kind     NodeKind `json:"kind"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Children []*Node  `json:"children,omitempty"`
}

// BuildTree derives the folder/file hierarchy from files. It is a pure
// function of its input: same set in, same tree out. Children keep the
// first-insertion order of the source set, not alphabetical order.
//
// A collision between a prospective folder and an existing file node (or
// the reverse) at the same path keeps the existing node and skips the
// conflicting insertion; skipped paths are returned for the caller to
// log.
func BuildTree(files []FileItem) (*Node, []string) {
	root := &Node{Kind: NodeFolder}
	var skipped []string

	for _, f := range files {
		path := strings.Trim(strings.TrimSpace(f.Path), "/")
		if path == "" {
			continue
		}
		segments := strings.Split(path, "/")
		cur := root
		ok := true
		for i, seg := range segments {
			if seg == "" {
				ok = false
				break
			}
			last := i == len(segments)-1
			fullPath := strings.Join(segments[:i+1], "/")
			child := findChild(cur, seg)
			if child == nil {
				kind := NodeFolder
				if last {
					kind = NodeFile
				}
				child = &Node{Kind: kind, Name: seg, Path: fullPath}
				cur.Children = append(cur.Children, child)
			} else {
				wantFolder := !last
				if (wantFolder && child.Kind != NodeFolder) || (!wantFolder && child.Kind != NodeFile) {
					// First writer owns the structure at this path.
					ok = false
					break
				}
			}
			cur = child
		}
		if !ok {
			skipped = append(skipped, f.Path)
		}
	}
	return root, skipped
}

func findChild(n *Node, name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Flatten returns the paths of every file leaf under root in tree order.
func Flatten(root *Node) []string {
	if root == nil {
		return nil
	}
	var out []string
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Kind == NodeFile {
			out = append(out, n.Path)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}
