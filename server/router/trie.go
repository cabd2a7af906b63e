// prefix tree of mount points, it is not accessible from upper packages so use an abstraction: Router
package router

import (
	"bytes"
)

// tree node, one url segment per node
type node struct {
	prefix  []byte
	ch      []node // children in flat area for data locality to not miss the cache
	dir     string // directory mounted here
	mounted bool
}

// insert mount point to tree that means link url prefix and directory
func (n *node) insert(path []byte, dir string) {
	// cut first slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}

	// split our url to segments /static/img -> {static, img}
	segm := bytes.Split(path, []byte("/"))
	cur := n

	for _, s := range segm {
		// skip empty segment (/)
		if len(s) == 0 {
			continue
		}

		// find child index in flat child array
		idx := -1
		for i := range cur.ch {
			if bytes.Equal(cur.ch[i].prefix, s) {
				idx = i
				break
			}
		}

		// if no target -> make new node
		if idx == -1 {
			prefCopy := make([]byte, len(s))
			copy(prefCopy, s)
			cur.ch = append(cur.ch, node{prefix: prefCopy})
			idx = len(cur.ch) - 1
		}
		cur = &cur.ch[idx]
	}

	cur.dir = dir
	cur.mounted = true
}

// find deepest mount for target, returns its dir and offset of the rest of target
// (rest keeps its leading slash). dir is empty if nothing is mounted on the way
func (n *node) find(target []byte) (dir string, off int) {
	cur := n
	crs := 0
	if cur.mounted {
		dir = cur.dir
	}

	for {
		fp := target[crs:]
		if len(fp) == 0 || fp[0] != '/' {
			return dir, off
		}
		fp = fp[1:]

		end := bytes.IndexByte(fp, '/')
		if end == -1 {
			end = len(fp)
		}
		seg := fp[:end]

		var next *node
		for i := range cur.ch {
			if bytes.Equal(cur.ch[i].prefix, seg) {
				next = &cur.ch[i]
				break
			}
		}
		if next == nil {
			return dir, off
		}

		cur = next
		crs += 1 + end
		if cur.mounted {
			dir, off = cur.dir, crs
		}
	}
}
