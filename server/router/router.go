package router

import "github.com/sirupsen/logrus"

// Router maps a request target to a file path.
// "/" is always mounted on the document root so by default
// the path is just root + target.
type Router struct {
	treeroot node
	root     string
	log      *logrus.Entry
}

// init a new router, mounts is url prefix -> directory
func New(root string, mounts map[string]string, log *logrus.Entry) *Router {
	r := &Router{root: root, log: log}
	r.Mount("/", root)

	for prefix, dir := range mounts {
		r.Mount(prefix, dir)
	}
	return r
}

// Mount serves dir under url prefix. Not safe to call while serving.
func (r *Router) Mount(prefix, dir string) {
	r.treeroot.insert([]byte(prefix), dir)
	r.log.WithFields(logrus.Fields{
		"prefix": prefix,
		"dir":    dir,
	}).Debug("mounted directory")
}

// Resolve returns the filesystem path for target, empty target gives the root itself.
// the tree root is always mounted so every target matches something
func (r *Router) Resolve(target []byte) string {
	dir, off := r.treeroot.find(target)
	return dir + string(target[off:])
}

func (r *Router) Root() string {
	return r.root
}
