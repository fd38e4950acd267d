// Package mount turns a declarative list of bind mounts into the ordered
// sequence of mount(2) calls needed to stage a jail filesystem, and owns the
// pivot_root dance that switches the child into it.
package mount

// Options is the triple of booleans controlling how a single bind mount is
// applied. Use DefaultOptions for the conservative default; the zero value
// is a writable mount.
type Options struct {
	ReadOnly bool
	Dev      bool
	Exec     bool
}

// DefaultOptions returns the conservative default: read-only, no device
// nodes, no exec.
func DefaultOptions() Options {
	return Options{ReadOnly: true}
}

// Mount is a single bind mount: Source on the outer filesystem, Destination
// interpreted relative to the new root after pivot.
type Mount struct {
	Source      string
	Destination string
	Options     Options
}
