// Package webresources layers static content directories into one tree.
//
// A Root has a main resource set (the web content folder) and any number of
// pre-resources mounted at a path. Pre-resources are consulted first, in the
// order they were added.
package webresources

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"
	"syscall"
)

type mount struct {
	prefix string
	set    fs.FS
}

// Root is an fs.FS over the layered resource sets.
type Root struct {
	main fs.FS
	pre  []mount
}

var _ fs.FS = (*Root)(nil)

func NewRoot(main fs.FS) *Root {
	if main == nil {
		main = EmptySet()
	}
	return &Root{main: main}
}

// DirSet is a resource set backed by a directory on disk.
func DirSet(dir string) fs.FS {
	return os.DirFS(dir)
}

// AddPreResources mounts set at mountPath ("/" or "" for the root),
// in front of the sets already registered.
func (r *Root) AddPreResources(mountPath string, set fs.FS) {
	r.pre = append(r.pre, mount{
		prefix: strings.Trim(path.Clean("/"+mountPath), "/"),
		set:    set,
	})
}

func (r *Root) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	for _, m := range r.pre {
		rel, ok := m.relative(name)
		if !ok {
			continue
		}
		f, err := m.set.Open(rel)
		if err == nil {
			return f, nil
		}
		// A file shadowing a directory on the way to name is a miss too.
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return nil, err
		}
	}
	return r.main.Open(name)
}

func (m mount) relative(name string) (string, bool) {
	switch {
	case m.prefix == "":
		return name, true
	case name == m.prefix:
		return ".", true
	case strings.HasPrefix(name, m.prefix+"/"):
		return strings.TrimPrefix(name, m.prefix+"/"), true
	}
	return "", false
}

type emptySet struct{}

// EmptySet is a resource set with no content: every Open fails with
// fs.ErrNotExist. It stands in for an optional directory that is absent.
func EmptySet() fs.FS {
	return emptySet{}
}

func (emptySet) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
