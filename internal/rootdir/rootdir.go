// Package rootdir locates the project root and its web content folders.
package rootdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMarker is the build output segment that separates the project
// root from the installed binary, e.g. /srv/app/target/mnodemo.
const DefaultMarker = "/target/"

const (
	WebContentSubdir     = "web"
	CompiledOutputSubdir = "target/public"
	tempDocBasePattern   = "default-doc-base"
)

// Resolve returns the prefix of executable before the last occurrence of
// marker, or the current working directory when marker does not occur.
func Resolve(executable, marker string) (string, error) {
	p := strings.ReplaceAll(executable, `\`, "/")
	if marker != "" {
		if i := strings.LastIndex(p, marker); i >= 0 {
			return filepath.FromSlash(p[:i]), nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve root folder: %w", err)
	}
	return wd, nil
}

// FromExecutable resolves the root from the running binary's location.
func FromExecutable(marker string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return Resolve(exe, marker)
}

// WebContent returns root/web when it is a directory. Otherwise it creates
// a fresh empty temp directory and reports temp=true; the caller owns it.
func WebContent(root string) (dir string, temp bool, err error) {
	dir = filepath.Join(root, WebContentSubdir)
	if isDir(dir) {
		return dir, false, nil
	}
	dir, err = os.MkdirTemp("", tempDocBasePattern)
	if err != nil {
		return "", false, fmt.Errorf("create default doc base: %w", err)
	}
	return dir, true, nil
}

// CompiledOutput returns root/target/public and whether it exists.
func CompiledOutput(root string) (string, bool) {
	dir := filepath.Join(root, filepath.FromSlash(CompiledOutputSubdir))
	return dir, isDir(dir)
}

func isDir(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.IsDir()
}
