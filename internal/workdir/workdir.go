// Package workdir locates the directory holding the local store, searching
// upward from the working directory the way git finds its repository.
package workdir

import "path/filepath"

// Find returns the nearest directory at or above start for which has
// reports true. When none matches, start is returned unchanged.
func Find(start string, has func(dir string) bool) string {
	dir := filepath.Clean(start)
	for {
		if has(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(start)
		}
		dir = parent
	}
}
