package mcp

import "path/filepath"

// Normalizer resolves tool path arguments against the workspace root
type Normalizer struct {
	root string
}

// NewNormalizer returns a Normalizer for root. root is used as given; callers
// pass the session's absolute root
func NewNormalizer(root string) Normalizer {
	return Normalizer{root: root}
}

// Root returns the base directory for relative paths
func (n Normalizer) Root() string {
	return n.root
}

// Normalize makes path absolute. Absolute paths are only cleaned, relative
// paths are joined onto the root. The filesystem is never consulted, so
// paths that do not exist are resolved like any other
func (n Normalizer) Normalize(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(n.root, path)
}
