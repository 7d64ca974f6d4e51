package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// IndexDirName is the per-repository index directory name.
const IndexDirName = ".index"

// GlobalIndexRoot is the directory under $HOME holding out-of-tree
// indexes, keyed by repository slug.
const GlobalIndexRoot = ".indexes"

// maxAncestorLevels bounds the upward walk during discovery.
const maxAncestorLevels = 10

// Locate finds an existing index for startDir: startDir/.index, then
// each ancestor up to ten levels, then $HOME/.indexes/<slug(startDir)>.
// Returns the first directory containing a manifest file, or ""
// when none exists. Locate never creates an index.
func Locate(startDir string) string {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}

	dir := abs
	for level := 0; level <= maxAncestorLevels; level++ {
		candidate := filepath.Join(dir, IndexDirName)
		if hasManifest(candidate) {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, GlobalIndexRoot, Slug(abs))
		if hasManifest(candidate) {
			return candidate
		}
	}
	return ""
}

// Slug derives a stable directory name for a repository path: its base
// name plus a short hash of the absolute path.
func Slug(absPath string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(absPath)))
	base := strings.ToLower(filepath.Base(absPath))
	if base == "" || base == string(filepath.Separator) {
		base = "root"
	}
	return base + "-" + hex.EncodeToString(sum[:])[:8]
}

func hasManifest(indexDir string) bool {
	info, err := os.Stat(filepath.Join(indexDir, ManifestFileName))
	return err == nil && !info.IsDir()
}
