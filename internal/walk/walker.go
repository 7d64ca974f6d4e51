// Package walk discovers indexable files under a root, honoring layered
// ignore rules: a built-in set, then the .gitignore chain, then .ignore,
// then .codesearchignore, later layers overriding earlier ones.
package walk

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// Ignore file names, in override order (later wins).
var ignoreFileNames = []string{".gitignore", ".ignore", ".codesearchignore"}

// builtinDirs are directory names never descended into.
var builtinDirs = map[string]bool{
	".git": true, "node_modules": true, "target": true, "dist": true,
	".venv": true, "__pycache__": true, ".idea": true, ".vscode": true,
	".index": true,
}

// builtinBinaryExts are extensions skipped without content sniffing.
var builtinBinaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true,
	".xz": true, ".7z": true, ".jar": true, ".class": true, ".exe": true,
	".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true, ".wasm": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".mp3": true,
	".mp4": true, ".mov": true, ".avi": true, ".webm": true, ".webp": true,
	".onnx": true, ".pt": true, ".safetensors": true,
}

// FileInfo describes one discovered candidate file.
type FileInfo struct {
	// Path is repo-relative with forward slashes.
	Path string
	// AbsPath is the absolute filesystem path.
	AbsPath string
	Size    int64
	MTime   time.Time
}

// layer is one compiled ignore file scoped to a directory.
type layer struct {
	base    string // repo-relative dir the file lives in, "" at root
	matcher *ignore.GitIgnore
	order   int // position in ignoreFileNames, for override precedence
}

// Walker walks a tree honoring layered ignore rules.
type Walker struct {
	root string

	mu     sync.Mutex
	layers map[string][]layer // keyed by repo-relative directory
	extra  *ignore.GitIgnore  // config-supplied patterns, highest layer
}

// New creates a walker rooted at root. extraPatterns are appended as
// the highest-precedence layer (from configuration).
func New(root string, extraPatterns []string) *Walker {
	w := &Walker{
		root:   filepath.Clean(root),
		layers: make(map[string][]layer),
	}
	if len(extraPatterns) > 0 {
		w.extra = ignore.CompileIgnoreLines(extraPatterns...)
	}
	return w
}

// Root returns the walk root.
func (w *Walker) Root() string { return w.root }

// Walk returns every candidate file under the root in deterministic
// (lexical) order.
func (w *Walker) Walk(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if w.ignoredDir(rel, filepath.Base(path)) {
				return filepath.SkipDir
			}
			w.loadLayers(rel)
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if w.IsIgnored(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:    rel,
			AbsPath: path,
			Size:    info.Size(),
			MTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// IsIgnored reports whether a repo-relative file path is excluded by
// any active layer. Ignore files along the path are loaded on demand,
// so the watcher can consult the same rules without a full walk.
func (w *Walker) IsIgnored(rel string) bool {
	rel = filepath.ToSlash(rel)

	if builtinBinaryExts[strings.ToLower(filepath.Ext(rel))] {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if builtinDirs[seg] {
			return true
		}
	}

	w.ensurePathLayers(rel)
	return w.matchLayers(rel, false)
}

func (w *Walker) ignoredDir(rel, base string) bool {
	if builtinDirs[base] {
		return true
	}
	w.ensurePathLayers(rel)
	return w.matchLayers(rel+"/", true)
}

// matchLayers evaluates all layers in precedence order; the last layer
// with an opinion wins. The config-supplied extra patterns outrank
// every file layer.
func (w *Walker) matchLayers(rel string, isDir bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	ignored := false

	// Collect layers from root down to the file's directory.
	dir := strings.TrimSuffix(filepath.ToSlash(filepath.Dir(strings.TrimSuffix(rel, "/"))), ".")
	var applicable []layer
	applicable = append(applicable, w.layers[""]...)
	if dir != "" {
		parts := strings.Split(dir, "/")
		for i := range parts {
			prefix := strings.Join(parts[:i+1], "/")
			applicable = append(applicable, w.layers[prefix]...)
		}
	}

	for order := 0; order < len(ignoreFileNames); order++ {
		for _, l := range applicable {
			if l.order != order {
				continue
			}
			// Ignore-file patterns are relative to their directory.
			scoped := rel
			if l.base != "" {
				if !strings.HasPrefix(rel, l.base+"/") {
					continue
				}
				scoped = strings.TrimPrefix(rel, l.base+"/")
			}
			if matched, pattern := l.matcher.MatchesPathHow(scoped); pattern != nil {
				ignored = matched
			}
		}
	}

	if w.extra != nil {
		if matched, pattern := w.extra.MatchesPathHow(rel); pattern != nil {
			ignored = matched
		}
	}

	return ignored
}

// ensurePathLayers loads ignore files for every directory along rel.
func (w *Walker) ensurePathLayers(rel string) {
	w.loadLayers("")
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		w.loadLayers(strings.Join(parts[:i+1], "/"))
	}
}

// loadLayers compiles the ignore files in one directory, once.
func (w *Walker) loadLayers(relDir string) {
	if relDir == "." {
		relDir = ""
	}

	w.mu.Lock()
	if _, done := w.layers[relDir]; done {
		w.mu.Unlock()
		return
	}
	w.layers[relDir] = nil // mark visited even if no ignore files exist
	w.mu.Unlock()

	var found []layer
	for order, name := range ignoreFileNames {
		path := filepath.Join(w.root, filepath.FromSlash(relDir), name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		matcher, err := ignore.CompileIgnoreFile(path)
		if err != nil {
			continue
		}
		found = append(found, layer{base: relDir, matcher: matcher, order: order})
	}

	if len(found) > 0 {
		w.mu.Lock()
		w.layers[relDir] = found
		w.mu.Unlock()
	}
}
