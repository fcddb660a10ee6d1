package texture

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Index maps case-folded slash paths, relative to a model directory, to the
// files that actually exist on disk. Model files are usually authored on
// case-insensitive filesystems, so "Tex\Body.PNG" must find "tex/body.png".
type Index struct {
	root  string
	paths map[string]string // folded relative path → full path
	stems map[string]string // folded base name → full path, first seen wins
}

func fold(p string) string {
	return strings.ToLower(strings.ReplaceAll(p, "\\", "/"))
}

// BuildIndex walks root and every directory below it.
func BuildIndex(root string) *Index {
	idx := &Index{
		root:  root,
		paths: make(map[string]string),
		stems: make(map[string]string),
	}
	if root == "" {
		return idx
	}
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		idx.paths[fold(filepath.ToSlash(rel))] = path
		base := fold(d.Name())
		if _, ok := idx.stems[base]; !ok {
			idx.stems[base] = path
		}
		return nil
	})
	return idx
}

// ResolvePath returns the filesystem path for a model-relative texture
// name. When the directory part does not match, the bare file name is
// tried anywhere under the root.
func (idx *Index) ResolvePath(texName string) (string, bool) {
	if texName == "" {
		return "", false
	}
	key := strings.TrimPrefix(fold(texName), "./")
	if path, ok := idx.paths[key]; ok {
		return path, true
	}
	path, ok := idx.stems[key[strings.LastIndex(key, "/")+1:]]
	return path, ok
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	return len(idx.paths)
}

// ToonName returns the file name of shared toon ramp n (0-9).
func ToonName(n int) string {
	return fmt.Sprintf("toon%02d.bmp", n+1)
}
