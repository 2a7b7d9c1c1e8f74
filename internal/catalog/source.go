package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrScopeNotFound is returned when a scope names a directory that does not
// exist under the content root.
var ErrScopeNotFound = errors.New("catalog: scope not found")

// ErrOutsideRoot is returned for paths that climb out of the content root.
var ErrOutsideRoot = errors.New("catalog: path escapes the content root")

// Source enumerates candidate items for a scope. Items come back unclassified
// and in a stable order.
type Source interface {
	Find(scope Scope) ([]Item, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(Scope) ([]Item, error)

// Find executes f(scope).
func (f SourceFunc) Find(scope Scope) ([]Item, error) {
	return f(scope)
}

// FileSource enumerates files under an editor content root such as
// <project>/Assets. Host paths are rooted at the content root's base name,
// so an item under /work/game/Assets/Props reports Assets/Props/....
type FileSource struct {
	Root string
}

// Find walks the scope directory. Hidden entries and editor .meta sidecars are
// ignored; when the scope filters kinds, only files whose extension maps to
// one of them are returned.
func (s FileSource) Find(scope Scope) ([]Item, error) {
	dir, err := s.resolve(scope.Dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, scope.Dir)
		}
		return nil, fmt.Errorf("catalog: stat scope %s: %w", scope.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog: scope %s is not a directory", scope.Dir)
	}
	var items []Item
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && p != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.EqualFold(filepath.Ext(name), ".meta") {
			return nil
		}
		if len(scope.Kinds) > 0 && !scope.Allows(KindForExtension(name)) {
			return nil
		}
		item, err := s.item(p)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: walk %s: %w", dir, err)
	}
	return items, nil
}

// Locate maps a host path (Assets/Props/Crate.prefab) to the file on disk and
// reports whether it exists.
func (s FileSource) Locate(hostPath string) (string, bool, error) {
	if strings.TrimSpace(hostPath) == "" {
		return "", false, fmt.Errorf("catalog: path is required")
	}
	full, err := s.resolve(hostPath)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return full, false, nil
		}
		return full, false, err
	}
	return full, !info.IsDir(), nil
}

func (s FileSource) item(full string) (Item, error) {
	rel, err := filepath.Rel(s.Root, full)
	if err != nil {
		return Item{}, err
	}
	id := filepath.ToSlash(rel)
	base := filepath.Base(full)
	return Item{
		ID:     id,
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Path:   path.Join(filepath.Base(s.Root), id),
		Source: full,
	}, nil
}

// resolve turns a scope or host path into an absolute path under Root.
// Both "Assets/Props" and "Props" name the same directory.
func (s FileSource) resolve(p string) (string, error) {
	if strings.TrimSpace(s.Root) == "" {
		return "", fmt.Errorf("catalog: content root is not configured")
	}
	raw := filepath.ToSlash(strings.TrimSpace(p))
	for _, segment := range strings.Split(raw, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, p)
		}
	}
	cleaned := path.Clean("/" + raw)
	cleaned = strings.TrimPrefix(cleaned, "/")
	rootName := filepath.Base(s.Root)
	switch {
	case cleaned == rootName:
		cleaned = ""
	case strings.HasPrefix(cleaned, rootName+"/"):
		cleaned = strings.TrimPrefix(cleaned, rootName+"/")
	}
	if cleaned == "" || cleaned == "." {
		return filepath.Clean(s.Root), nil
	}
	return filepath.Join(s.Root, filepath.FromSlash(cleaned)), nil
}
