// Package catalog defines the units of work an orchestrated collection walks:
// items discovered under the editor's content root, the kinds they classify
// into, and the scope a request narrows enumeration to.

package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the classification tag computed for an item.
type Kind string

const (
	KindUnsupported Kind = ""
	KindScene       Kind = "scene"
	KindPrefab      Kind = "prefab"
	KindMaterial    Kind = "material"
	KindTexture     Kind = "texture"
	KindAnimation   Kind = "animation"
)

var extensionKinds = map[string]Kind{
	".unity":      KindScene,
	".prefab":     KindPrefab,
	".mat":        KindMaterial,
	".png":        KindTexture,
	".jpg":        KindTexture,
	".jpeg":       KindTexture,
	".tga":        KindTexture,
	".bmp":        KindTexture,
	".gif":        KindTexture,
	".psd":        KindTexture,
	".tif":        KindTexture,
	".tiff":       KindTexture,
	".anim":       KindAnimation,
	".controller": KindAnimation,
}

// KindForExtension maps a file name to its kind by extension, ignoring case.
func KindForExtension(name string) Kind {
	return extensionKinds[strings.ToLower(filepath.Ext(name))]
}

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindScene, KindPrefab, KindMaterial, KindTexture, KindAnimation}
}

// ParseKinds validates a request's kind filter. Empty input means every kind.
func ParseKinds(values []string) ([]Kind, error) {
	if len(values) == 0 {
		return nil, nil
	}
	seen := make(map[Kind]struct{}, len(values))
	out := make([]Kind, 0, len(values))
	for _, raw := range values {
		kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
		if !kind.Supported() {
			return nil, fmt.Errorf("catalog: unknown kind %q", raw)
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Supported reports whether k names a known kind.
func (k Kind) Supported() bool {
	switch k {
	case KindScene, KindPrefab, KindMaterial, KindTexture, KindAnimation:
		return true
	}
	return false
}

// Item is one discovered asset. Artifacts and Digest are filled in only when
// processing succeeds, by the item's own completion.
type Item struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Source    string   `json:"-"`
	Kind      Kind     `json:"kind"`
	Artifacts []string `json:"artifacts,omitempty"`
	Digest    string   `json:"digest,omitempty"`
}

// Scope narrows enumeration to a sub-directory and optionally to kinds.
type Scope struct {
	Dir   string
	Kinds []Kind
}

// Allows reports whether kind passes the scope's kind filter.
func (s Scope) Allows(kind Kind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// String renders the scope for logs.
func (s Scope) String() string {
	dir := s.Dir
	if dir == "" {
		dir = "<all>"
	}
	if len(s.Kinds) == 0 {
		return dir
	}
	names := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("%s [%s]", dir, strings.Join(names, ","))
}
