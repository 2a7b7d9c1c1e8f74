package catalog

import (
	"bufio"
	"os"
	"strings"
)

// Classifier assigns a kind to an item. It must be synchronous and must not
// mutate the item; the bool result is false for unsupported items.
type Classifier interface {
	Classify(item Item) (Kind, bool)
}

// ClassifierFunc adapts a function into a Classifier.
type ClassifierFunc func(Item) (Kind, bool)

// Classify executes f(item).
func (f ClassifierFunc) Classify(item Item) (Kind, bool) {
	return f(item)
}

// ExtensionClassifier classifies by file extension. With InspectPrefabs set,
// prefabs only qualify when their serialized components include a mesh
// renderer, since anything else has nothing to render.
type ExtensionClassifier struct {
	InspectPrefabs bool
}

// Classify implements Classifier.
func (c ExtensionClassifier) Classify(item Item) (Kind, bool) {
	name := item.Source
	if name == "" {
		name = item.Path
	}
	kind := KindForExtension(name)
	if !kind.Supported() {
		return KindUnsupported, false
	}
	if kind == KindPrefab && c.InspectPrefabs && item.Source != "" {
		if !hasMeshRenderer(item.Source) {
			return KindUnsupported, false
		}
	}
	return kind, true
}

var meshComponentMarkers = []string{
	"MeshRenderer:",
	"SkinnedMeshRenderer:",
}

// hasMeshRenderer scans a text-serialized prefab for renderer components.
// Unreadable files count as having none.
func hasMeshRenderer(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, marker := range meshComponentMarkers {
			if line == marker {
				return true
			}
		}
	}
	return false
}
