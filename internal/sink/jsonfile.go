package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFileName is the manifest written into the output directory.
const JSONFileName = "AllAssetInfo.json"

// AssetInfo is one manifest entry.
type AssetInfo struct {
	Name          string   `json:"Name"`
	Path          string   `json:"Path"`
	Type          string   `json:"Type"`
	ArtifactPaths []string `json:"ArtifactPaths"`
	Digest        string   `json:"Digest,omitempty"`
}

// Manifest is the top-level document.
type Manifest struct {
	AssetInfos []AssetInfo `json:"AssetInfos"`
}

// JSONFile writes the manifest, and optionally a compressed copy of it.
type JSONFile struct {
	Compression Compression
}

// Write implements Sink.
func (s JSONFile) Write(_ context.Context, batch Batch, outputDir string) error {
	manifest := Manifest{AssetInfos: make([]AssetInfo, 0, len(batch.Items))}
	for _, item := range batch.Items {
		artifacts := item.Artifacts
		if artifacts == nil {
			artifacts = []string{}
		}
		manifest.AssetInfos = append(manifest.AssetInfos, AssetInfo{
			Name:          item.Name,
			Path:          item.Path,
			Type:          string(item.Kind),
			ArtifactPaths: artifacts,
			Digest:        item.Digest,
		})
	}
	data, err := json.MarshalIndent(manifest, "", "    ")
	if err != nil {
		return fmt.Errorf("sink: encode manifest: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("sink: create %s: %w", outputDir, err)
	}
	path := filepath.Join(outputDir, JSONFileName)
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	if s.Compression == "" || s.Compression == CompressionNone {
		return nil
	}
	packed, err := s.Compression.compress(data)
	if err != nil {
		return err
	}
	return writeFileAtomic(path+s.Compression.Extension(), packed)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("sink: create temp for %s: %w", path, err)
	}
	name := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sink: chmod %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("sink: close %s: %w", path, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("sink: rename %s: %w", path, err)
	}
	return nil
}
