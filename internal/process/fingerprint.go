package process

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kingrea/editorbridge/internal/catalog"
)

// fingerprintDomainKey keys the BLAKE3 hasher so asset digests never collide
// with hashes computed for other purposes over the same bytes.
var fingerprintDomainKey = [32]byte{
	'e', 'd', 'i', 't', 'o', 'r', 'b', 'r', 'i', 'd', 'g', 'e', '.',
	'a', 's', 's', 'e', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// artifactNameDomainKey keys the hash that disambiguates artifact names.
var artifactNameDomainKey = [32]byte{
	'e', 'd', 'i', 't', 'o', 'r', 'b', 'r', 'i', 'd', 'g', 'e', '.',
	'a', 'r', 't', 'i', 'f', 'a', 'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

const artifactNameHashBytes = 6

// Fingerprint is the artifact written for each processed item.
type Fingerprint struct {
	ID      string       `json:"id"`
	Path    string       `json:"path"`
	Kind    catalog.Kind `json:"kind"`
	Size    int64        `json:"size"`
	ModTime time.Time    `json:"mod_time"`
	Digest  string       `json:"blake3"`
}

// Fingerprinter is the reference Processor: on a pool worker it hashes the
// item's source file and writes a JSON fingerprint into the output directory.
type Fingerprinter struct {
	pool *Pool
}

// NewFingerprinter schedules fingerprinting on pool.
func NewFingerprinter(pool *Pool) *Fingerprinter {
	return &Fingerprinter{pool: pool}
}

// Process implements Processor.
func (f *Fingerprinter) Process(item catalog.Item, outputDir string, done func(Outcome)) {
	if f == nil || f.pool == nil {
		done(Outcome{Err: fmt.Errorf("process: fingerprinter has no pool")})
		return
	}
	err := f.pool.Submit(func() {
		done(fingerprint(item, outputDir))
	})
	if err != nil {
		done(Outcome{Err: err})
	}
}

func fingerprint(item catalog.Item, outputDir string) Outcome {
	if item.Source == "" {
		return Outcome{Err: fmt.Errorf("process: %s has no source file", item.ID)}
	}
	file, err := os.Open(item.Source)
	if err != nil {
		return Outcome{Err: fmt.Errorf("process: open %s: %w", item.ID, err)}
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return Outcome{Err: fmt.Errorf("process: stat %s: %w", item.ID, err)}
	}
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("process: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return Outcome{Err: fmt.Errorf("process: hash %s: %w", item.ID, err)}
	}
	digest := hex.EncodeToString(hasher.Sum(nil))
	record := Fingerprint{
		ID:      item.ID,
		Path:    item.Path,
		Kind:    item.Kind,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
		Digest:  digest,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Outcome{Err: fmt.Errorf("process: encode fingerprint for %s: %w", item.ID, err)}
	}
	artifact := filepath.Join(outputDir, ArtifactName(item))
	if err := os.WriteFile(artifact, data, 0o644); err != nil {
		return Outcome{Err: fmt.Errorf("process: write %s: %w", artifact, err)}
	}
	return Outcome{Artifacts: []string{artifact}, Digest: digest}
}

// ArtifactName flattens the item ID into a single file name. Flattening can
// merge distinct IDs (Props/Crate.prefab and Props_Crate.prefab), so a short
// keyed hash of the full ID keeps every item's artifact separate.
func ArtifactName(item catalog.Item) string {
	flat := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(item.ID)
	hasher, err := blake3.NewKeyed(artifactNameDomainKey[:])
	if err != nil {
		panic("process: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write([]byte(item.ID))
	sum := hasher.Sum(nil)
	return flat + "-" + hex.EncodeToString(sum[:artifactNameHashBytes]) + ".json"
}
