package sink

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the optional compressed copy JSONFile writes next to
// its plain output.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression validates a configured compression name. Empty means none.
func ParseCompression(value string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(value))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("sink: unknown compression %q", value)
	}
}

// Extension is the file suffix for the compressed copy.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

func (c Compression) compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("sink: zstd encoder: %w", err)
		}
		defer encoder.Close()
		return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		writer := lz4.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("sink: lz4 write: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("sink: lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("sink: compression %q has no encoder", c)
	}
}
