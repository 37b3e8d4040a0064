package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/events"
	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
)

// Format is a document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Compression is an optional stream compression
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseFormat accepts json, yaml and yml
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", ipc.ErrInvalidArgument, s)
}

// ParseCompression accepts none, gzip and zstd
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none", "false":
		return CompressionNone, nil
	case "gzip", "gz", "true":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("%w: unknown compression %q", ipc.ErrInvalidArgument, s)
}

// ContentType returns the MIME type of an encoded document
func ContentType(f Format, c Compression) string {
	switch c {
	case CompressionGzip:
		return "application/gzip"
	case CompressionZstd:
		return "application/zstd"
	}
	if f == FormatYAML {
		return "application/yaml"
	}
	return "application/json"
}

// Extension returns a file extension such as ".json.gz"
func Extension(f Format, c Compression) string {
	ext := "." + string(f)
	switch c {
	case CompressionGzip:
		ext += ".gz"
	case CompressionZstd:
		ext += ".zst"
	}
	return ext
}

// EventDocument is the exported form of a slice of the event log
type EventDocument struct {
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	First      uint64         `json:"first" yaml:"first"`
	Last       uint64         `json:"last" yaml:"last"`
	Count      int            `json:"count" yaml:"count"`
	Entries    []events.Entry `json:"entries" yaml:"entries"`
}

// Events wraps entries in a document
func Events(entries []events.Entry) EventDocument {
	doc := EventDocument{ExportedAt: time.Now().UTC(), Count: len(entries), Entries: entries}
	if len(entries) > 0 {
		doc.First = entries[0].Seq
		doc.Last = entries[len(entries)-1].Seq
	}
	return doc
}

// SnapshotDocument is the exported form of a snapshot
type SnapshotDocument struct {
	ExportedAt time.Time    `json:"exported_at" yaml:"exported_at"`
	Snapshot   ipc.Snapshot `json:"snapshot" yaml:"snapshot"`
}

// Snapshot wraps a snapshot in a document
func Snapshot(snap ipc.Snapshot) SnapshotDocument {
	return SnapshotDocument{ExportedAt: time.Now().UTC(), Snapshot: snap}
}

// Marshal encodes v in the given format
func Marshal(v any, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return sonic.MarshalIndent(v, "", "  ")
	case FormatYAML:
		return yaml.Marshal(v)
	}
	return nil, fmt.Errorf("%w: unknown export format %q", ipc.ErrInvalidArgument, f)
}

// Unmarshal decodes data in the given format into v
func Unmarshal(data []byte, f Format, v any) error {
	switch f {
	case FormatJSON:
		return sonic.Unmarshal(data, v)
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	}
	return fmt.Errorf("%w: unknown export format %q", ipc.ErrInvalidArgument, f)
}

// Write encodes v and writes it to w, compressed if requested
func Write(w io.Writer, v any, f Format, c Compression) error {
	data, err := Marshal(v, f)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}

	var zw io.WriteCloser
	switch c {
	case CompressionNone:
		_, err = w.Write(data)
		return err
	case CompressionGzip:
		zw = gzip.NewWriter(w)
	case CompressionZstd:
		if zw, err = zstd.NewWriter(w); err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown compression %q", ipc.ErrInvalidArgument, c)
	}

	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("compress %s: %w", c, err)
	}
	return zw.Close()
}

// Read reads a document written by Write into v
func Read(r io.Reader, v any, f Format, c Compression) error {
	switch c {
	case CompressionNone:
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return fmt.Errorf("%w: unknown compression %q", ipc.ErrInvalidArgument, c)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return fmt.Errorf("read export: %w", err)
	}
	return Unmarshal(buf.Bytes(), f, v)
}
