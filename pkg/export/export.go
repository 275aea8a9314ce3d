package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"spotifetch/pkg/spotify"
)

// Format names an output format
type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatSQLite Format = "sqlite"
)

// Stdout is the path meaning standard output
const Stdout = "-"

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatSQLite:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Batch is the result of one collection run
type Batch struct {
	Artist      string
	CollectedAt time.Time
	Tracks      []spotify.Track
}

// Writer persists batches
type Writer interface {
	Write(ctx context.Context, batch Batch) error
	Close() error
}

// New creates a writer for format at path
func New(format Format, path string) (Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("%s output requires a path", format)
	}

	switch format {
	case FormatJSON:
		return &fileWriter{path: path, encode: encodeJSON}, nil
	case FormatYAML:
		return &fileWriter{path: path, encode: encodeYAML}, nil
	case FormatSQLite:
		if path == Stdout {
			return nil, fmt.Errorf("sqlite output cannot go to stdout")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

type encodeFunc func(w io.Writer, batch Batch) error

// fileWriter writes a whole batch to one file per Write
type fileWriter struct {
	path   string
	encode encodeFunc
	stdout io.Writer
}

func (f *fileWriter) Write(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch.CollectedAt.IsZero() {
		batch.CollectedAt = nowUTC()
	}

	if f.path == Stdout {
		out := f.stdout
		if out == nil {
			out = os.Stdout
		}
		return f.encode(out, batch)
	}

	return writeFileAtomic(f.path, func(w io.Writer) error {
		return f.encode(w, batch)
	})
}

func (f *fileWriter) Close() error { return nil }

func nowUTC() time.Time {
	return time.Now().UTC()
}

// writeFileAtomic writes through a temporary file in the target directory
// and renames it into place
func writeFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempFile := tmp.Name()

	err = write(tmp)
	closeErr := tmp.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write export: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
