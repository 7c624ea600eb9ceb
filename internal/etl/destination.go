package etl

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ── Destination ────────────────────────────────────────────
// FileSink writes the artifacts of one export under a path prefix:
//
//	<prefix>schema                  column → declared type JSON
//	<prefix>00000-of-00004.csv ...  one CSV shard per worker
//
// Records are joined with "\n"; the encoder itself never emits separators.

// SchemaSuffix is appended to the output prefix for the schema artifact.
const SchemaSuffix = "schema"

// FileSink writes export output to a filesystem.
type FileSink struct {
	Fs     afero.Fs
	Prefix string
}

// NewFileSink returns a sink on the OS filesystem.
func NewFileSink(prefix string) *FileSink {
	return &FileSink{Fs: afero.NewOsFs(), Prefix: prefix}
}

// SchemaPath returns where the schema artifact is written.
func (s *FileSink) SchemaPath() string { return s.Prefix + SchemaSuffix }

// ShardPath returns the path of shard i out of n.
func (s *FileSink) ShardPath(i, n int) string {
	return fmt.Sprintf("%s%05d-of-%05d.csv", s.Prefix, i, n)
}

func (s *FileSink) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return s.Fs.MkdirAll(dir, 0o755)
}

// WriteSchema writes the schema artifact. Any failure is an *IOError.
func (s *FileSink) WriteSchema(schema *Schema) (string, error) {
	path := s.SchemaPath()
	data, err := SchemaArtifact(schema)
	if err != nil {
		return "", &IOError{Path: path, Op: "encode", Cause: err}
	}
	if err := s.ensureDir(path); err != nil {
		return "", &IOError{Path: path, Op: "mkdir", Cause: err}
	}
	if err := afero.WriteFile(s.Fs, path, data, 0o644); err != nil {
		return "", &IOError{Path: path, Op: "write", Cause: err}
	}
	return path, nil
}

// ReadSchema reads back the schema artifact of a finished export.
func (s *FileSink) ReadSchema(table string) (*Schema, error) {
	path := s.SchemaPath()
	data, err := afero.ReadFile(s.Fs, path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "read", Cause: err}
	}
	return ParseSchemaArtifact(table, data)
}

// Shards lists the CSV shards present under the prefix, sorted by name.
func (s *FileSink) Shards() ([]string, error) {
	paths, err := afero.Glob(s.Fs, s.Prefix+"[0-9]*-of-[0-9]*.csv")
	if err != nil {
		return nil, &IOError{Path: s.Prefix, Op: "glob", Cause: err}
	}
	sort.Strings(paths)
	return paths, nil
}

// RemoveStaleShards deletes shards a previous run left under the prefix
// with a shard count other than n. Shards of the same layout are
// truncated by CreateShard.
func (s *FileSink) RemoveStaleShards(n int) error {
	paths, err := s.Shards()
	if err != nil {
		return err
	}
	keep := fmt.Sprintf("-of-%05d.csv", n)
	for _, p := range paths {
		if strings.HasSuffix(p, keep) {
			continue
		}
		if err := s.Fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return &IOError{Path: p, Op: "remove", Cause: err}
		}
	}
	return nil
}

// CreateShard opens shard i of n for writing, truncating any previous file.
func (s *FileSink) CreateShard(i, n int) (*ShardWriter, error) {
	path := s.ShardPath(i, n)
	if err := s.ensureDir(path); err != nil {
		return nil, &IOError{Path: path, Op: "mkdir", Cause: err}
	}
	f, err := s.Fs.Create(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "create", Cause: err}
	}
	return &ShardWriter{path: path, f: f, w: bufio.NewWriter(f)}, nil
}

// ShardWriter appends CSV lines to one shard. Not safe for concurrent use;
// each worker owns its shard.
type ShardWriter struct {
	path    string
	f       afero.File
	w       *bufio.Writer
	records int64
}

// Path returns the shard's file path.
func (w *ShardWriter) Path() string { return w.path }

// Records returns the number of records written so far.
func (w *ShardWriter) Records() int64 { return w.records }

// WriteLine writes one rendered record followed by a newline.
func (w *ShardWriter) WriteLine(line string) error {
	if _, err := w.w.WriteString(line); err != nil {
		return &IOError{Path: w.path, Op: "write", Cause: err}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return &IOError{Path: w.path, Op: "write", Cause: err}
	}
	w.records++
	return nil
}

// Close flushes buffered lines and closes the file.
func (w *ShardWriter) Close() error {
	flushErr := w.w.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return &IOError{Path: w.path, Op: "flush", Cause: flushErr}
	}
	if closeErr != nil {
		return &IOError{Path: w.path, Op: "close", Cause: closeErr}
	}
	return nil
}
