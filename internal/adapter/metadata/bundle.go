// Package metadata copies the dataset's descriptive YAML documents into the store.
//
// The documents (dataset, meter devices, one per building) are authored by
// hand and stored verbatim. They are only checked for YAML well-formedness.
package metadata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/gelap-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// StorePrefix is the key-space prefix metadata documents are stored under.
const StorePrefix = "/metadata/"

// Document is one metadata file.
type Document struct {
	Name    string
	Content []byte
}

// StorePath returns the store key for the document.
func (d Document) StorePath() string {
	return StorePrefix + d.Name
}

// LoadBundle reads every .yaml/.yml file in dir, sorted by name.
func LoadBundle(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read metadata dir: %w", err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read metadata %s: %w", path, err)
		}
		if err := checkWellFormed(content); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", path, err)
		}
		docs = append(docs, Document{Name: e.Name(), Content: content})
	}
	slices.SortFunc(docs, func(a, b Document) int { return strings.Compare(a.Name, b.Name) })
	return docs, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// checkWellFormed decodes every YAML document in content without interpreting it.
func checkWellFormed(content []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid yaml: %w", err)
		}
	}
}

// Attacher loads the bundle from a directory and writes it to a store.
// It implements pipeline.MetadataAttacher.
type Attacher struct {
	dir    string
	logger *slog.Logger
}

// NewAttacher creates an Attacher for the bundle in dir.
func NewAttacher(dir string, logger *slog.Logger) *Attacher {
	return &Attacher{dir: dir, logger: logger}
}

// Attach copies every document of the bundle into w and returns how many were written.
func (a *Attacher) Attach(ctx context.Context, w domain.MetadataWriter) (int, error) {
	docs, err := LoadBundle(a.dir)
	if err != nil {
		return 0, err
	}
	for _, d := range docs {
		if err := w.PutMetadata(ctx, d.StorePath(), d.Content); err != nil {
			return 0, err
		}
		a.logger.Debug("metadata document attached", "path", d.StorePath(), "bytes", len(d.Content))
	}
	return len(docs), nil
}
