package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Chunk is a labeled unit of reference text with trigger keywords.
type Chunk struct {
	ID       string   `json:"id" yaml:"id"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Content  string   `json:"content" yaml:"content"`
}

// Source provides chunk records at load time.
type Source interface {
	Load() ([]Chunk, error)
}

// document is the on-disk layout: {"chunks": [...]}
type document struct {
	Chunks []Chunk `json:"chunks" yaml:"chunks"`
}

// FileSource reads a knowledge base from a JSON or YAML file, picked by extension.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load() ([]Chunk, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", s.Path, err)
	}

	var doc document
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", s.Path, err)
	}
	return doc.Chunks, nil
}

// StaticSource serves an in-memory chunk list.
type StaticSource []Chunk

func (s StaticSource) Load() ([]Chunk, error) {
	return append([]Chunk(nil), s...), nil
}

// Index holds the loaded chunks in source order. It is immutable after Load.
type Index struct {
	chunks  []Chunk
	loaded  bool
	loadErr error
	skipped []string
}

// Load builds an index from source. A failing source never panics or errors:
// the returned index is simply marked unloaded and serves no chunks.
func Load(source Source) *Index {
	if source == nil {
		return &Index{loadErr: fmt.Errorf("no knowledge source configured")}
	}

	records, err := source.Load()
	if err != nil {
		return &Index{loadErr: err}
	}

	idx := &Index{loaded: true, chunks: make([]Chunk, 0, len(records))}
	seen := make(map[string]struct{}, len(records))
	for _, c := range records {
		if _, dup := seen[c.ID]; dup {
			idx.skipped = append(idx.skipped, c.ID)
			continue
		}
		seen[c.ID] = struct{}{}
		idx.chunks = append(idx.chunks, Chunk{
			ID:       c.ID,
			Keywords: append([]string(nil), c.Keywords...),
			Content:  c.Content,
		})
	}
	return idx
}

// Chunks returns the chunks in load order. Callers must not mutate the result.
func (i *Index) Chunks() []Chunk {
	if i == nil || !i.loaded {
		return nil
	}
	return i.chunks
}

func (i *Index) Loaded() bool { return i != nil && i.loaded }

func (i *Index) Err() error {
	if i == nil {
		return fmt.Errorf("nil knowledge index")
	}
	return i.loadErr
}

func (i *Index) Len() int { return len(i.Chunks()) }

// SkippedDuplicates lists ids dropped because an earlier chunk used the same id.
func (i *Index) SkippedDuplicates() []string {
	if i == nil {
		return nil
	}
	return i.skipped
}
