// Package local provides snapshot-backed in-process implementations of
// the backend interfaces: a bleve inverted index for keyword search and
// an HNSW graph for vector search. They serve development and offline
// use where the remote services are unavailable; both are loaded from
// the same snapshot files the indexing pipeline writes.
package local

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Document is one snapshot line: the opaque payload the engine decodes,
// the text to index for keyword search, and an optional precomputed
// embedding for vector search.
type Document struct {
	Key       string          `json:"key"`
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload"`
	Embedding []float32       `json:"embedding,omitempty"`
}

// Snapshot is a set of named collections loaded from disk. Collection
// names double as lexical index names.
type Snapshot struct {
	Collections map[string][]Document
}

// LoadSnapshot reads every *.jsonl file in dir as one collection named
// after the file. Malformed lines fail the load; a snapshot is written
// atomically by the pipeline and partial content means corruption.
func LoadSnapshot(dir string) (*Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	snap := &Snapshot{Collections: make(map[string][]Document)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".jsonl")
		docs, err := loadCollection(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("collection %s: %w", name, err)
		}
		snap.Collections[name] = docs
	}

	if len(snap.Collections) == 0 {
		return nil, fmt.Errorf("no collections in %s: %w", dir, fs.ErrNotExist)
	}
	return snap, nil
}

func loadCollection(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.Key == "" {
			return nil, fmt.Errorf("line %d: missing key", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Build indexes a snapshot into ready-to-query local backends.
func Build(snap *Snapshot) (*Vector, *Lexical, error) {
	vector := NewVector()
	lexical, err := NewLexical()
	if err != nil {
		return nil, nil, err
	}

	for name, docs := range snap.Collections {
		if err := lexical.IndexCollection(name, docs); err != nil {
			return nil, nil, fmt.Errorf("index %s: %w", name, err)
		}
		if err := vector.IndexCollection(name, docs); err != nil {
			return nil, nil, fmt.Errorf("vectors %s: %w", name, err)
		}
	}
	return vector, lexical, nil
}
