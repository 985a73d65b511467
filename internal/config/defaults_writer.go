package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/syntrixbase/msgstore/internal/core/priority"
)

// DefaultsWriter rewrites the store section of a config file when budgets
// change at runtime. Other keys, comments and ordering in the file are kept.
type DefaultsWriter struct {
	path string
	mu   sync.Mutex
}

// NewDefaultsWriter writes to <configDir>/config.yml.
func NewDefaultsWriter(configDir string) *DefaultsWriter {
	return &DefaultsWriter{path: filepath.Join(configDir, ConfigFile)}
}

// Path returns the file being written.
func (w *DefaultsWriter) Path() string { return w.path }

// Write replaces store.max_byte_size and store.groups. A nil max or empty
// group list removes the key. The file is created if missing and replaced
// atomically.
func (w *DefaultsWriter) Write(maxByteSize *uint32, groups []priority.GroupDefault) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := w.read()
	if err != nil {
		return err
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", w.path)
	}
	store := lookup(root, "store")
	if store == nil || store.Kind != yaml.MappingNode {
		store = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		set(root, "store", store)
	}

	if maxByteSize == nil {
		remove(store, "max_byte_size")
	} else if err := setValue(store, "max_byte_size", *maxByteSize); err != nil {
		return err
	}
	if len(groups) == 0 {
		remove(store, "groups")
	} else if err := setValue(store, "groups", groups); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}
	return writeAtomic(w.path, buf.Bytes())
}

func (w *DefaultsWriter) read() (*yaml.Node, error) {
	var doc yaml.Node
	data, err := os.ReadFile(w.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", w.path, err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", w.path, err)
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	return &doc, nil
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func set(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func setValue(m *yaml.Node, key string, v any) error {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return fmt.Errorf("encode store.%s: %w", key, err)
	}
	set(m, key, &n)
	return nil
}

func remove(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
