package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the workspace tree and variable documents as YAML files:
//
//	<base>/nodes/<id>.yaml
//	<base>/environments/<id>.yaml
//	<base>/globals.yaml
//
// Documents are replaced atomically through a temp file and rename, so a
// reader sees either the old or the new content. Writes to variable documents
// are read-modify-write under a process-local lock; separate processes writing
// the same document race with last write wins.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// NodesDir returns the nodes directory path
func (s *FileStore) NodesDir() string {
	return filepath.Join(s.baseDir, "nodes")
}

// EnvironmentsDir returns the environments directory path
func (s *FileStore) EnvironmentsDir() string {
	return filepath.Join(s.baseDir, "environments")
}

func (s *FileStore) docPath(dir, id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	return ValidatePathWithinDir(id+".yaml", dir)
}

// SaveNode writes a node to its YAML file
func (s *FileStore) SaveNode(ctx context.Context, node *Node) error {
	path, err := s.docPath(s.NodesDir(), node.ID)
	if err != nil {
		return err
	}
	return writeYAML(path, node)
}

// Node loads a node by id. An id that cannot name a document is reported as
// not found.
func (s *FileStore) Node(ctx context.Context, id string) (*Node, error) {
	path, err := s.docPath(s.NodesDir(), id)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w (%v)", id, ErrNotFound, err)
	}

	var node Node
	if err := readYAML(path, &node); err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	return &node, nil
}

// ListNodes returns every node in the workspace, ordered by parent then Order.
func (s *FileStore) ListNodes(ctx context.Context) ([]Node, error) {
	dir := s.NodesDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []Node{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes directory: %w", err)
	}

	var nodes []Node
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		var node Node
		if err := readYAML(filepath.Join(dir, entry.Name()), &node); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	sortNodes(nodes)
	return nodes, nil
}

// Children returns the direct children of parentID in sibling order.
func (s *FileStore) Children(ctx context.Context, parentID string) ([]Node, error) {
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return childrenOf(nodes, parentID), nil
}

// Ancestry returns the parent id and kind of a node.
func (s *FileStore) Ancestry(ctx context.Context, id string) (string, Kind, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return "", "", err
	}
	return node.ParentID, node.Kind, nil
}

// Scripts returns the script pair of a node.
func (s *FileStore) Scripts(ctx context.Context, id string) (Scripts, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return Scripts{}, err
	}
	return node.Scripts(), nil
}

func childrenOf(nodes []Node, parentID string) []Node {
	var out []Node
	for _, n := range nodes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	sortNodes(out)
	return out
}

func sortNodes(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].ParentID != nodes[j].ParentID {
			return nodes[i].ParentID < nodes[j].ParentID
		}
		return nodes[i].Order < nodes[j].Order
	})
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func writeYAML(path string, in any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}
