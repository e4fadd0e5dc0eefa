package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps nodes and variable documents in memory.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	envs    map[string]*Environment
	globals Values
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		envs:  make(map[string]*Environment),
	}
}

// SaveNode stores a copy of node.
func (s *MemoryStore) SaveNode(ctx context.Context, node *Node) error {
	if err := validID(node.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = *node
	return nil
}

// Node returns a copy of the node with the given id.
func (s *MemoryStore) Node(ctx context.Context, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	return &node, nil
}

// ListNodes returns every node ordered by parent then Order.
func (s *MemoryStore) ListNodes(ctx context.Context) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sortNodes(nodes)
	return nodes, nil
}

// Children returns the direct children of parentID in sibling order.
func (s *MemoryStore) Children(ctx context.Context, parentID string) ([]Node, error) {
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	return childrenOf(nodes, parentID), nil
}

// Ancestry returns the parent id and kind of a node.
func (s *MemoryStore) Ancestry(ctx context.Context, id string) (string, Kind, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return "", "", err
	}
	return node.ParentID, node.Kind, nil
}

// Scripts returns the script pair of a node.
func (s *MemoryStore) Scripts(ctx context.Context, id string) (Scripts, error) {
	node, err := s.Node(ctx, id)
	if err != nil {
		return Scripts{}, err
	}
	return node.Scripts(), nil
}

// SaveEnvironment stores a copy of env.
func (s *MemoryStore) SaveEnvironment(ctx context.Context, env *Environment) error {
	if err := validID(env.ID); err != nil {
		return err
	}
	cp := *env
	cp.Values = env.Values.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs[env.ID] = &cp
	return nil
}

// Environment returns a copy of the environment with the given id.
func (s *MemoryStore) Environment(ctx context.Context, id string) (*Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.envs[id]
	if !ok {
		return nil, fmt.Errorf("environment %s: %w", id, ErrNotFound)
	}
	cp := *env
	cp.Values = env.Values.Clone()
	return &cp, nil
}

// EnvironmentValues returns a snapshot of an environment's values.
func (s *MemoryStore) EnvironmentValues(ctx context.Context, id string) (Values, error) {
	if id == "" {
		return Values{}, nil
	}
	env, err := s.Environment(ctx, id)
	if err != nil {
		return nil, err
	}
	return env.Values, nil
}

// PersistEnvironmentUpdates merges updates into the environment per key.
func (s *MemoryStore) PersistEnvironmentUpdates(ctx context.Context, id string, updates map[string]string) error {
	if id == "" || len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envs[id]
	if !ok {
		return fmt.Errorf("environment %s: %w", id, ErrNotFound)
	}
	for k, v := range updates {
		env.Values[k] = Variable{Value: v, Enabled: true}
	}
	env.UpdatedAt = time.Now().UTC()
	return nil
}

// GlobalValues returns a snapshot of the global set.
func (s *MemoryStore) GlobalValues(ctx context.Context) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.globals == nil {
		s.globals = Values{}
	}
	return s.globals.Clone(), nil
}

// SetGlobal writes one global variable.
func (s *MemoryStore) SetGlobal(ctx context.Context, key string, v Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.globals == nil {
		s.globals = Values{}
	}
	s.globals[key] = v
	return nil
}
