package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const globalsFile = "globals.yaml"

// SaveEnvironment writes an environment document
func (s *FileStore) SaveEnvironment(ctx context.Context, env *Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.docPath(s.EnvironmentsDir(), env.ID)
	if err != nil {
		return err
	}
	if env.Values == nil {
		env.Values = Values{}
	}
	return writeYAML(path, env)
}

// Environment loads an environment by id
func (s *FileStore) Environment(ctx context.Context, id string) (*Environment, error) {
	path, err := s.docPath(s.EnvironmentsDir(), id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var env Environment
	if err := readYAML(path, &env); err != nil {
		return nil, fmt.Errorf("environment %s: %w", id, err)
	}
	if env.ID == "" {
		env.ID = id
	}
	if env.Values == nil {
		env.Values = Values{}
	}
	return &env, nil
}

// ListEnvironments lists all environment documents sorted by id
func (s *FileStore) ListEnvironments(ctx context.Context) ([]Environment, error) {
	dir := s.EnvironmentsDir()
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []Environment{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read environments directory: %w", err)
	}

	var envs []Environment
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(entry.Name(), ".yaml"), ".yml")
		env, err := s.Environment(ctx, id)
		if err != nil {
			return nil, err
		}
		envs = append(envs, *env)
	}

	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })
	return envs, nil
}

// EnvironmentValues returns a snapshot of an environment's values.
// An empty id means no active environment and yields an empty set.
func (s *FileStore) EnvironmentValues(ctx context.Context, id string) (Values, error) {
	if id == "" {
		return Values{}, nil
	}
	env, err := s.Environment(ctx, id)
	if err != nil {
		return nil, err
	}
	return env.Values.Clone(), nil
}

// PersistEnvironmentUpdates merges updates into the environment, one key at a
// time. Every written entry is enabled.
func (s *FileStore) PersistEnvironmentUpdates(ctx context.Context, id string, updates map[string]string) error {
	if id == "" || len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.docPath(s.EnvironmentsDir(), id)
	if err != nil {
		return err
	}

	var env Environment
	if err := readYAML(path, &env); err != nil {
		return fmt.Errorf("environment %s: %w", id, err)
	}
	if env.ID == "" {
		env.ID = id
	}
	if env.Values == nil {
		env.Values = Values{}
	}
	for k, v := range updates {
		env.Values[k] = Variable{Value: v, Enabled: true}
	}
	env.UpdatedAt = time.Now().UTC()

	return writeYAML(path, &env)
}

// GlobalValues returns a snapshot of the global set, creating the document
// on first access.
func (s *FileStore) GlobalValues(ctx context.Context) (Values, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	globals, err := s.loadGlobals()
	if err != nil {
		return nil, err
	}
	return globals.Values.Clone(), nil
}

// SetGlobal writes one global variable.
func (s *FileStore) SetGlobal(ctx context.Context, key string, v Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	globals, err := s.loadGlobals()
	if err != nil {
		return err
	}
	globals.Values[key] = v
	return writeYAML(filepath.Join(s.baseDir, globalsFile), globals)
}

// loadGlobals must be called with s.mu held.
func (s *FileStore) loadGlobals() (*GlobalSet, error) {
	path := filepath.Join(s.baseDir, globalsFile)

	var globals GlobalSet
	err := readYAML(path, &globals)
	if errors.Is(err, ErrNotFound) {
		globals.Values = Values{}
		if err := writeYAML(path, &globals); err != nil {
			return nil, err
		}
		return &globals, nil
	}
	if err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}
	if globals.Values == nil {
		globals.Values = Values{}
	}
	return &globals, nil
}
