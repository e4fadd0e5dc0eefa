// Package redis stores environments and globals in Redis so a whole team
// shares the same variable documents.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/blackcoderx/hive/pkg/storage"
	backend "github.com/redis/go-redis/v9"
)

// Store keeps each environment as a hash of JSON-encoded variables.
//
//	<prefix>env:<id>      hash  key -> {"value":..,"enabled":..}
//	<prefix>envmeta:<id>  hash  name, updated_at
//	<prefix>envs          set   environment ids
//	<prefix>globals       hash  key -> {"value":..,"enabled":..}
//
// Updates are written field by field, so concurrent senders only clobber each
// other on the same key.
type Store struct {
	client *backend.Client
	prefix string
}

type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "hive:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) envKey(id string) string  { return s.prefix + "env:" + id }
func (s *Store) metaKey(id string) string { return s.prefix + "envmeta:" + id }
func (s *Store) indexKey() string         { return s.prefix + "envs" }
func (s *Store) globalsKey() string       { return s.prefix + "globals" }

// SaveEnvironment replaces an environment document.
func (s *Store) SaveEnvironment(ctx context.Context, env *storage.Environment) error {
	if env.ID == "" {
		return fmt.Errorf("environment id is required")
	}

	fields, err := encodeValues(env.Values)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.envKey(env.ID))
	if len(fields) > 0 {
		pipe.HSet(ctx, s.envKey(env.ID), fields)
	}
	pipe.HSet(ctx, s.metaKey(env.ID), map[string]interface{}{
		"name":       env.Name,
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, s.indexKey(), env.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save environment to redis: %w", err)
	}
	return nil
}

// Environment loads one environment.
func (s *Store) Environment(ctx context.Context, id string) (*storage.Environment, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get environment from redis: %w", err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("environment %s: %w", id, storage.ErrNotFound)
	}

	values, err := s.hashValues(ctx, s.envKey(id))
	if err != nil {
		return nil, err
	}

	env := &storage.Environment{ID: id, Name: meta["name"], Values: values}
	if ts, err := time.Parse(time.RFC3339Nano, meta["updated_at"]); err == nil {
		env.UpdatedAt = ts
	}
	return env, nil
}

// ListEnvironments returns every environment sorted by id.
func (s *Store) ListEnvironments(ctx context.Context) ([]storage.Environment, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	sort.Strings(ids)

	envs := make([]storage.Environment, 0, len(ids))
	for _, id := range ids {
		env, err := s.Environment(ctx, id)
		if err != nil {
			return nil, err
		}
		envs = append(envs, *env)
	}
	return envs, nil
}

// EnvironmentValues returns a snapshot of an environment's values.
func (s *Store) EnvironmentValues(ctx context.Context, id string) (storage.Values, error) {
	if id == "" {
		return storage.Values{}, nil
	}
	env, err := s.Environment(ctx, id)
	if err != nil {
		return nil, err
	}
	return env.Values, nil
}

// PersistEnvironmentUpdates writes each update as its own hash field.
// There is no version check: the last writer of a key wins.
func (s *Store) PersistEnvironmentUpdates(ctx context.Context, id string, updates map[string]string) error {
	if id == "" || len(updates) == 0 {
		return nil
	}

	n, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check environment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("environment %s: %w", id, storage.ErrNotFound)
	}

	values := make(storage.Values, len(updates))
	for k, v := range updates {
		values[k] = storage.Variable{Value: v, Enabled: true}
	}
	fields, err := encodeValues(values)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.envKey(id), fields)
	pipe.HSet(ctx, s.metaKey(id), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist environment updates: %w", err)
	}
	return nil
}

// GlobalValues returns the global set. An absent hash is an empty set.
func (s *Store) GlobalValues(ctx context.Context) (storage.Values, error) {
	return s.hashValues(ctx, s.globalsKey())
}

// SetGlobal writes one global variable.
func (s *Store) SetGlobal(ctx context.Context, key string, v storage.Variable) error {
	fields, err := encodeValues(storage.Values{key: v})
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.globalsKey(), fields).Err()
}

func (s *Store) hashValues(ctx context.Context, key string) (storage.Values, error) {
	raw, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	values := make(storage.Values, len(raw))
	for k, encoded := range raw {
		var v storage.Variable
		if err := json.Unmarshal([]byte(encoded), &v); err != nil {
			return nil, fmt.Errorf("failed to decode variable %s: %w", k, err)
		}
		values[k] = v
	}
	return values, nil
}

func encodeValues(values storage.Values) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode variable %s: %w", k, err)
		}
		fields[k] = string(data)
	}
	return fields, nil
}
