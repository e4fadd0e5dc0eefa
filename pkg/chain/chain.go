// Package chain computes the ordered pre/post script pairs that wrap a send:
// collection first, then each folder from the root down, then the node itself.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackcoderx/hive/pkg/storage"
)

// MaxDepth bounds the ancestry walk.
const MaxDepth = 64

// NodeSource is the read surface the resolver needs from the document store.
type NodeSource interface {
	// Ancestry returns the parent id (empty at the root) and the kind of a node.
	// A missing node yields an error wrapping storage.ErrNotFound.
	Ancestry(ctx context.Context, id string) (parentID string, kind storage.Kind, err error)
	// Scripts returns the script pair of a node.
	Scripts(ctx context.Context, id string) (storage.Scripts, error)
}

// Entry is one level of the chain.
type Entry struct {
	Pre   string
	Post  string
	Level storage.Kind
}

// Chain is the resolved list plus any fault that cut the walk short.
type Chain struct {
	Entries []Entry
	Fault   error
}

// Reason describes why an ancestry walk stopped early.
type Reason string

const (
	ReasonDangling Reason = "dangling parent reference"
	ReasonCycle    Reason = "cycle in parent chain"
	ReasonTooDeep  Reason = "parent chain too deep"
)

// AncestryError reports a malformed parent chain.
type AncestryError struct {
	NodeID   string // node whose parent could not be followed
	ParentID string
	Reason   Reason
}

func (e *AncestryError) Error() string {
	return fmt.Sprintf("ancestry of %s stopped at parent %q: %s", e.NodeID, e.ParentID, e.Reason)
}

// Resolver walks node ancestry through a NodeSource.
type Resolver struct {
	source   NodeSource
	maxDepth int
}

// NewResolver creates a resolver bounded by MaxDepth.
func NewResolver(source NodeSource) *Resolver {
	return &Resolver{source: source, maxDepth: MaxDepth}
}

// level is one arena slot.
type level struct {
	id     string
	parent string
	kind   storage.Kind
}

// Resolve returns the chain for nodeID, outermost first. Only a missing
// origin node is an error; a broken ancestry stops the walk and is reported
// in Chain.Fault with the levels collected so far.
func (r *Resolver) Resolve(ctx context.Context, nodeID string) (*Chain, error) {
	parent, kind, err := r.source.Ancestry(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve chain: %w", err)
	}

	// The walk is recorded innermost-first in an arena; index answers
	// "seen before?" in constant time.
	arena := []level{{id: nodeID, parent: parent, kind: kind}}
	index := map[string]int{nodeID: 0}
	var fault error

	for cur := arena[0]; cur.parent != ""; cur = arena[len(arena)-1] {
		if _, seen := index[cur.parent]; seen {
			fault = &AncestryError{NodeID: cur.id, ParentID: cur.parent, Reason: ReasonCycle}
			break
		}
		if len(arena) >= r.maxDepth {
			fault = &AncestryError{NodeID: cur.id, ParentID: cur.parent, Reason: ReasonTooDeep}
			break
		}

		pp, pk, err := r.source.Ancestry(ctx, cur.parent)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fault = &AncestryError{NodeID: cur.id, ParentID: cur.parent, Reason: ReasonDangling}
				break
			}
			return nil, fmt.Errorf("resolve chain: %w", err)
		}

		index[cur.parent] = len(arena)
		arena = append(arena, level{id: cur.parent, parent: pp, kind: pk})
	}

	entries := make([]Entry, 0, len(arena))
	for i := len(arena) - 1; i >= 0; i-- {
		scripts, err := r.source.Scripts(ctx, arena[i].id)
		if err != nil {
			return nil, fmt.Errorf("scripts of %s: %w", arena[i].id, err)
		}
		entries = append(entries, Entry{Pre: scripts.Pre, Post: scripts.Post, Level: arena[i].kind})
	}

	return &Chain{Entries: entries, Fault: fault}, nil
}
