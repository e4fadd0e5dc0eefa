package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a node or environment does not exist.
var ErrNotFound = errors.New("not found")

// Kind identifies what a node is in the workspace tree.
type Kind string

const (
	KindCollection Kind = "collection"
	KindFolder     Kind = "folder"
	KindRequest    Kind = "request"
)

// Body modes.
const (
	BodyNone       = "none"
	BodyRaw        = "raw"
	BodyURLEncoded = "urlencoded"
)

// KeyValue is one param, header or form field.
type KeyValue struct {
	Key     string `yaml:"key" json:"key"`
	Value   string `yaml:"value" json:"value"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// Body describes a request payload.
type Body struct {
	Mode       string     `yaml:"mode" json:"mode"`                                 // none, raw or urlencoded
	Raw        string     `yaml:"raw,omitempty" json:"raw,omitempty"`               // payload for raw mode
	URLEncoded []KeyValue `yaml:"urlencoded,omitempty" json:"urlencoded,omitempty"` // fields for urlencoded mode
}

// Scripts holds the pre/post-request script pair of a node.
type Scripts struct {
	Pre  string
	Post string
}

// Node is a collection, folder or request in the workspace tree.
type Node struct {
	ID         string `yaml:"id" json:"id"`
	ParentID   string `yaml:"parent_id,omitempty" json:"parent_id,omitempty"` // empty at the root
	Kind       Kind   `yaml:"kind" json:"kind"`
	Name       string `yaml:"name" json:"name"`
	Order      int    `yaml:"order" json:"order"` // position among siblings
	PreScript  string `yaml:"pre_request_script,omitempty" json:"pre_request_script,omitempty"`
	PostScript string `yaml:"post_request_script,omitempty" json:"post_request_script,omitempty"`

	// Request-only fields
	Method  string     `yaml:"method,omitempty" json:"method,omitempty"`
	URL     string     `yaml:"url,omitempty" json:"url,omitempty"` // may contain {{placeholders}}
	Params  []KeyValue `yaml:"params,omitempty" json:"params,omitempty"`
	Headers []KeyValue `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    Body       `yaml:"body,omitempty" json:"body,omitempty"`
}

// Scripts returns the node's script pair.
func (n *Node) Scripts() Scripts {
	return Scripts{Pre: n.PreScript, Post: n.PostScript}
}

// Variable is a single environment or global entry.
type Variable struct {
	Value   string `yaml:"value" json:"value"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// Values maps a variable key to its entry.
type Values map[string]Variable

// Clone returns a copy of v that is safe to mutate.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Environment is a named set of variables.
type Environment struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Values    Values    `yaml:"values" json:"values"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// GlobalSet is the singleton set of variables shared by every environment.
type GlobalSet struct {
	Values Values `yaml:"values" json:"values"`
}
