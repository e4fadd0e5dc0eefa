// Package importer converts Postman v2.1 collection exports into workspace
// nodes.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/blackcoderx/hive/pkg/storage"
)

// Store receives the imported nodes.
type Store interface {
	SaveNode(ctx context.Context, node *storage.Node) error
}

// Result summarises an import.
type Result struct {
	CollectionID string         `json:"collection_id"`
	Name         string         `json:"name"`
	Imported     int            `json:"imported"` // folders and requests, not the collection itself
	Errors       []string       `json:"errors,omitempty"`
	Variables    storage.Values `json:"variables,omitempty"` // collection-level variables
}

// ErrInvalidCollection is returned when the document is not a Postman
// collection.
var ErrInvalidCollection = errors.New("invalid Postman collection")

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(collectionSchema))
})

type collection struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Item     []json.RawMessage `json:"item"`
	Event    []event           `json:"event"`
	Variable []variable        `json:"variable"`
}

type item struct {
	Name    string            `json:"name"`
	Item    []json.RawMessage `json:"item"`
	Request *request          `json:"request"`
	Event   []event           `json:"event"`
}

type request struct {
	Method string          `json:"method"`
	URL    json.RawMessage `json:"url"`
	Header []pair          `json:"header"`
	Body   *body           `json:"body"`
}

type body struct {
	Mode       string `json:"mode"`
	Raw        string `json:"raw"`
	URLEncoded []pair `json:"urlencoded"`
}

type pair struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled"`
}

type event struct {
	Listen string `json:"listen"`
	Script struct {
		Exec json.RawMessage `json:"exec"`
	} `json:"script"`
}

type variable struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Disabled bool   `json:"disabled"`
}

type urlObject struct {
	Raw   string `json:"raw"`
	Query []pair `json:"query"`
}

// ImportFile imports the collection stored at path.
func ImportFile(ctx context.Context, path string, store Store) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Import(ctx, f, store)
}

// Import reads a Postman v2.1 collection from r and saves it to store under
// a new collection node. Failures of individual items are collected in
// Result.Errors; the error return covers unreadable or invalid documents.
func Import(ctx context.Context, r io.Reader, store Store) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load collection schema: %w", err)
	}
	validation, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}
	if !validation.Valid() {
		msgs := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidCollection, strings.Join(msgs, "; "))
	}

	var doc collection
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCollection, err)
	}

	name := doc.Info.Name
	if name == "" {
		name = "Imported Collection"
	}
	pre, post := parseEvents(doc.Event)
	root := &storage.Node{
		ID:         uuid.NewString(),
		Kind:       storage.KindCollection,
		Name:       name,
		PreScript:  pre,
		PostScript: post,
	}
	if err := store.SaveNode(ctx, root); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}

	res := &Result{CollectionID: root.ID, Name: name, Variables: parseVariables(doc.Variable)}
	imp := &importer{store: store, result: res}
	imp.items(ctx, doc.Item, root.ID)
	return res, nil
}

type importer struct {
	store  Store
	result *Result
}

func (imp *importer) items(ctx context.Context, raws []json.RawMessage, parentID string) {
	for order, raw := range raws {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			imp.fail(itemName(raw), err)
			continue
		}
		if it.Name == "" {
			it.Name = "Untitled"
		}

		node, err := buildNode(it, parentID, order)
		if err != nil {
			imp.fail(it.Name, err)
			continue
		}
		if node == nil {
			continue
		}
		if err := imp.store.SaveNode(ctx, node); err != nil {
			imp.fail(it.Name, err)
			continue
		}
		imp.result.Imported++

		if node.Kind == storage.KindFolder {
			imp.items(ctx, it.Item, node.ID)
		}
	}
}

func (imp *importer) fail(name string, err error) {
	imp.result.Errors = append(imp.result.Errors, fmt.Sprintf("item %q: %v", name, err))
}

// buildNode maps one item. Items that are neither folder nor request are
// skipped with a nil node.
func buildNode(it item, parentID string, order int) (*storage.Node, error) {
	pre, post := parseEvents(it.Event)
	node := &storage.Node{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		Name:       it.Name,
		Order:      order,
		PreScript:  pre,
		PostScript: post,
	}

	switch {
	case it.Item != nil:
		node.Kind = storage.KindFolder
	case it.Request != nil:
		node.Kind = storage.KindRequest
		node.Method = strings.ToUpper(it.Request.Method)
		if node.Method == "" {
			node.Method = "GET"
		}
		rawURL, params, err := parseURL(it.Request.URL)
		if err != nil {
			return nil, err
		}
		node.URL = rawURL
		node.Params = params
		node.Headers = keyValues(it.Request.Header)
		node.Body = parseBody(it.Request.Body)
	default:
		return nil, nil
	}
	return node, nil
}

// parseEvents maps prerequest to the pre-script and test to the post-script.
func parseEvents(events []event) (pre, post string) {
	for _, ev := range events {
		code := execCode(ev.Script.Exec)
		switch ev.Listen {
		case "prerequest":
			pre = code
		case "test":
			post = code
		}
	}
	return pre, post
}

// execCode accepts exec as a list of lines or a single string.
func execCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "\n")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}

func parseURL(raw json.RawMessage) (string, []storage.KeyValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil, nil
	}
	var obj urlObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", nil, fmt.Errorf("url: %w", err)
	}
	return obj.Raw, keyValues(obj.Query), nil
}

func parseBody(b *body) storage.Body {
	if b == nil {
		return storage.Body{Mode: storage.BodyNone}
	}
	switch b.Mode {
	case storage.BodyRaw:
		return storage.Body{Mode: storage.BodyRaw, Raw: b.Raw}
	case storage.BodyURLEncoded:
		return storage.Body{Mode: storage.BodyURLEncoded, URLEncoded: keyValues(b.URLEncoded)}
	}
	// formdata, file and graphql bodies are not supported
	return storage.Body{Mode: storage.BodyNone}
}

func keyValues(pairs []pair) []storage.KeyValue {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]storage.KeyValue, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, storage.KeyValue{Key: p.Key, Value: p.Value, Enabled: !p.Disabled})
	}
	return out
}

func parseVariables(vars []variable) storage.Values {
	values := storage.Values{}
	for _, v := range vars {
		if v.Key == "" {
			continue
		}
		value := ""
		if v.Value != nil {
			value = fmt.Sprint(v.Value)
		}
		values[v.Key] = storage.Variable{Value: value, Enabled: !v.Disabled}
	}
	return values
}

func itemName(raw json.RawMessage) string {
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err != nil || named.Name == "" {
		return "?"
	}
	return named.Name
}
