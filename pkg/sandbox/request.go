package sandbox

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/transport"
)

var errNoURL = errors.New("sendRequest: url is required")

// parseCall reads the exported first argument of pm.sendRequest: a URL
// string or {method, url, header, body}.
func parseCall(v any) (call, error) {
	switch opts := v.(type) {
	case string:
		if opts == "" {
			return call{}, errNoURL
		}
		return call{Method: http.MethodGet, URL: opts}, nil

	case map[string]any:
		c := call{Method: http.MethodGet, URL: urlOf(opts["url"])}
		if m := stringOf(opts["method"]); m != "" {
			c.Method = strings.ToUpper(m)
		}
		if c.URL == "" {
			return call{}, errNoURL
		}
		c.Headers = parsePairs(opts["header"])

		body, contentType := parseBody(opts["body"])
		c.Body = body
		if contentType != "" && !hasHeader(c.Headers, "Content-Type") {
			c.Headers = append(c.Headers, transport.Pair{Key: "Content-Type", Value: contentType})
		}
		return c, nil
	}
	return call{}, fmt.Errorf("sendRequest: expected a URL or an options object, got %T", v)
}

// urlOf accepts a plain string or a Postman url object with a raw field.
func urlOf(v any) string {
	if m, ok := v.(map[string]any); ok {
		return stringOf(m["raw"])
	}
	return stringOf(v)
}

// parsePairs accepts [{key, value, disabled}] or a plain {key: value} object.
func parsePairs(v any) []transport.Pair {
	var out []transport.Pair
	switch h := v.(type) {
	case []any:
		for _, item := range h {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if disabled, _ := m["disabled"].(bool); disabled {
				continue
			}
			out = append(out, transport.Pair{Key: stringOf(m["key"]), Value: stringOf(m["value"])})
		}
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(h)) {
			out = append(out, transport.Pair{Key: k, Value: stringOf(h[k])})
		}
	}
	return out
}

func parseBody(v any) ([]byte, string) {
	switch b := v.(type) {
	case string:
		return []byte(b), ""
	case map[string]any:
		switch stringOf(b["mode"]) {
		case storage.BodyRaw:
			return []byte(stringOf(b["raw"])), ""
		case storage.BodyURLEncoded:
			form := transport.EncodeForm(parsePairs(b["urlencoded"]))
			return []byte(form), "application/x-www-form-urlencoded"
		}
	}
	return nil, ""
}

func hasHeader(headers []transport.Pair, key string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return true
		}
	}
	return false
}

func stringOf(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
