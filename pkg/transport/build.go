package transport

import (
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/blackcoderx/hive/pkg/storage"
)

// FromNode builds the outbound request for a request node. Only enabled
// params, headers and form fields are sent; every key and value passes
// through resolve.
func FromNode(node *storage.Node, resolve func(string) string, sslVerify bool) Request {
	req := Request{
		Method:    strings.ToUpper(node.Method),
		URL:       resolve(node.URL),
		Params:    enabledPairs(node.Params, resolve),
		Headers:   enabledPairs(node.Headers, resolve),
		SSLVerify: sslVerify,
	}

	switch node.Body.Mode {
	case storage.BodyRaw:
		req.Body = []byte(resolve(node.Body.Raw))
		req.Headers = withDefaultHeader(req.Headers, "Content-Type", "application/json")
	case storage.BodyURLEncoded:
		req.Body = []byte(EncodeForm(enabledPairs(node.Body.URLEncoded, resolve)))
		req.Headers = withDefaultHeader(req.Headers, "Content-Type", "application/x-www-form-urlencoded")
	}

	return req
}

// EncodeForm joins pairs as key=value&key=value in their original order.
func EncodeForm(pairs []Pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

func enabledPairs(kvs []storage.KeyValue, resolve func(string) string) []Pair {
	var out []Pair
	for _, kv := range kvs {
		if !kv.Enabled {
			continue
		}
		out = append(out, Pair{Key: resolve(kv.Key), Value: resolve(kv.Value)})
	}
	return out
}

func withDefaultHeader(headers []Pair, key, value string) []Pair {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return headers
		}
	}
	return append(headers, Pair{Key: key, Value: value})
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
