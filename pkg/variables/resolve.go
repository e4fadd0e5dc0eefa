// Package variables resolves {{key}} placeholders against the three variable
// tiers: local overrides, the active environment and the global set.
package variables

import (
	"regexp"

	"github.com/blackcoderx/hive/pkg/storage"
)

// placeholder matches {{key}}. The key is the literal text between the braces.
var placeholder = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Resolve replaces placeholders in template with values from the merged tiers.
// Precedence is local > env > global, disabled entries count as absent and
// unknown placeholders are kept verbatim.
func Resolve(template string, local, env, global storage.Values) string {
	return Substitute(template, Merge(local, env, global))
}

// Merge flattens the tiers into one mapping. A later tier only fills keys the
// earlier tiers did not provide with an enabled entry.
func Merge(local, env, global storage.Values) map[string]string {
	merged := make(map[string]string, len(local)+len(env)+len(global))
	for _, tier := range []storage.Values{local, env, global} {
		for key, v := range tier {
			if !v.Enabled {
				continue
			}
			if _, taken := merged[key]; taken {
				continue
			}
			merged[key] = v.Value
		}
	}
	return merged
}

// Substitute runs a single left-to-right pass over template. Inserted values
// are not scanned again, so a value containing {{other}} stays literal.
func Substitute(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	})
}

// FromStrings wraps a flat mapping as enabled variables.
func FromStrings(vars map[string]string) storage.Values {
	values := make(storage.Values, len(vars))
	for k, v := range vars {
		values[k] = storage.Variable{Value: v, Enabled: true}
	}
	return values
}
