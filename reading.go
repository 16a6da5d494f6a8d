package tracklog

import (
	"fmt"
	"sort"
	"strings"
)

// Reading is one sample produced by a sensor: an arbitrary tree of named
// fields whose leaves are primitive values or arrays. A reading is immutable
// once inserted.
type Reading map[string]any

// asReading normalizes the two map shapes a reading node can arrive in.
func asReading(v any) (Reading, bool) {
	switch m := v.(type) {
	case Reading:
		return m, true
	case map[string]any:
		return Reading(m), true
	}
	return nil, false
}

// flattenInto records every node of the tree under its slash-joined path.
func flattenInto(prefix string, node any, out map[string]any) {
	m, ok := asReading(node)
	if !ok {
		return
	}
	for k, v := range m {
		p := k
		if prefix != "" {
			p = prefix + "/" + k
		}
		out[p] = v
		flattenInto(p, v, out)
	}
}

// groupingKey returns the grouping discriminator for one dict level: the key
// ending in an underscore, with the underscore stripped, plus that key's
// value rendered as a string. When several grouping keys exist the
// lexicographically smallest wins.
func groupingKey(m Reading) (name, value string, ok bool) {
	var keys []string
	for k := range m {
		if strings.HasSuffix(k, "_") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", "", false
	}
	sort.Strings(keys)
	k := keys[0]
	return strings.TrimSuffix(k, "_"), fmt.Sprint(m[k]), true
}

// sortedMapKeys returns the keys of a string-keyed map in sorted order.
func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
