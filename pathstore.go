package tracklog

import (
	"strings"
	"sync"
)

// DefaultRingCapacity is the per-channel ring size used when a PathStore is
// created without an explicit capacity.
const DefaultRingCapacity = 100

// ChannelEntry is one stored sample on a channel. Full is the whole reading
// the sample arrived in; Local is the subtree at the channel's own path.
// The flat maps index every nested node by slash-joined relative path.
type ChannelEntry struct {
	Full      Reading
	FullFlat  map[string]any
	Local     any
	LocalFlat map[string]any
}

// ringBuffer is a fixed-capacity overwrite-oldest buffer of channel entries.
type ringBuffer struct {
	mu      sync.Mutex
	entries []*ChannelEntry
	head    int
	count   int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{entries: make([]*ChannelEntry, capacity)}
}

func (b *ringBuffer) append(e *ChannelEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// last returns up to n most recent entries, oldest first.
func (b *ringBuffer) last(n int) []*ChannelEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.count {
		n = b.count
	}
	out := make([]*ChannelEntry, 0, n)
	start := b.head - n
	if start < 0 {
		start += len(b.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%len(b.entries)])
	}
	return out
}

// PathStore indexes readings by hierarchical channel path. Every dict node of
// an inserted reading lands on the channel named by its slash-joined path;
// nodes carrying a grouping key (a key ending in underscore) additionally land
// on the discriminated channel "path,key=value". Each channel is a fixed-size
// ring that silently evicts its oldest entry.
type PathStore struct {
	mu       sync.RWMutex
	capacity int
	channels map[string]*ringBuffer
	onInsert func(channel string, e *ChannelEntry)
}

// NewPathStore creates a store whose channels hold capacity entries each.
// A capacity below one falls back to DefaultRingCapacity.
func NewPathStore(capacity int) *PathStore {
	if capacity < 1 {
		capacity = DefaultRingCapacity
	}
	return &PathStore{
		capacity: capacity,
		channels: make(map[string]*ringBuffer),
	}
}

// SetInsertHook registers a callback invoked after every channel append.
// Used by the streaming hub. Must be set before inserts begin.
func (s *PathStore) SetInsertHook(fn func(channel string, e *ChannelEntry)) {
	s.onInsert = fn
}

// Insert records a reading on every channel its tree spans.
func (s *PathStore) Insert(r Reading) {
	if len(r) == 0 {
		return
	}
	fullFlat := make(map[string]any)
	flattenInto("", r, fullFlat)
	for _, k := range sortedMapKeys(r) {
		s.insertNode(k, r[k], r, fullFlat)
	}
}

// insertNode appends an entry for one tree node, leaf or dict, and recurses
// into children. It returns the node's flattened subtree for the parent to
// merge.
func (s *PathStore) insertNode(path string, node any, full Reading, fullFlat map[string]any) map[string]any {
	m, ok := asReading(node)
	if !ok {
		e := &ChannelEntry{Full: full, FullFlat: fullFlat, Local: node, LocalFlat: map[string]any{}}
		s.appendEntry(path, e)
		return nil
	}
	localFlat := make(map[string]any)
	for _, k := range sortedMapKeys(m) {
		v := m[k]
		localFlat[k] = v
		childFlat := s.insertNode(path+"/"+k, v, full, fullFlat)
		for ck, cv := range childFlat {
			localFlat[k+"/"+ck] = cv
		}
	}
	e := &ChannelEntry{Full: full, FullFlat: fullFlat, Local: node, LocalFlat: localFlat}
	s.appendEntry(path, e)
	if name, value, ok := groupingKey(m); ok {
		s.appendEntry(path+","+name+"="+value, e)
	}
	return localFlat
}

func (s *PathStore) appendEntry(channel string, e *ChannelEntry) {
	s.mu.Lock()
	b := s.channels[channel]
	if b == nil {
		b = newRingBuffer(s.capacity)
		s.channels[channel] = b
	}
	s.mu.Unlock()
	b.append(e)
	if s.onInsert != nil {
		s.onInsert(channel, e)
	}
}

// Channels returns the known channel names, sorted.
func (s *PathStore) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMapKeys(s.channels)
}

// Read queries a channel. With an empty projection it returns the full
// reading of the latest entry (count 1) or a slice of full readings oldest
// first; count zero or negative means everything buffered. A non-empty
// projection is a comma-separated list of field tokens, with brace expansion
// ("pos/{x,y}"), and yields a map from expanded token to the resolved
// values, single value when count is 1. Unknown channels and unresolvable
// tokens yield nil.
func (s *PathStore) Read(channel, projection string, count int) any {
	if count < 1 {
		count = s.capacity
	}
	s.mu.RLock()
	b := s.channels[channel]
	s.mu.RUnlock()
	if b == nil {
		return nil
	}
	entries := b.last(count)
	if len(entries) == 0 {
		return nil
	}
	if projection == "" {
		if count == 1 {
			return entries[len(entries)-1].Full
		}
		out := make([]Reading, len(entries))
		for i, e := range entries {
			out[i] = e.Full
		}
		return out
	}
	tokens := expandProjection(projection)
	out := make(map[string]any, len(tokens))
	for _, tok := range tokens {
		if count == 1 {
			out[tok] = resolveToken(channel, entries[len(entries)-1], tok)
			continue
		}
		vals := make([]any, len(entries))
		for i, e := range entries {
			vals[i] = resolveToken(channel, e, tok)
		}
		out[tok] = vals
	}
	return out
}

// resolveToken locates one projection field on an entry. Lookup prefers the
// channel's own subtree, then falls back to the full reading, absolute or
// relative to the channel's parent path.
func resolveToken(channel string, e *ChannelEntry, token string) any {
	path := channel
	if i := strings.Index(path, ","); i >= 0 {
		path = path[:i]
	}
	localName := path
	parent := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		localName = path[i+1:]
		parent = path[:i]
	}
	if rest, ok := strings.CutPrefix(token, localName+"/"); ok {
		if v, ok := e.LocalFlat[rest]; ok {
			return v
		}
	}
	if token == localName {
		return e.Local
	}
	if v, ok := e.FullFlat[token]; ok {
		return v
	}
	if v, ok := e.LocalFlat[token]; ok {
		return v
	}
	if parent != "" {
		if v, ok := e.FullFlat[parent+"/"+token]; ok {
			return v
		}
	}
	return nil
}

// expandProjection splits a projection on top-level commas and expands brace
// alternatives, so "pos/{x,y},temp" becomes [pos/x pos/y temp].
func expandProjection(projection string) []string {
	var out []string
	for _, part := range splitTopLevel(projection) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, expandBraces(part)...)
	}
	return out
}

// splitTopLevel splits on commas not enclosed in braces.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// expandBraces expands the first {a,b,...} group and recurses on each result.
func expandBraces(s string) []string {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return []string{s}
	}
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var out []string
				for _, alt := range splitTopLevel(s[open+1 : i]) {
					out = append(out, expandBraces(s[:open]+alt+s[i+1:])...)
				}
				return out
			}
		}
	}
	// Unbalanced brace, treat literally.
	return []string{s}
}
