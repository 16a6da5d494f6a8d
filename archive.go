package tracklog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Archiver moves finished recording files between local disk and an object
// store.
type Archiver struct {
	store  ObjectStore
	prefix string
}

// NewArchiver creates an archiver storing recordings under prefix.
func NewArchiver(store ObjectStore, prefix string) *Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archiver{store: store, prefix: prefix}
}

func (a *Archiver) key(name string) string {
	return a.prefix + name
}

// ArchiveRecording uploads a recording file under the given name. The
// recording must not be open for writing.
func (a *Archiver) ArchiveRecording(ctx context.Context, path, name string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	if err := a.store.Write(ctx, a.key(name), data); err != nil {
		return fmt.Errorf("archive recording %q: %w", name, err)
	}
	return nil
}

// FetchRecording downloads an archived recording to a local path.
func (a *Archiver) FetchRecording(ctx context.Context, name, path string) error {
	data, err := a.store.Read(ctx, a.key(name))
	if err != nil {
		return fmt.Errorf("fetch recording %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

// ListRecordings returns the archived recording names, sorted.
func (a *Archiver) ListRecordings(ctx context.Context) ([]string, error) {
	keys, err := a.store.List(ctx, a.prefix)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, a.prefix))
	}
	sort.Strings(names)
	return names, nil
}

// DeleteRecording removes an archived recording.
func (a *Archiver) DeleteRecording(ctx context.Context, name string) error {
	if err := a.store.Delete(ctx, a.key(name)); err != nil {
		return fmt.Errorf("delete recording %q: %w", name, err)
	}
	return nil
}
