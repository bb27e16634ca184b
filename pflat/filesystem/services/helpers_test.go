package services

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/fileops"
	"github.com/ZanzyTHEbar/path-flattener/pflat/filesystem/types"
)

func newTestFlatten() *FlattenService {
	return NewFlattenService(fileops.NewFileOps(zerolog.Nop()), NewConflictResolverService(), zerolog.Nop())
}

func newTestRestore() *RestoreService {
	return NewRestoreService(fileops.NewFileOps(zerolog.Nop()), zerolog.Nop())
}

// writeTree creates files below root; keys are slash-separated relative paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// listTree returns every regular file below root as slash-separated relative paths.
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// eventLog collects emitted events.
type eventLog struct {
	mu     sync.Mutex
	events []types.Event
}

func (l *eventLog) emit(ev types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(et types.EventType) []types.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.Event
	for _, ev := range l.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) warnings() []types.Event {
	var out []types.Event
	for _, ev := range l.ofType(types.EventLog) {
		if ev.Level == types.LevelWarn {
			out = append(out, ev)
		}
	}
	return out
}
