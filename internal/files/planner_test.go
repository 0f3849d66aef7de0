package files

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the file set planner:
// - Stage twice with different sources leaves exactly the second tree (no stale files)
// - Stage skips files and whole subtrees whose path contains an ignore string
// - Stage's substring matching also catches unintended matches
// - CollectDataFiles emits one entry per directory with non-dotfiles, strips the source prefix
// - CollectDataFiles omits dotfile-only and empty directories
// - CopyDataFiles creates destinations and overwrites silently

func newTestPlanner() *Planner {
	log, _ := test.NewNullLogger()
	return NewPlanner(log)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		require.NoError(t, err)
		if !info.IsDir() {
			rel, _ := filepath.Rel(root, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestStage_Staleness(t *testing.T) {
	t.Parallel()

	p := newTestPlanner()
	first := t.TempDir()
	second := t.TempDir()
	dest := filepath.Join(t.TempDir(), "build", "android")

	writeFile(t, filepath.Join(first, "main.py"), "v1")
	writeFile(t, filepath.Join(first, "old", "module.py"), "stale")
	writeFile(t, filepath.Join(second, "main.py"), "v2")
	writeFile(t, filepath.Join(second, "new.py"), "fresh")

	require.NoError(t, p.Stage(first, dest, nil))
	require.NoError(t, p.Stage(second, dest, nil))

	assert.Equal(t, []string{"main.py", "new.py"}, listTree(t, dest))
	data, err := os.ReadFile(filepath.Join(dest, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestStage_IgnoreSubstrings(t *testing.T) {
	t.Parallel()

	p := newTestPlanner()
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "out")

	writeFile(t, filepath.Join(src, "main.py"), "")
	writeFile(t, filepath.Join(src, "tests", "test_app.py"), "")
	writeFile(t, filepath.Join(src, "lib", "contests", "entry.py"), "")
	writeFile(t, filepath.Join(src, "lib", "util.py"), "")
	writeFile(t, filepath.Join(src, "notes.tmp"), "")

	require.NoError(t, p.Stage(src, dest, []string{"tests", ".tmp"}))

	// "contests" contains "tests": the whole subtree is suppressed.
	assert.Equal(t, []string{"lib/util.py", "main.py"}, listTree(t, dest))
	assert.NoDirExists(t, filepath.Join(dest, "tests"))
}

func TestStage_MissingSource(t *testing.T) {
	t.Parallel()

	p := newTestPlanner()
	err := p.Stage(filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "out"), nil)
	assert.Error(t, err)
}

func TestCollectDataFiles(t *testing.T) {
	t.Parallel()

	p := newTestPlanner()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "files", "web", "index.html"), "")
	writeFile(t, filepath.Join(root, "src", "files", "web", "app.js"), "")
	writeFile(t, filepath.Join(root, "src", "files", "web", "css", "site.css"), "")
	writeFile(t, filepath.Join(root, "src", "files", "hidden", ".DS_Store"), "")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "files", "empty"), 0755))

	got, err := p.CollectDataFiles(root, []string{"src/files", "src/missing"}, "src")
	require.NoError(t, err)

	byDest := map[string][]string{}
	for _, df := range got {
		names := make([]string, 0, len(df.Sources))
		for _, s := range df.Sources {
			assert.True(t, filepath.IsAbs(s))
			names = append(names, filepath.Base(s))
		}
		sort.Strings(names)
		byDest[df.Dest] = names
	}

	assert.Equal(t, map[string][]string{
		"files/web":     {"app.js", "index.html"},
		"files/web/css": {"site.css"},
	}, byDest)
}

func TestCopyDataFiles_Overwrites(t *testing.T) {
	t.Parallel()

	p := newTestPlanner()
	root := t.TempDir()
	src := filepath.Join(root, "src", "files", "index.html")
	writeFile(t, src, "new")

	dest := filepath.Join(root, "build")
	writeFile(t, filepath.Join(dest, "files", "index.html"), "old")

	require.NoError(t, p.CopyDataFiles([]DataFile{{Dest: "files", Sources: []string{src}}}, dest))

	data, err := os.ReadFile(filepath.Join(dest, "files", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCopyTreeAndMove(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "pkg", "__init__.py"), "")
	writeFile(t, filepath.Join(dst, "existing.txt"), "")

	require.NoError(t, CopyTree(src, dst))
	assert.Equal(t, []string{"existing.txt", "pkg/__init__.py"}, listTree(t, dst))

	moved := filepath.Join(dst, "moved.txt")
	require.NoError(t, Move(filepath.Join(dst, "existing.txt"), moved))
	assert.True(t, Exists(moved))
	assert.False(t, Exists(filepath.Join(dst, "existing.txt")))
}
