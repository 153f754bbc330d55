package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DefaultMetadataFiles is what Generator writes when Files is empty.
var DefaultMetadataFiles = []string{"primary.xml.gz", "repomd.xml"}

// Generator fakes createrepo: it writes a repodata directory with
// placeholder files and records what the directory held when it ran.
type Generator struct {
	mu sync.Mutex

	Files []string
	Err   error

	calls []string
	seen  [][]string
}

// Generate writes dir/repodata unless Err is set.
func (g *Generator) Generate(_ context.Context, dir string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	g.seen = append(g.seen, names)

	if g.Err != nil {
		return g.Err
	}

	repodata := filepath.Join(dir, "repodata")
	if err := os.MkdirAll(repodata, 0755); err != nil {
		return err
	}
	files := g.Files
	if len(files) == 0 {
		files = DefaultMetadataFiles
	}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(repodata, name), []byte("index of "+dir+": "+name), 0644); err != nil {
			return err
		}
	}
	return nil
}

// Calls returns the directories Generate was invoked on.
func (g *Generator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// Seen returns the sorted directory listing observed at each call.
func (g *Generator) Seen() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.seen...)
}
