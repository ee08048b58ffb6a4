package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Presence answers whether a document's source file is present.
type Presence interface {
	Has(id string) bool
}

// Set is a Presence snapshot.
type Set map[string]bool

func (s Set) Has(id string) bool { return s[id] }

// DirLocator finds content as <id>.pdf inside a single directory.
type DirLocator struct {
	dir string
}

func NewDirLocator(dir string) *DirLocator {
	return &DirLocator{dir: dir}
}

func (l *DirLocator) Path(id string) string {
	return filepath.Join(l.dir, id+".pdf")
}

// Snapshot lists the directory once. A missing directory means no document
// has content.
func (l *DirLocator) Snapshot(ctx context.Context) (Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read content dir: %w", err)
	}
	set := make(Set, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); strings.EqualFold(ext, ".pdf") {
			set[strings.TrimSuffix(name, ext)] = true
		}
	}
	return set, nil
}
