// Package pagestore keeps raw page HTML on disk, one file per artifact name.
package pagestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

// DirName is the page directory below the work dir.
const DirName = "scraped_pages"

// Store is a directory of saved pages.
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether a page with this artifact name has been saved.
func (s *Store) Exists(name string) bool {
	info, err := os.Stat(s.path(name))
	return err == nil && !info.IsDir()
}

// Save writes html under name, replacing any previous content.
func (s *Store) Save(name string, html []byte) error {
	if err := os.WriteFile(s.path(name), html, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Load reads the page stored under name.
func (s *Store) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return data, nil
}

// List returns the names of all saved pages, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list pages: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), urlcodec.Extension) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Merge writes every saved page to w, each preceded by a "=== name ===" line
// and followed by a blank line. With rewrite set, encoded page names inside
// the content are turned back into URLs.
func (s *Store) Merge(w io.Writer, rewrite bool) (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		data, err := s.Load(name)
		if err != nil {
			return 0, err
		}
		content := string(data)
		if rewrite {
			content = urlcodec.ReplaceNames(content)
		}
		if _, err := fmt.Fprintf(w, "=== %s ===\n%s\n\n", name, content); err != nil {
			return 0, fmt.Errorf("write merged output: %w", err)
		}
	}
	return len(names), nil
}

// path keeps names inside the store directory.
func (s *Store) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}
