package vault

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// MemNote seeds one note in a memory vault.
type MemNote struct {
	Path     string
	Content  string
	Tags     []string
	Links    []string // outgoing link titles
	MTime    time.Time
	CTime    time.Time
	Excluded bool
	ReadErr  error // simulate unreadable files
}

// Mem is an in-memory Store used in tests and by hosts that already hold
// their corpus in memory.
type Mem struct {
	notes     map[string]MemNote
	titles    map[string]string
	backlinks map[string][]string
	active    string
}

var _ Store = (*Mem)(nil)

// NewMem builds a memory vault from seed notes. Links are resolved by
// note title the same way the filesystem vault resolves wikilinks.
func NewMem(notes ...MemNote) *Mem {
	m := &Mem{
		notes:     make(map[string]MemNote, len(notes)),
		titles:    make(map[string]string, len(notes)),
		backlinks: make(map[string][]string),
	}
	for _, n := range notes {
		m.notes[n.Path] = n
		m.titles[strings.ToLower(noteTitle(n.Path))] = n.Path
	}
	for _, n := range notes {
		for _, link := range n.Links {
			if dst, ok := m.titles[strings.ToLower(link)]; ok && dst != n.Path {
				m.backlinks[dst] = append(m.backlinks[dst], n.Path)
			}
		}
	}
	for _, srcs := range m.backlinks {
		sort.Strings(srcs)
	}
	return m
}

// SetActive marks the currently focused note.
func (m *Mem) SetActive(path string) { m.active = path }

func (m *Mem) ListFiles(_ context.Context) ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(m.notes))
	for _, n := range m.notes {
		files = append(files, m.info(n))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (m *Mem) ReadFile(_ context.Context, p string) (string, error) {
	n, ok := m.notes[p]
	if !ok {
		return "", fmt.Errorf("note not in vault: %s", p)
	}
	if n.ReadErr != nil {
		return "", n.ReadErr
	}
	return n.Content, nil
}

func (m *Mem) Stat(p string) (FileInfo, error) {
	n, ok := m.notes[p]
	if !ok {
		return FileInfo{}, fmt.Errorf("note not in vault: %s", p)
	}
	return m.info(n), nil
}

func (m *Mem) ActiveFile() (string, bool) { return m.active, m.active != "" }

func (m *Mem) OutgoingLinks(p string) []string {
	n, ok := m.notes[p]
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, link := range n.Links {
		if dst, ok := m.titles[strings.ToLower(link)]; ok && dst != p && !seen[dst] {
			seen[dst] = true
			out = append(out, dst)
		}
	}
	sort.Strings(out)
	return out
}

func (m *Mem) Backlinks(p string) []string {
	return append([]string(nil), m.backlinks[p]...)
}

func (m *Mem) ResolveTitle(title string) (string, bool) {
	p, ok := m.titles[strings.ToLower(strings.TrimSpace(title))]
	return p, ok
}

func (m *Mem) Tags(p string) []string {
	n, ok := m.notes[p]
	if !ok {
		return nil
	}
	return append([]string(nil), n.Tags...)
}

func (m *Mem) Excluded(p string) bool {
	n, ok := m.notes[p]
	return ok && n.Excluded
}

func (m *Mem) info(n MemNote) FileInfo {
	base := path.Base(n.Path)
	ext := path.Ext(base)
	mtime := n.MTime
	if mtime.IsZero() {
		mtime = time.Now()
	}
	ctime := n.CTime
	if ctime.IsZero() {
		ctime = mtime
	}
	return FileInfo{
		Path:      n.Path,
		Basename:  strings.TrimSuffix(base, ext),
		Extension: strings.TrimPrefix(ext, "."),
		Size:      int64(len(n.Content)),
		MTime:     mtime,
		CTime:     ctime,
	}
}

func noteTitle(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
