package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultContentCacheSize bounds the number of note bodies kept in
	// memory across a retrieval call.
	DefaultContentCacheSize = 512

	markdownExtension = ".md"
)

var (
	// wikilinkPattern matches [[Target]], [[Target|alias]], [[Target#heading]].
	wikilinkPattern = regexp.MustCompile(`\[\[([^\[\]|#]+)(?:#[^\[\]|]*)?(?:\|[^\[\]]*)?\]\]`)

	// inlineTagPattern matches #tag and nested #tag/sub forms.
	inlineTagPattern = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9][A-Za-z0-9_/-]*)`)
)

// FSConfig configures the filesystem vault.
type FSConfig struct {
	// Include restricts the vault to paths matching these globs.
	// Empty means everything.
	Include []string
	// Exclude removes paths matching these globs.
	Exclude []string
	// ContentCacheSize is the LRU capacity for note bodies.
	ContentCacheSize int
}

// frontmatter is the subset of note frontmatter the vault reads.
type frontmatter struct {
	Title    string   `yaml:"title"`
	Tags     []string `yaml:"tags"`
	Excluded bool     `yaml:"notescout-exclude"`
}

// noteMeta is per-note metadata built during Load.
type noteMeta struct {
	info     FileInfo
	tags     []string
	links    []string // resolved outgoing paths
	excluded bool
}

// FS is a filesystem-backed vault over a directory of markdown notes.
// Load builds the link graph and metadata in one pass; reads afterwards
// are served from the index and a bounded content cache.
type FS struct {
	root   string
	config FSConfig

	mu        sync.RWMutex
	notes     map[string]*noteMeta
	titles    map[string]string   // lowercase title -> path
	backlinks map[string][]string // path -> linking paths
	cache     *lru.Cache[string, string]
}

var _ Store = (*FS)(nil)

// NewFS creates a vault rooted at dir. Call Load before using it.
func NewFS(dir string, cfg FSConfig) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", abs)
	}
	size := cfg.ContentCacheSize
	if size <= 0 {
		size = DefaultContentCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create content cache: %w", err)
	}
	return &FS{
		root:      abs,
		config:    cfg,
		notes:     make(map[string]*noteMeta),
		titles:    make(map[string]string),
		backlinks: make(map[string][]string),
		cache:     cache,
	}, nil
}

// Root returns the absolute vault root directory.
func (v *FS) Root() string { return v.root }

// Load walks the vault and rebuilds the note index and link graph.
// Unreadable files are logged and skipped.
func (v *FS) Load(ctx context.Context) error {
	notes := make(map[string]*noteMeta)
	titles := make(map[string]string)
	rawLinks := make(map[string][]string) // path -> link titles as written

	walkErr := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("vault_walk_error", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(v.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && (strings.HasPrefix(d.Name(), ".") || v.excludedPath(rel+"/")) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), markdownExtension) {
			return nil
		}
		if v.excludedPath(rel) {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			slog.Warn("vault_stat_failed", slog.String("path", rel), slog.String("error", statErr.Error()))
			return nil
		}
		raw, readErr := os.ReadFile(p)
		if readErr != nil {
			slog.Warn("vault_read_failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return nil
		}

		content := string(raw)
		fm, body := parseFrontmatter(content)

		meta := &noteMeta{
			info: FileInfo{
				Path:      rel,
				Basename:  strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
				Extension: strings.TrimPrefix(filepath.Ext(d.Name()), "."),
				Size:      fi.Size(),
				MTime:     fi.ModTime(),
				CTime:     creationTime(fi),
			},
			tags:     collectTags(fm, body),
			excluded: fm.Excluded,
		}
		notes[rel] = meta

		title := meta.info.Basename
		if fm.Title != "" {
			title = fm.Title
		}
		titles[strings.ToLower(title)] = rel
		// Basename always resolves, even when frontmatter overrides the
		// display title; wikilinks are written against filenames.
		titles[strings.ToLower(meta.info.Basename)] = rel

		rawLinks[rel] = extractWikilinks(body)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk vault: %w", walkErr)
	}

	// Resolve link titles to paths and invert for backlinks.
	backlinks := make(map[string][]string)
	for src, targets := range rawLinks {
		meta := notes[src]
		seen := make(map[string]bool)
		for _, t := range targets {
			dst, ok := titles[strings.ToLower(strings.TrimSpace(t))]
			if !ok || dst == src || seen[dst] {
				continue
			}
			seen[dst] = true
			meta.links = append(meta.links, dst)
			backlinks[dst] = append(backlinks[dst], src)
		}
		sort.Strings(meta.links)
	}
	for _, srcs := range backlinks {
		sort.Strings(srcs)
	}

	v.mu.Lock()
	v.notes = notes
	v.titles = titles
	v.backlinks = backlinks
	v.cache.Purge()
	v.mu.Unlock()

	slog.Debug("vault_loaded", slog.Int("notes", len(notes)))
	return nil
}

// ListFiles returns every indexed markdown file, sorted by path.
func (v *FS) ListFiles(_ context.Context) ([]FileInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	files := make([]FileInfo, 0, len(v.notes))
	for _, m := range v.notes {
		files = append(files, m.info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile returns a note body, served from the LRU cache when possible.
func (v *FS) ReadFile(_ context.Context, path string) (string, error) {
	if content, ok := v.cache.Get(path); ok {
		return content, nil
	}
	raw, err := os.ReadFile(filepath.Join(v.root, filepath.FromSlash(path)))
	if err != nil {
		return "", fmt.Errorf("read note %s: %w", path, err)
	}
	content := string(raw)
	v.cache.Add(path, content)
	return content, nil
}

// Stat returns metadata for one note.
func (v *FS) Stat(path string) (FileInfo, error) {
	v.mu.RLock()
	meta, ok := v.notes[path]
	v.mu.RUnlock()
	if !ok {
		return FileInfo{}, fmt.Errorf("note not in vault: %s", path)
	}
	return meta.info, nil
}

// ActiveFile is never set for a filesystem vault.
func (v *FS) ActiveFile() (string, bool) { return "", false }

// OutgoingLinks returns resolved link targets of a note.
func (v *FS) OutgoingLinks(path string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if meta, ok := v.notes[path]; ok {
		return append([]string(nil), meta.links...)
	}
	return nil
}

// Backlinks returns notes linking to the given note.
func (v *FS) Backlinks(path string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.backlinks[path]...)
}

// ResolveTitle maps a wikilink title to a vault path.
func (v *FS) ResolveTitle(title string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.titles[strings.ToLower(strings.TrimSpace(title))]
	return p, ok
}

// Tags returns the note's combined frontmatter and inline tags.
func (v *FS) Tags(path string) []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if meta, ok := v.notes[path]; ok {
		return append([]string(nil), meta.tags...)
	}
	return nil
}

// Excluded reports whether the note opted out via frontmatter.
func (v *FS) Excluded(path string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	meta, ok := v.notes[path]
	return ok && meta.excluded
}

// excludedPath applies include/exclude globs against a slash path.
func (v *FS) excludedPath(rel string) bool {
	base := filepath.Base(rel)
	if len(v.config.Include) > 0 {
		included := false
		for _, pat := range v.config.Include {
			if globMatch(pat, rel, base) {
				included = true
				break
			}
		}
		if !included {
			return true
		}
	}
	for _, pat := range v.config.Exclude {
		if globMatch(pat, rel, base) {
			return true
		}
	}
	return false
}

func globMatch(pattern, rel, base string) bool {
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	if ok, _ := filepath.Match(pattern, base); ok {
		return true
	}
	// Directory prefix patterns like "archive/".
	if strings.HasSuffix(pattern, "/") && strings.HasPrefix(rel, pattern) {
		return true
	}
	return false
}

// parseFrontmatter splits a leading YAML frontmatter block from the body.
// Malformed frontmatter is ignored and treated as body text.
func parseFrontmatter(content string) (frontmatter, string) {
	var fm frontmatter
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return fm, content
	}
	rest := content[strings.Index(content, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, content
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = ""
	}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return frontmatter{}, content
	}
	return fm, body
}

// collectTags merges frontmatter and inline tags, normalized without the
// leading '#', deduplicated, sorted.
func collectTags(fm frontmatter, body string) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}
	for _, t := range fm.Tags {
		add(t)
	}
	for _, m := range inlineTagPattern.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	sort.Strings(tags)
	return tags
}

// extractWikilinks returns link titles as written, in document order.
func extractWikilinks(body string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(body, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, strings.TrimSpace(m[1]))
	}
	return links
}

// creationTime extracts a creation timestamp where the platform reports
// one; falls back to mtime.
func creationTime(fi os.FileInfo) time.Time {
	if ct, ok := platformCreationTime(fi); ok {
		return ct
	}
	return fi.ModTime()
}
