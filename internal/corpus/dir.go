package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFileSize bounds what the directory corpus will treat as an
// item (1MB). Larger files are cataloged but not text-bearing.
const DefaultMaxFileSize = 1 << 20

// textExtensions maps file extensions to media types for text-bearing
// items. Everything else is cataloged as application/octet-stream with
// no text.
var textExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".rst":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".html": "text/html",
	".xml":  "application/xml",
	".log":  "text/plain",
}

// DirCorpus exposes a directory tree as a corpus. Item ids are content
// hashes of the relative path; the catalog timestamp is the newest file
// mtime seen at scan time, so edits produce new snapshot ids.
type DirCorpus struct {
	root        string
	artifactDir string

	items       []Item
	paths       map[string]string // item id -> absolute path
	textItems   map[string]bool
	generatedAt time.Time
}

// NewDirCorpus scans dir and returns a corpus over its files. Hidden
// files and directories (dot-prefixed) are skipped. Artifacts are
// written under artifactDir.
func NewDirCorpus(dir, artifactDir string) (*DirCorpus, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", absRoot)
	}
	if artifactDir == "" {
		artifactDir = filepath.Join(absRoot, ".quarry")
	}
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	c := &DirCorpus{
		root:        absRoot,
		artifactDir: artifactDir,
		paths:       make(map[string]string),
		textItems:   make(map[string]bool),
	}
	if err := c.scan(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DirCorpus) scan() error {
	var newest time.Time
	var relPaths []string
	byRel := make(map[string]fs.FileInfo)

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") && path != c.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		byRel[rel] = info
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan corpus: %w", err)
	}

	// Stable catalog order.
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		info := byRel[rel]
		id := itemID(rel)
		ext := strings.ToLower(filepath.Ext(rel))
		mediaType, isText := textExtensions[ext]
		if !isText {
			mediaType = "application/octet-stream"
		}
		if info.Size() > DefaultMaxFileSize {
			isText = false
		}

		c.items = append(c.items, Item{
			ID:        id,
			RelPath:   rel,
			MediaType: mediaType,
			SourceURI: "file://" + filepath.Join(c.root, rel),
		})
		c.paths[id] = filepath.Join(c.root, rel)
		c.textItems[id] = isText
	}

	c.generatedAt = newest.UTC()
	return nil
}

// itemID derives a stable id from the relative path.
func itemID(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:8])
}

// URI implements Corpus.
func (c *DirCorpus) URI() string { return "file://" + c.root }

// Root implements Corpus.
func (c *DirCorpus) Root() string { return c.artifactDir }

// CatalogGeneratedAt implements Corpus.
func (c *DirCorpus) CatalogGeneratedAt() time.Time { return c.generatedAt }

// Items implements Corpus.
func (c *DirCorpus) Items(ctx context.Context) ([]Item, error) {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out, nil
}

// ReadText implements Corpus, reading file contents for text items.
func (c *DirCorpus) ReadText(ctx context.Context, itemID string) (string, bool, error) {
	path, ok := c.paths[itemID]
	if !ok {
		return "", false, fmt.Errorf("unknown item %q", itemID)
	}
	if !c.textItems[itemID] {
		return "", false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read item %s: %w", itemID, err)
	}
	return string(data), true, nil
}
