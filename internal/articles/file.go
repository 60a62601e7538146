package articles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// FileRepository serves articles from a JSON or YAML export of the CMS.
// The file is re-read whenever its modification time changes.
type FileRepository struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	memory  *MemoryRepository
}

// NewFileRepository loads the export at path
func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{
		path:   filepath.Clean(path),
		memory: NewMemoryRepository(),
	}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the article with the given id
func (r *FileRepository) Get(ctx context.Context, id string) (*Article, error) {
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r.memory.Get(ctx, id)
}

// List returns every article in the export
func (r *FileRepository) List(ctx context.Context) ([]*Article, error) {
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r.memory.List(ctx)
}

func (r *FileRepository) refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("failed to stat articles file: %w", err)
	}
	if !r.modTime.IsZero() && info.ModTime().Equal(r.modTime) {
		return nil
	}

	list, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	r.memory.Replace(list)
	r.modTime = info.ModTime()

	slog.Debug("Loaded articles", "path", r.path, "count", len(list))
	return nil
}

// LoadFile parses an article export. Files ending in .yaml or .yml are read as
// YAML, everything else as JSON. The document is either a list of articles or an
// object with an "articles" list.
func LoadFile(path string) ([]*Article, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read articles file: %w", err)
	}

	var doc struct {
		Articles []*Article `json:"articles" yaml:"articles"`
	}

	ext := strings.ToLower(filepath.Ext(path))
	isYAML := ext == ".yaml" || ext == ".yml"
	trimmed := strings.TrimSpace(string(data))

	switch {
	case isYAML && strings.HasPrefix(trimmed, "-"):
		err = yaml.Unmarshal(data, &doc.Articles)
	case isYAML:
		err = yaml.Unmarshal(data, &doc)
	case strings.HasPrefix(trimmed, "["):
		err = json.Unmarshal(data, &doc.Articles)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse articles file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.Articles))
	for i, a := range doc.Articles {
		if a == nil || a.ID == "" {
			return nil, fmt.Errorf("articles file %s: entry %d has no id", path, i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("articles file %s: duplicate id %s", path, a.ID)
		}
		seen[a.ID] = true
		a.ModifiedAt = a.ModifiedAt.UTC()
	}
	return doc.Articles, nil
}
