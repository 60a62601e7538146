package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/status"
)

const (
	// StatusFileName is the name of the per-target state file
	StatusFileName = "status.json"
)

type fileDocument struct {
	Global  *status.GlobalState           `json:"global,omitempty"`
	Records map[string]*status.SyncRecord `json:"records"`
}

// fileStore keeps the state of one target in a JSON file
type fileStore struct {
	target   string
	filePath string
	clock    clock.PassiveClock

	mu  sync.RWMutex
	doc *fileDocument
}

// NewFileStore creates a store persisting to <basePath>/<target>/status.json
func NewFileStore(basePath, target string, clk clock.PassiveClock) (Store, error) {
	if target == "" {
		return nil, fmt.Errorf("target name is required")
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	s := &fileStore{
		target:   target,
		filePath: filepath.Join(basePath, target, StatusFileName),
		clock:    clk,
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.doc = doc

	slog.Debug("Loaded sync state", "target", target, "path", s.filePath, "records", len(doc.Records))
	return s, nil
}

func (s *fileStore) Target() string {
	return s.target
}

func (s *fileStore) load() (*fileDocument, error) {
	// #nosec G304 -- filePath is constructed from the configured data dir and a validated target name
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// first run
			return &fileDocument{Records: map[string]*status.SyncRecord{}}, nil
		}
		return nil, fmt.Errorf("failed to read state file for target '%s': %w", s.target, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for target '%s': %w", s.target, err)
	}
	if doc.Records == nil {
		doc.Records = map[string]*status.SyncRecord{}
	}
	for id, rec := range doc.Records {
		rec.ArticleID = id
	}
	return &doc, nil
}

// save writes doc to a temporary file and renames it over the state file
func (s *fileStore) save(doc *fileDocument) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory for target '%s': %w", s.target, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for target '%s': %w", s.target, err)
	}

	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file for target '%s': %w", s.target, err)
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file for target '%s': %w", s.target, err)
	}
	return nil
}

// copyDocument returns a copy of the document that can be mutated and saved
// without touching the cached one
func (s *fileStore) copyDocument() *fileDocument {
	c := &fileDocument{
		Global:  s.doc.Global.Clone(),
		Records: make(map[string]*status.SyncRecord, len(s.doc.Records)),
	}
	for id, rec := range s.doc.Records {
		c.Records[id] = rec
	}
	return c
}

func (s *fileStore) Get(_ context.Context, articleID string) (*status.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.doc.Records[articleID]; ok {
		return rec.Clone(), nil
	}
	return status.NewSyncRecord(articleID), nil
}

func (s *fileStore) Set(_ context.Context, articleID string, update status.RecordUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.doc.Records[articleID]
	if ok {
		rec = rec.Clone()
	} else {
		rec = status.NewSyncRecord(articleID)
	}
	update.Apply(rec)

	doc := s.copyDocument()
	if rec.IsZero() {
		delete(doc.Records, articleID)
	} else {
		doc.Records[articleID] = rec
	}

	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *fileStore) ResetAll(_ context.Context, keepExternalID bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.copyDocument()
	for id, rec := range doc.Records {
		rec = rec.Clone()
		rec.Reset(keepExternalID)
		if rec.IsZero() {
			delete(doc.Records, id)
			continue
		}
		doc.Records[id] = rec
	}

	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *fileStore) List(_ context.Context) ([]*status.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*status.SyncRecord, 0, len(s.doc.Records))
	for _, rec := range s.doc.Records {
		list = append(list, rec.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ArticleID < list[j].ArticleID
	})
	return list, nil
}

func (s *fileStore) GetGlobal(_ context.Context) (*status.GlobalState, error) {
	s.mu.RLock()
	if g := s.doc.Global; g != nil && !g.LastModifiedCheckTime.IsZero() {
		defer s.mu.RUnlock()
		return g.Clone(), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.seedGlobal()
	if err != nil {
		return nil, err
	}
	return doc.Global.Clone(), nil
}

// seedGlobal initializes the global state if needed. Callers hold the write lock.
func (s *fileStore) seedGlobal() (*fileDocument, error) {
	if g := s.doc.Global; g != nil && !g.LastModifiedCheckTime.IsZero() {
		return s.doc, nil
	}

	doc := s.copyDocument()
	if doc.Global == nil {
		doc.Global = &status.GlobalState{}
	}
	doc.Global.LastModifiedCheckTime = s.clock.Now().UTC()
	if err := s.save(doc); err != nil {
		return nil, err
	}
	s.doc = doc

	slog.Info("Initialized sync state", "target", s.target, "last_modified_check_time", doc.Global.LastModifiedCheckTime)
	return doc, nil
}

func (s *fileStore) SetGlobal(_ context.Context, update status.GlobalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.seedGlobal(); err != nil {
		return err
	}

	doc := s.copyDocument()
	update.Apply(doc.Global)
	if err := s.save(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}
