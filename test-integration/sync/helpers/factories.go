package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
)

// Journal is the journal every test target publishes
var Journal = config.JournalConfig{
	Title:     "Journal of Integration Testing",
	EISSN:     "2049-3630",
	Publisher: "Test Press",
	Language:  "en",
}

// NewArticle returns an article that both registries can render
func NewArticle(id string, modifiedAt time.Time) *articles.Article {
	published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &articles.Article{
		ID:          id,
		ModifiedAt:  modifiedAt.UTC(),
		PublishedAt: &published,
		Title:       "Article " + id,
		Abstract:    "Abstract of " + id,
		Authors: []articles.Author{
			{GivenName: "Ada", FamilyName: "Lovelace"},
		},
		Keywords:  []string{"testing"},
		Language:  "en",
		Permalink: "https://journal.example.org/articles/" + id,
		Volume:    "3",
		Issue:     "1",
	}
}

// WriteArticles writes an article export readable by the file repository
func WriteArticles(path string, list ...*articles.Article) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteSecret writes a secret file and returns its path
func WriteSecret(dir, name, value string) (string, error) {
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, []byte(value), 0o600)
}

// DOAJTarget returns a disabled doaj target talking to server
func DOAJTarget(name, baseURL, apiKeyFile string) config.TargetConfig {
	return config.TargetConfig{
		Name:              name,
		Type:              config.TargetTypeDOAJ,
		Enabled:           ptr.To(false),
		RequestsPerSecond: 100,
		HTTPTimeout:       "5s",
		Journal:           Journal,
		DOAJ: &config.DOAJConfig{
			BaseURL:    baseURL,
			APIKeyFile: apiKeyFile,
		},
	}
}

// CrossrefTarget returns a disabled crossref target talking to server
func CrossrefTarget(name string, server *MockCrossrefServer, username, passwordFile string) config.TargetConfig {
	return config.TargetConfig{
		Name:              name,
		Type:              config.TargetTypeCrossref,
		Enabled:           ptr.To(false),
		RequestsPerSecond: 100,
		HTTPTimeout:       "5s",
		Journal:           Journal,
		Crossref: &config.CrossrefConfig{
			DepositURL:     server.DepositURL(),
			CheckURL:       server.CheckURL(),
			Username:       username,
			PasswordFile:   passwordFile,
			DepositorName:  "Test Press",
			DepositorEmail: "doi@journal.example.org",
			Registrant:     "Test Press",
			DOIPrefix:      "10.5555",
		},
	}
}

// WriteConfigYAML serializes cfg into dir and returns the file path
func WriteConfigYAML(dir string, cfg *config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
