// Package articles models the locally authored articles that are synchronized
// with external registries. Articles are owned by the CMS; this package only reads them.
package articles

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when an article does not exist in the repository
var ErrNotFound = errors.New("article not found")

// Author is a contributor of an article
type Author struct {
	GivenName   string `json:"givenName" yaml:"givenName"`
	FamilyName  string `json:"familyName" yaml:"familyName"`
	ORCID       string `json:"orcid,omitempty" yaml:"orcid,omitempty"`
	Affiliation string `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
}

// FullName returns "Given Family", or whichever part is present
func (a Author) FullName() string {
	return strings.TrimSpace(a.GivenName + " " + a.FamilyName)
}

// Article is the subset of CMS article data needed to render registry metadata.
// The sync engine itself only relies on ID and ModifiedAt.
type Article struct {
	ID          string     `json:"id" yaml:"id"`
	ModifiedAt  time.Time  `json:"modifiedAt" yaml:"modifiedAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty" yaml:"publishedAt,omitempty"`

	Title    string   `json:"title" yaml:"title"`
	Subtitle string   `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []Author `json:"authors,omitempty" yaml:"authors,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Language string   `json:"language,omitempty" yaml:"language,omitempty"`

	DOI        string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Permalink  string   `json:"permalink,omitempty" yaml:"permalink,omitempty"`
	PDFURL     string   `json:"pdfUrl,omitempty" yaml:"pdfUrl,omitempty"`
	License    string   `json:"license,omitempty" yaml:"license,omitempty"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	Volume    string `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue     string `json:"issue,omitempty" yaml:"issue,omitempty"`
	FirstPage string `json:"firstPage,omitempty" yaml:"firstPage,omitempty"`
	LastPage  string `json:"lastPage,omitempty" yaml:"lastPage,omitempty"`
}

// InCategory reports whether the article belongs to any of the given categories
func (a *Article) InCategory(categories []string) bool {
	for _, c := range categories {
		if slices.Contains(a.Categories, c) {
			return true
		}
	}
	return false
}

// Repository gives read access to the article collection
type Repository interface {
	// Get returns the article with the given id or ErrNotFound
	Get(ctx context.Context, id string) (*Article, error)

	// List returns every article ordered by modification time, then id
	List(ctx context.Context) ([]*Article, error)
}

// Querier is implemented by repositories that can evaluate a Filter against
// the sync records of a target themselves, typically in SQL
type Querier interface {
	// Query returns the articles matching filter for target, ordered by
	// modification time then id. A limit of 0 means no limit.
	Query(ctx context.Context, target string, filter Filter, limit int) ([]*Article, error)
}

// SortArticles orders articles by modification time, then id
func SortArticles(list []*Article) {
	slices.SortStableFunc(list, func(a, b *Article) int {
		if c := a.ModifiedAt.Compare(b.ModifiedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
