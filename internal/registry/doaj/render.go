package doaj

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/validators"
)

//go:embed schema/article.json
var articleSchema []byte

const maxKeywords = 6

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(articleSchema))
		if err != nil {
			compileErr = fmt.Errorf("failed to parse article schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("article.json", doc); err != nil {
			compileErr = fmt.Errorf("failed to load article schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("article.json")
	})
	return compiledSchema, compileErr
}

type articleDoc struct {
	ID      string  `json:"id,omitempty"`
	BibJSON bibJSON `json:"bibjson"`
}

type bibJSON struct {
	Title      string       `json:"title"`
	Abstract   string       `json:"abstract,omitempty"`
	Year       string       `json:"year,omitempty"`
	Month      string       `json:"month,omitempty"`
	Keywords   []string     `json:"keywords,omitempty"`
	Identifier []identifier `json:"identifier"`
	Author     []author     `json:"author,omitempty"`
	Link       []link       `json:"link"`
	Journal    journal      `json:"journal"`
}

type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	ORCID       string `json:"orcid_id,omitempty"`
}

type link struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
}

type journal struct {
	Title     string   `json:"title"`
	Publisher string   `json:"publisher,omitempty"`
	Language  []string `json:"language,omitempty"`
	Volume    string   `json:"volume,omitempty"`
	Number    string   `json:"number,omitempty"`
	StartPage string   `json:"start_page,omitempty"`
	EndPage   string   `json:"end_page,omitempty"`
}

// Renderer produces article documents in bibjson form
type Renderer struct {
	journal config.JournalConfig
}

var _ registry.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer for articles of the given journal
func NewRenderer(j config.JournalConfig) *Renderer {
	return &Renderer{journal: j}
}

// Render produces the article document and validates it against the schema
func (r *Renderer) Render(article *articles.Article) ([]byte, error) {
	if r.journal.Title == "" {
		return nil, registry.ConfigurationError("journal.title is required")
	}
	if r.journal.EISSN == "" && r.journal.PISSN == "" {
		return nil, registry.ConfigurationError("journal.eissn or journal.pissn is required")
	}
	if strings.TrimSpace(article.Title) == "" {
		return nil, &registry.RenderError{Field: "title"}
	}
	if article.Permalink == "" {
		return nil, &registry.RenderError{Field: "permalink"}
	}

	doc := articleDoc{BibJSON: bibJSON{
		Title:    article.Title,
		Abstract: article.Abstract,
		Journal: journal{
			Title:     r.journal.Title,
			Publisher: r.journal.Publisher,
			Volume:    article.Volume,
			Number:    article.Issue,
			StartPage: article.FirstPage,
			EndPage:   article.LastPage,
		},
		Link: []link{{URL: article.Permalink, Type: "fulltext", ContentType: "HTML"}},
	}}

	if lang := languageCode(article.Language, r.journal.Language); lang != "" {
		doc.BibJSON.Journal.Language = []string{lang}
	}
	if article.PDFURL != "" {
		doc.BibJSON.Link = append(doc.BibJSON.Link, link{URL: article.PDFURL, Type: "fulltext", ContentType: "PDF"})
	}
	if article.PublishedAt != nil {
		published := article.PublishedAt.UTC()
		doc.BibJSON.Year = strconv.Itoa(published.Year())
		doc.BibJSON.Month = strconv.Itoa(int(published.Month()))
	}
	if len(article.Keywords) > 0 {
		keywords := article.Keywords
		if len(keywords) > maxKeywords {
			keywords = keywords[:maxKeywords]
		}
		doc.BibJSON.Keywords = keywords
	}

	if article.DOI != "" {
		doc.BibJSON.Identifier = append(doc.BibJSON.Identifier, identifier{Type: "doi", ID: article.DOI})
	}
	if r.journal.EISSN != "" {
		doc.BibJSON.Identifier = append(doc.BibJSON.Identifier, identifier{Type: "eissn", ID: r.journal.EISSN})
	}
	if r.journal.PISSN != "" {
		doc.BibJSON.Identifier = append(doc.BibJSON.Identifier, identifier{Type: "pissn", ID: r.journal.PISSN})
	}

	for i, a := range article.Authors {
		name := a.FullName()
		if name == "" {
			return nil, &registry.RenderError{Field: fmt.Sprintf("authors[%d].name", i)}
		}
		entry := author{Name: name, Affiliation: a.Affiliation}
		if a.ORCID != "" {
			entry.ORCID = a.ORCID
			if normalized, err := validators.NormalizeORCID(a.ORCID); err == nil {
				entry.ORCID = normalized
			}
		}
		doc.BibJSON.Author = append(doc.BibJSON.Author, entry)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode article: %w", err)
	}
	if err := validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func validate(payload []byte) error {
	sch, err := schema()
	if err != nil {
		return registry.NewError(registry.KindConfiguration, "article schema unavailable", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to decode rendered article: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return &registry.RenderError{Field: "bibjson", Message: verr.Error()}
		}
		return &registry.RenderError{Field: "bibjson", Message: err.Error()}
	}
	return nil
}

// languageCode returns the upper-case two letter code of the first usable language
func languageCode(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if len(c) >= 2 {
			return strings.ToUpper(c[:2])
		}
	}
	return ""
}
