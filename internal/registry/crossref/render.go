package crossref

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/validators"
)

const (
	schemaVersion  = "5.3.1"
	schemaNS       = "http://www.crossref.org/schema/5.3.1"
	schemaLocation = "http://www.crossref.org/schema/5.3.1 https://www.crossref.org/schemas/crossref5.3.1.xsd"
	jatsNS         = "http://www.ncbi.nlm.nih.gov/JATS1"
	xsiNS          = "http://www.w3.org/2001/XMLSchema-instance"
)

type doiBatch struct {
	XMLName        xml.Name `xml:"doi_batch"`
	Version        string   `xml:"version,attr"`
	XMLNS          string   `xml:"xmlns,attr"`
	XSI            string   `xml:"xmlns:xsi,attr"`
	JATS           string   `xml:"xmlns:jats,attr"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr"`
	Head           head     `xml:"head"`
	Body           body     `xml:"body"`
}

type head struct {
	BatchID    string    `xml:"doi_batch_id"`
	Timestamp  int64     `xml:"timestamp"`
	Depositor  depositor `xml:"depositor"`
	Registrant string    `xml:"registrant"`
}

type depositor struct {
	Name  string `xml:"depositor_name"`
	Email string `xml:"email_address"`
}

type body struct {
	Journal journal `xml:"journal"`
}

type journal struct {
	Metadata journalMetadata `xml:"journal_metadata"`
	Issue    *journalIssue   `xml:"journal_issue,omitempty"`
	Article  journalArticle  `xml:"journal_article"`
}

type journalMetadata struct {
	Language  string `xml:"language,attr,omitempty"`
	FullTitle string `xml:"full_title"`
	ISSNs     []issn `xml:"issn"`
}

type issn struct {
	MediaType string `xml:"media_type,attr"`
	Value     string `xml:",chardata"`
}

type journalIssue struct {
	Volume *journalVolume `xml:"journal_volume,omitempty"`
	Issue  string         `xml:"issue,omitempty"`
}

type journalVolume struct {
	Volume string `xml:"volume"`
}

type journalArticle struct {
	PublicationType string           `xml:"publication_type,attr"`
	Language        string           `xml:"language,attr,omitempty"`
	Titles          titles           `xml:"titles"`
	Contributors    *contributors    `xml:"contributors,omitempty"`
	Abstract        *jatsAbstract    `xml:"jats:abstract,omitempty"`
	PublicationDate publicationDate  `xml:"publication_date"`
	Pages           *pages           `xml:"pages,omitempty"`
	License         *programLicenses `xml:"ai:program,omitempty"`
	DOIData         doiData          `xml:"doi_data"`
}

type titles struct {
	Title    string `xml:"title"`
	Subtitle string `xml:"subtitle,omitempty"`
}

type contributors struct {
	People []personName `xml:"person_name"`
}

type personName struct {
	Sequence     string       `xml:"sequence,attr"`
	Role         string       `xml:"contributor_role,attr"`
	GivenName    string       `xml:"given_name,omitempty"`
	Surname      string       `xml:"surname"`
	Affiliations *affiliation `xml:"affiliations,omitempty"`
	ORCID        string       `xml:"ORCID,omitempty"`
}

type affiliation struct {
	Institution institution `xml:"institution"`
}

type institution struct {
	Name string `xml:"institution_name"`
}

type jatsAbstract struct {
	Paragraph string `xml:"jats:p"`
}

type publicationDate struct {
	MediaType string `xml:"media_type,attr"`
	Month     string `xml:"month"`
	Day       string `xml:"day"`
	Year      string `xml:"year"`
}

type pages struct {
	First string `xml:"first_page"`
	Last  string `xml:"last_page,omitempty"`
}

type programLicenses struct {
	XMLNS   string `xml:"xmlns:ai,attr"`
	Name    string `xml:"name,attr"`
	License string `xml:"ai:license_ref"`
}

type doiData struct {
	DOI      string `xml:"doi"`
	Resource string `xml:"resource"`
}

// Renderer produces deposit XML for journal articles
type Renderer struct {
	journal config.JournalConfig
	cfg     config.CrossrefConfig
	clock   clock.PassiveClock
}

// NewRenderer creates a deposit renderer
func NewRenderer(journal config.JournalConfig, cfg config.CrossrefConfig, clk clock.PassiveClock) *Renderer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Renderer{journal: journal, cfg: cfg, clock: clk}
}

// Render produces a deposit stamped with the current time
func (r *Renderer) Render(article *articles.Article) ([]byte, error) {
	return r.RenderDeposit(article, r.clock.Now())
}

// BatchID returns the deposit batch id of a submission made at submittedAt.
// The id is derived rather than stored so the submission result can be fetched later.
func BatchID(articleID string, submittedAt time.Time) string {
	return fmt.Sprintf("%s-%d", articleID, submittedAt.UnixMilli())
}

// DOI returns the DOI of the article, deriving one from the prefix when the
// article has none
func (r *Renderer) DOI(article *articles.Article) string {
	if article.DOI != "" {
		return article.DOI
	}
	if r.cfg.DOIPrefix == "" {
		return ""
	}
	return strings.TrimSuffix(r.cfg.DOIPrefix, "/") + "/" + article.ID
}

// RenderDeposit produces the deposit for a submission made at submittedAt
func (r *Renderer) RenderDeposit(article *articles.Article, submittedAt time.Time) ([]byte, error) {
	if err := r.check(article); err != nil {
		return nil, err
	}

	published := article.PublishedAt.UTC()
	date := publicationDate{
		MediaType: "online",
		Month:     fmt.Sprintf("%02d", int(published.Month())),
		Day:       fmt.Sprintf("%02d", published.Day()),
		Year:      fmt.Sprintf("%d", published.Year()),
	}

	metadata := journalMetadata{
		Language:  r.journal.Language,
		FullTitle: r.journal.Title,
	}
	if r.journal.EISSN != "" {
		metadata.ISSNs = append(metadata.ISSNs, issn{MediaType: "electronic", Value: r.journal.EISSN})
	}
	if r.journal.PISSN != "" {
		metadata.ISSNs = append(metadata.ISSNs, issn{MediaType: "print", Value: r.journal.PISSN})
	}

	art := journalArticle{
		PublicationType: "full_text",
		Language:        article.Language,
		Titles:          titles{Title: article.Title, Subtitle: article.Subtitle},
		PublicationDate: date,
		DOIData:         doiData{DOI: r.DOI(article), Resource: article.Permalink},
	}
	if len(article.Authors) > 0 {
		art.Contributors = &contributors{People: make([]personName, 0, len(article.Authors))}
		for i, author := range article.Authors {
			sequence := "additional"
			if i == 0 {
				sequence = "first"
			}
			person := personName{
				Sequence:  sequence,
				Role:      "author",
				GivenName: author.GivenName,
				Surname:   author.FamilyName,
			}
			if author.Affiliation != "" {
				person.Affiliations = &affiliation{Institution: institution{Name: author.Affiliation}}
			}
			if author.ORCID != "" {
				// checked before rendering
				person.ORCID, _ = validators.NormalizeORCID(author.ORCID)
			}
			art.Contributors.People = append(art.Contributors.People, person)
		}
	}
	if article.Abstract != "" {
		art.Abstract = &jatsAbstract{Paragraph: article.Abstract}
	}
	if article.FirstPage != "" {
		art.Pages = &pages{First: article.FirstPage, Last: article.LastPage}
	}
	if article.License != "" {
		art.License = &programLicenses{
			XMLNS:   "http://www.crossref.org/AccessIndicators.xsd",
			Name:    "AccessIndicators",
			License: article.License,
		}
	}

	j := journal{Metadata: metadata, Article: art}
	if article.Volume != "" || article.Issue != "" {
		j.Issue = &journalIssue{Issue: article.Issue}
		if article.Volume != "" {
			j.Issue.Volume = &journalVolume{Volume: article.Volume}
		}
	}

	batch := doiBatch{
		Version:        schemaVersion,
		XMLNS:          schemaNS,
		XSI:            xsiNS,
		JATS:           jatsNS,
		SchemaLocation: schemaLocation,
		Head: head{
			BatchID:   BatchID(article.ID, submittedAt),
			Timestamp: submittedAt.UnixMilli(),
			Depositor: depositor{
				Name:  r.cfg.DepositorName,
				Email: r.cfg.DepositorEmail,
			},
			Registrant: r.cfg.Registrant,
		},
		Body: body{Journal: j},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(batch); err != nil {
		return nil, fmt.Errorf("failed to encode deposit: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) check(article *articles.Article) error {
	switch {
	case r.journal.Title == "":
		return registry.ConfigurationError("journal.title is required for deposits")
	case r.journal.EISSN == "" && r.journal.PISSN == "":
		return registry.ConfigurationError("journal.eissn or journal.pissn is required for deposits")
	case r.cfg.DepositorName == "" || r.cfg.DepositorEmail == "":
		return registry.ConfigurationError("crossref.depositorName and crossref.depositorEmail are required")
	case r.cfg.Registrant == "":
		return registry.ConfigurationError("crossref.registrant is required")
	}

	switch {
	case strings.TrimSpace(article.Title) == "":
		return &registry.RenderError{Field: "title"}
	case article.PublishedAt == nil:
		return &registry.RenderError{Field: "publishedAt"}
	case article.Permalink == "":
		return &registry.RenderError{Field: "permalink"}
	case r.DOI(article) == "":
		return &registry.RenderError{Field: "doi", Message: "article has no DOI and no DOI prefix is configured"}
	}
	if _, err := validators.ValidateDOI(r.DOI(article)); err != nil {
		return &registry.RenderError{Field: "doi", Message: err.Error()}
	}
	for i, author := range article.Authors {
		if author.FamilyName == "" {
			return &registry.RenderError{Field: fmt.Sprintf("authors[%d].familyName", i)}
		}
		if author.ORCID != "" && !validators.IsValidORCID(author.ORCID) {
			return &registry.RenderError{Field: fmt.Sprintf("authors[%d].orcid", i)}
		}
	}
	return nil
}
