// Package doaj implements the open-access article index integration.
// Existing entries can be identified by search, updated in place and deleted.
package doaj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/httpclient"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/status"
)

const (
	// DefaultBaseURL is the production API root
	DefaultBaseURL = "https://doaj.org"

	// IdentifyByDOI searches by DOI
	IdentifyByDOI = "doi"

	// IdentifyByTitle searches by exact title
	IdentifyByTitle = "title"

	// IdentifyByPermalink searches by full text link
	IdentifyByPermalink = "permalink"
)

// Client talks to the article API
type Client struct {
	name       string
	baseURL    string
	identifyBy string
	apiKey     func() (string, error)
	renderer   registry.Renderer
	transport  *registry.Transport
}

var _ registry.Client = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithRenderer replaces the bibjson renderer
func WithRenderer(r registry.Renderer) Option {
	return func(c *Client) {
		c.renderer = r
	}
}

// NewClient creates a client for the given target
func NewClient(target *config.TargetConfig, transport *registry.Transport, opts ...Option) *Client {
	cfg := config.DOAJConfig{}
	if target.DOAJ != nil {
		cfg = *target.DOAJ
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	identifyBy := cfg.IdentifyBy
	if identifyBy == "" {
		identifyBy = IdentifyByPermalink
	}

	c := &Client{
		name:       target.Name,
		baseURL:    baseURL,
		identifyBy: identifyBy,
		apiKey:     target.GetAPIKey,
		renderer:   NewRenderer(target.Journal),
		transport:  transport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the target name
func (c *Client) Name() string {
	return c.name
}

// Capabilities returns the operations supported by the article API
func (*Client) Capabilities() registry.Capabilities {
	return registry.Capabilities{Identify: true, Delete: true}
}

// CheckStatus is not needed: submissions are processed synchronously
func (c *Client) CheckStatus(_ context.Context, _ *articles.Article, _ *status.SyncRecord) (*registry.CheckResult, error) {
	return nil, registry.UnsupportedError(c.name, "status checks")
}

func (c *Client) key() (string, error) {
	key, err := c.apiKey()
	if err != nil {
		return "", registry.NewError(registry.KindConfiguration, err.Error(), err)
	}
	return key, nil
}

func (c *Client) searchQuery(article *articles.Article) (string, bool) {
	switch c.identifyBy {
	case IdentifyByDOI:
		if article.DOI == "" {
			return "", false
		}
		return fmt.Sprintf(`doi:"%s"`, article.DOI), true
	case IdentifyByTitle:
		if article.Title == "" {
			return "", false
		}
		return fmt.Sprintf(`bibjson.title.exact:"%s"`, strings.ReplaceAll(article.Title, `"`, `\"`)), true
	default:
		if article.Permalink == "" {
			return "", false
		}
		return fmt.Sprintf(`bibjson.link.url.exact:"%s"`, article.Permalink), true
	}
}

// Identify searches for the article. Only a single hit counts as a match.
func (c *Client) Identify(ctx context.Context, article *articles.Article) (*registry.IdentifyResult, error) {
	query, ok := c.searchQuery(article)
	if !ok {
		return &registry.IdentifyResult{}, nil
	}

	endpoint := fmt.Sprintf("%s/api/search/articles/%s?page=1&pageSize=2", c.baseURL, url.PathEscape(query))
	resp, err := c.transport.Expect(ctx, &httpclient.Request{Method: http.MethodGet, URL: endpoint})
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, registry.NewError(registry.KindTransient, "unreadable search response", nil)
	}

	total := int(gjson.GetBytes(resp.Body, "total").Int())
	results := gjson.GetBytes(resp.Body, "results").Array()
	if total == 0 {
		total = len(results)
	}
	if total != 1 || len(results) != 1 {
		return &registry.IdentifyResult{Matches: total}, nil
	}

	id := results[0].Get("id").String()
	if id == "" {
		return &registry.IdentifyResult{Matches: total}, nil
	}
	return &registry.IdentifyResult{Found: true, ExternalID: id, Matches: 1}, nil
}

// Submit creates the article, or replaces it when rec carries an external id.
// A vanished entry on update is reported as a conflict so it gets recreated.
func (c *Client) Submit(ctx context.Context, article *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
	payload, err := c.renderer.Render(article)
	if err != nil {
		return nil, registry.ClassifyRenderError(err)
	}

	key, err := c.key()
	if err != nil {
		return nil, err
	}

	header := http.Header{"Content-Type": {"application/json"}}
	if rec != nil && rec.ExternalID != "" {
		endpoint := c.articleURL(rec.ExternalID, key)
		_, err := c.transport.Expect(ctx, &httpclient.Request{
			Method: http.MethodPut,
			URL:    endpoint,
			Header: header,
			Body:   payload,
		})
		if err != nil {
			var regErr *registry.Error
			if errors.As(err, &regErr) && regErr.StatusCode == http.StatusNotFound {
				regErr.Kind = registry.KindConflict
				regErr.Message = "entry no longer exists"
			}
			return nil, err
		}
		return &registry.SubmitResult{ExternalID: rec.ExternalID}, nil
	}

	resp, err := c.transport.Expect(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/api/articles?api_key=%s", c.baseURL, url.QueryEscape(key)),
		Header: header,
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(resp.Body, "id").String()
	if id == "" {
		return nil, registry.NewError(registry.KindTransient, "create response carried no article id", nil)
	}

	slog.Debug("Article created", "target", c.name, "article_id", article.ID, "external_id", id)
	return &registry.SubmitResult{ExternalID: id, Message: gjson.GetBytes(resp.Body, "status").String()}, nil
}

// Delete removes the entry. A missing entry counts as deleted.
func (c *Client) Delete(ctx context.Context, _ *articles.Article, rec *status.SyncRecord) error {
	if rec == nil || rec.ExternalID == "" {
		return nil
	}

	key, err := c.key()
	if err != nil {
		return err
	}

	resp, err := c.transport.Call(ctx, &httpclient.Request{
		Method: http.MethodDelete,
		URL:    c.articleURL(rec.ExternalID, key),
	})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if regErr := registry.ClassifyResponse(resp, c.baseURL+"/api/articles/"+rec.ExternalID); regErr != nil {
		return regErr
	}
	return nil
}

func (c *Client) articleURL(id, key string) string {
	return fmt.Sprintf("%s/api/articles/%s?api_key=%s", c.baseURL, url.PathEscape(id), url.QueryEscape(key))
}
