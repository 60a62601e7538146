// Package crossref implements the DOI registration agency integration.
// Deposits are processed asynchronously: a submission is accepted as pending
// and its outcome is fetched later by batch id.
package crossref

import (
	"bytes"
	"context"
	"encoding/xml"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"k8s.io/utils/clock"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/httpclient"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/status"
)

const (
	// DefaultDepositURL is the production deposit endpoint
	DefaultDepositURL = "https://doi.crossref.org/servlet/deposit"

	// DefaultCheckURL is the production submission result endpoint
	DefaultCheckURL = "https://doi.crossref.org/servlet/submissionDownload"
)

// Client talks to the deposit API
type Client struct {
	name       string
	depositURL string
	checkURL   string
	username   string
	password   func() (string, error)
	renderer   *Renderer
	transport  *registry.Transport
}

var _ registry.Client = (*Client)(nil)

// NewClient creates a client for the given target
func NewClient(target *config.TargetConfig, transport *registry.Transport, clk clock.PassiveClock) *Client {
	cfg := config.CrossrefConfig{}
	if target.Crossref != nil {
		cfg = *target.Crossref
	}

	depositURL := cfg.DepositURL
	if depositURL == "" {
		depositURL = DefaultDepositURL
	}
	checkURL := cfg.CheckURL
	if checkURL == "" {
		checkURL = DefaultCheckURL
	}

	return &Client{
		name:       target.Name,
		depositURL: depositURL,
		checkURL:   checkURL,
		username:   cfg.Username,
		password:   target.GetPassword,
		renderer:   NewRenderer(target.Journal, cfg, clk),
		transport:  transport,
	}
}

// Name returns the target name
func (c *Client) Name() string {
	return c.name
}

// Capabilities returns the operations supported by the deposit API
func (*Client) Capabilities() registry.Capabilities {
	return registry.Capabilities{StatusCheck: true}
}

// Renderer returns the deposit renderer
func (c *Client) Renderer() *Renderer {
	return c.renderer
}

// Identify is not offered by the deposit API
func (c *Client) Identify(_ context.Context, _ *articles.Article) (*registry.IdentifyResult, error) {
	return nil, registry.UnsupportedError(c.name, "identify")
}

// Delete is not offered: DOIs are permanent
func (c *Client) Delete(_ context.Context, _ *articles.Article, _ *status.SyncRecord) error {
	return registry.UnsupportedError(c.name, "delete")
}

func (c *Client) credentials() (string, string, error) {
	if c.username == "" {
		return "", "", registry.ConfigurationError("crossref.username is not configured for target %s", c.name)
	}
	password, err := c.password()
	if err != nil {
		return "", "", registry.NewError(registry.KindConfiguration, err.Error(), err)
	}
	return c.username, password, nil
}

// Submit uploads the deposit. The batch id is derived from rec.SubmitTimestamp,
// which the caller stamps before submitting.
func (c *Client) Submit(ctx context.Context, article *articles.Article, rec *status.SyncRecord) (*registry.SubmitResult, error) {
	if rec == nil || rec.SubmitTimestamp == nil {
		return nil, registry.NewError(registry.KindValidation, "submit timestamp must be set before depositing", nil)
	}

	payload, err := c.renderer.RenderDeposit(article, *rec.SubmitTimestamp)
	if err != nil {
		return nil, registry.ClassifyRenderError(err)
	}

	username, password, err := c.credentials()
	if err != nil {
		return nil, err
	}

	batchID := BatchID(article.ID, *rec.SubmitTimestamp)
	body, contentType, err := multipartDeposit(username, password, batchID, payload)
	if err != nil {
		return nil, registry.NewError(registry.KindRender, "failed to build deposit upload", err)
	}

	resp, err := c.transport.Expect(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    c.depositURL,
		Header: http.Header{"Content-Type": {contentType}, "Accept": {"text/html"}},
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	// the servlet answers 200 with an HTML page even for bad logins
	if strings.Contains(strings.ToLower(string(resp.Body)), "login failed") ||
		strings.Contains(strings.ToLower(string(resp.Body)), "authentication failed") {
		return nil, &registry.Error{Kind: registry.KindAuth, Message: "deposit login rejected", StatusCode: resp.StatusCode}
	}

	slog.Debug("Deposit accepted", "target", c.name, "article_id", article.ID, "batch_id", batchID)

	return &registry.SubmitResult{
		ExternalID: c.renderer.DOI(article),
		Pending:    true,
		Message:    "deposit queued as batch " + batchID,
	}, nil
}

func multipartDeposit(username, password, batchID string, payload []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"operation", "doMDUpload"},
		{"login_id", username},
		{"login_passwd", password},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	part, err := w.CreateFormFile("fname", batchID+".xml")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(payload); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type batchDiagnostic struct {
	XMLName   xml.Name           `xml:"doi_batch_diagnostic"`
	Status    string             `xml:"status,attr"`
	BatchID   string             `xml:"batch_id"`
	Records   []recordDiagnostic `xml:"record_diagnostic"`
	BatchData struct {
		RecordCount  int `xml:"record_count"`
		SuccessCount int `xml:"success_count"`
		WarningCount int `xml:"warning_count"`
		FailureCount int `xml:"failure_count"`
	} `xml:"batch_data"`
}

type recordDiagnostic struct {
	Status string `xml:"status,attr"`
	DOI    string `xml:"doi"`
	Msg    string `xml:"msg"`
}

// CheckStatus downloads the result of the deposit made at rec.SubmitTimestamp
func (c *Client) CheckStatus(ctx context.Context, article *articles.Article, rec *status.SyncRecord) (*registry.CheckResult, error) {
	if rec == nil || rec.SubmitTimestamp == nil {
		return nil, registry.NewError(registry.KindValidation, "article has no deposit to check", nil)
	}

	username, password, err := c.credentials()
	if err != nil {
		return nil, err
	}

	batchID := BatchID(article.ID, *rec.SubmitTimestamp)
	query := url.Values{}
	query.Set("usr", username)
	query.Set("pwd", password)
	query.Set("doi_batch_id", batchID)
	query.Set("type", "result")

	resp, err := c.transport.Expect(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    c.checkURL + "?" + query.Encode(),
		Header: http.Header{"Accept": {"application/xml"}},
	})
	if err != nil {
		return nil, err
	}

	var diag batchDiagnostic
	if err := xml.Unmarshal(resp.Body, &diag); err != nil {
		return nil, registry.NewError(registry.KindTransient, "unreadable submission result", err)
	}

	return interpretDiagnostic(&diag), nil
}

func interpretDiagnostic(diag *batchDiagnostic) *registry.CheckResult {
	if diag.Status != "completed" {
		return &registry.CheckResult{Outcome: registry.CheckQueued, Message: "batch " + diag.Status}
	}

	for _, r := range diag.Records {
		switch strings.ToLower(r.Status) {
		case "success", "warning":
			return &registry.CheckResult{Outcome: registry.CheckSucceeded, ExternalID: r.DOI, Message: strings.TrimSpace(r.Msg)}
		case "failure":
			return &registry.CheckResult{Outcome: registry.CheckFailed, ExternalID: r.DOI, Message: strings.TrimSpace(r.Msg)}
		}
	}

	if diag.BatchData.FailureCount > 0 {
		return &registry.CheckResult{Outcome: registry.CheckFailed, Message: "deposit failed"}
	}
	return &registry.CheckResult{Outcome: registry.CheckQueued, Message: "no record diagnostic yet"}
}
