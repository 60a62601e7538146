package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/onsi/gomega"

	"github.com/stacklok/biblio-sync/internal/api"
	syncapp "github.com/stacklok/biblio-sync/internal/app"
	"github.com/stacklok/biblio-sync/internal/config"
	"github.com/stacklok/biblio-sync/internal/status"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

// ServerTestHelper manages the service lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	adminToken string
	baseURL    string
	httpClient *http.Client
	app        *syncapp.App
	errCh      chan error
}

// NewServerTestHelper creates a helper for the service described by configPath
func NewServerTestHelper(ctx context.Context, configPath, adminToken string) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// StartServer loads the configuration and serves the admin API on a free local port
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := syncapp.NewApp(s.ctx, syncapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = app.Stop(time.Second)
		return err
	}

	s.app = app
	s.baseURL = "http://" + listener.Addr().String()
	s.errCh = make(chan error, 1)
	go func() {
		s.errCh <- app.Serve(listener)
	}()
	return nil
}

// StopServer gracefully stops the service
func (s *ServerTestHelper) StopServer() error {
	if s.app == nil {
		return nil
	}
	if err := s.app.Stop(5 * time.Second); err != nil {
		return err
	}
	return <-s.errCh
}

// WaitForServerReady waits for the readiness endpoint to succeed
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Do sends an admin API request, with the admin token when authorized is set
func (s *ServerTestHelper) Do(method, path string, authorized bool) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return nil, nil, err
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+s.adminToken)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	return resp, body, err
}

// TriggerUpdate runs one tick of target and returns the HTTP status and response
func (s *ServerTestHelper) TriggerUpdate(target string) (int, *api.TickResponse) {
	resp, body, err := s.Do(http.MethodPost, "/v1/targets/"+target+"/update", true)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	var tick api.TickResponse
	gomega.Expect(json.Unmarshal(body, &tick)).To(gomega.Succeed(), string(body))
	return resp.StatusCode, &tick
}

// MustUpdate runs one tick of target and expects it to complete
func (s *ServerTestHelper) MustUpdate(target string) *pkgsync.TickReport {
	code, tick := s.TriggerUpdate(target)
	gomega.Expect(code).To(gomega.Equal(http.StatusOK), tick.Error)
	gomega.Expect(tick.Report).NotTo(gomega.BeNil())
	return tick.Report
}

// GetRecord returns the sync record of an article
func (s *ServerTestHelper) GetRecord(target, articleID string) *status.SyncRecord {
	resp, body, err := s.Do(http.MethodGet, "/v1/targets/"+target+"/articles/"+url.PathEscape(articleID), false)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK), string(body))

	var rec status.SyncRecord
	gomega.Expect(json.Unmarshal(body, &rec)).To(gomega.Succeed())
	return &rec
}

// GetSummary returns the dashboard view of a target
func (s *ServerTestHelper) GetSummary(target string) *pkgsync.Summary {
	resp, body, err := s.Do(http.MethodGet, "/v1/targets/"+target, false)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK), string(body))

	var summary pkgsync.Summary
	gomega.Expect(json.Unmarshal(body, &summary)).To(gomega.Succeed())
	return &summary
}

// ArticleOperation runs an admin operation on one article
func (s *ServerTestHelper) ArticleOperation(method, target, articleID, operation string) (int, *api.OperationResponse) {
	path := "/v1/targets/" + target + "/articles/" + url.PathEscape(articleID)
	if operation != "" {
		path += "/" + operation
	}
	resp, body, err := s.Do(method, path, true)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	var op api.OperationResponse
	gomega.Expect(json.Unmarshal(body, &op)).To(gomega.Succeed(), string(body))
	return resp.StatusCode, &op
}
