package helpers

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// MockDOAJServer is an in-memory article index speaking the DOAJ article API
type MockDOAJServer struct {
	*httptest.Server

	mu         sync.Mutex
	apiKey     string
	articles   map[string][]byte
	searchHits map[string]string
	nextID     int

	Creates  int
	Updates  int
	Deletes  int
	Searches int
}

// NewMockDOAJServer starts an index that accepts apiKey
func NewMockDOAJServer(apiKey string) *MockDOAJServer {
	s := &MockDOAJServer{
		apiKey:     apiKey,
		articles:   make(map[string][]byte),
		searchHits: make(map[string]string),
	}

	r := chi.NewRouter()
	r.Get("/api/search/articles/{query}", s.search)
	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/api/articles", s.create)
		r.Put("/api/articles/{id}", s.update)
		r.Delete("/api/articles/{id}", s.delete)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// AddSearchHit makes query return a single hit with the given id
func (s *MockDOAJServer) AddSearchHit(query, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchHits[query] = id
	s.articles[id] = []byte(`{}`)
}

// Forget removes an entry behind the client's back
func (s *MockDOAJServer) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles, id)
}

// Article returns the stored document of an entry
func (s *MockDOAJServer) Article(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.articles[id]
	return doc, ok
}

// Stats returns the number of create, update, delete and search calls
func (s *MockDOAJServer) Stats() (creates, updates, deletes, searches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Creates, s.Updates, s.Deletes, s.Searches
}

func (s *MockDOAJServer) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != s.apiKey {
			http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *MockDOAJServer) search(w http.ResponseWriter, r *http.Request) {
	query, err := url.PathUnescape(chi.URLParam(r, "query"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.Searches++
	id, ok := s.searchHits[query]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		_, _ = io.WriteString(w, `{"total": 0, "results": []}`)
		return
	}
	_, _ = fmt.Fprintf(w, `{"total": 1, "results": [{"id": %q}]}`, id)
}

func (s *MockDOAJServer) create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.Creates++
	s.nextID++
	id := fmt.Sprintf("doaj-%d", s.nextID)
	s.articles[id] = body
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = fmt.Fprintf(w, `{"id": %q, "status": "created"}`, id)
}

func (s *MockDOAJServer) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}
	s.Updates++
	s.articles[id] = body
	w.WriteHeader(http.StatusNoContent)
}

func (s *MockDOAJServer) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
		return
	}
	s.Deletes++
	delete(s.articles, id)
	w.WriteHeader(http.StatusNoContent)
}

// DepositOutcome is the result the mock deposit system reports for a completed batch
type DepositOutcome string

const (
	// DepositQueued keeps batches unprocessed
	DepositQueued DepositOutcome = "queued"
	// DepositSucceeded completes batches successfully
	DepositSucceeded DepositOutcome = "success"
	// DepositFailed completes batches with a failure diagnostic
	DepositFailed DepositOutcome = "failure"
)

var doiPattern = regexp.MustCompile(`<doi>([^<]+)</doi>`)

// MockCrossrefServer accepts multipart deposits and serves batch diagnostics
type MockCrossrefServer struct {
	*httptest.Server

	mu       sync.Mutex
	username string
	password string
	deposits map[string]string
	outcome  DepositOutcome
	message  string
	checks   int
}

// NewMockCrossrefServer starts a deposit system accepting the given credentials
func NewMockCrossrefServer(username, password string) *MockCrossrefServer {
	s := &MockCrossrefServer{
		username: username,
		password: password,
		deposits: make(map[string]string),
		outcome:  DepositQueued,
	}

	r := chi.NewRouter()
	r.Post("/servlet/deposit", s.deposit)
	r.Get("/servlet/submissionDownload", s.result)
	s.Server = httptest.NewServer(r)
	return s
}

// DepositURL is the deposit endpoint of the mock
func (s *MockCrossrefServer) DepositURL() string {
	return s.URL + "/servlet/deposit"
}

// CheckURL is the submission result endpoint of the mock
func (s *MockCrossrefServer) CheckURL() string {
	return s.URL + "/servlet/submissionDownload"
}

// SetOutcome changes how batches are reported from now on
func (s *MockCrossrefServer) SetOutcome(outcome DepositOutcome, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
	s.message = message
}

// Deposits returns the uploaded deposit documents keyed by batch id
func (s *MockCrossrefServer) Deposits() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.deposits))
	for k, v := range s.deposits {
		out[k] = v
	}
	return out
}

// Checks returns the number of result downloads
func (s *MockCrossrefServer) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

func (s *MockCrossrefServer) deposit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.FormValue("operation") != "doMDUpload" {
		http.Error(w, "unknown operation", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if r.FormValue("login_id") != s.username || r.FormValue("login_passwd") != s.password {
		_, _ = io.WriteString(w, "<html><body><h2>Login Failed</h2></body></html>")
		return
	}

	file, header, err := r.FormFile("fname")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.deposits[strings.TrimSuffix(header.Filename, ".xml")] = string(content)
	s.mu.Unlock()

	_, _ = io.WriteString(w, "<html><body><h2>SUCCESS</h2><p>Your batch submission was successfully received.</p></body></html>")
}

func (s *MockCrossrefServer) result(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/xml")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++

	if q.Get("usr") != s.username || q.Get("pwd") != s.password {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	batchID := q.Get("doi_batch_id")
	deposit, ok := s.deposits[batchID]
	if !ok {
		_, _ = fmt.Fprintf(w, `<doi_batch_diagnostic status="unknown_submission"><batch_id>%s</batch_id></doi_batch_diagnostic>`, batchID)
		return
	}
	if s.outcome == DepositQueued {
		_, _ = fmt.Fprintf(w, `<doi_batch_diagnostic status="queued"><batch_id>%s</batch_id></doi_batch_diagnostic>`, batchID)
		return
	}

	doi := ""
	if m := doiPattern.FindStringSubmatch(deposit); m != nil {
		doi = m[1]
	}
	failures := 0
	if s.outcome == DepositFailed {
		failures = 1
	}
	_, _ = fmt.Fprintf(w, `<doi_batch_diagnostic status="completed" sp="cs3">
  <submission_id>1</submission_id>
  <batch_id>%s</batch_id>
  <record_diagnostic status="%s">
    <doi>%s</doi>
    <msg>%s</msg>
  </record_diagnostic>
  <batch_data>
    <record_count>1</record_count>
    <success_count>%d</success_count>
    <warning_count>0</warning_count>
    <failure_count>%d</failure_count>
  </batch_data>
</doi_batch_diagnostic>`, batchID, s.outcome, doi, s.message, 1-failures, failures)
}
