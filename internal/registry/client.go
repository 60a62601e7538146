package registry

import (
	"context"

	"github.com/stacklok/biblio-sync/internal/articles"
	"github.com/stacklok/biblio-sync/internal/status"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client,Renderer

// Capabilities lists the optional operations a registry supports.
// The scheduler enables its identification and status-check steps from these flags.
type Capabilities struct {
	// Identify means existing entries can be searched for and adopted
	Identify bool `json:"identify"`

	// StatusCheck means submissions are processed asynchronously and their outcome
	// has to be polled
	StatusCheck bool `json:"statusCheck"`

	// Delete means entries can be removed
	Delete bool `json:"delete"`
}

// IdentifyResult is the outcome of a registry search
type IdentifyResult struct {
	// Found is true only when exactly one entry matched
	Found bool

	// ExternalID is the id of the matching entry when Found
	ExternalID string

	// Matches is the number of entries the search returned
	Matches int
}

// SubmitResult is the outcome of an accepted submission
type SubmitResult struct {
	// ExternalID is the registry identifier of the entry
	ExternalID string

	// Pending is true when the registry accepted the payload for asynchronous processing
	Pending bool

	// Message is an optional registry message
	Message string
}

// CheckOutcome is the processing state of an asynchronous submission
type CheckOutcome string

const (
	// CheckSucceeded means the registry processed the submission successfully
	CheckSucceeded CheckOutcome = "succeeded"

	// CheckFailed means the registry rejected the submission
	CheckFailed CheckOutcome = "failed"

	// CheckQueued means the submission has not been processed yet
	CheckQueued CheckOutcome = "queued"
)

// CheckResult is the result of polling an asynchronous submission
type CheckResult struct {
	Outcome    CheckOutcome
	ExternalID string
	Message    string
}

// Client performs calls against one registry. Every network call waits on the
// target's rate limiter first. Failures are returned as *Error.
type Client interface {
	// Name returns the target name
	Name() string

	// Capabilities returns the optional operations supported by the registry
	Capabilities() Capabilities

	// Identify searches the registry for an existing entry of the article
	Identify(ctx context.Context, article *articles.Article) (*IdentifyResult, error)

	// Submit creates the entry, or updates it when rec carries an external id
	Submit(ctx context.Context, article *articles.Article, rec *status.SyncRecord) (*SubmitResult, error)

	// CheckStatus polls the outcome of the last asynchronous submission
	CheckStatus(ctx context.Context, article *articles.Article, rec *status.SyncRecord) (*CheckResult, error)

	// Delete removes the entry identified by rec.ExternalID. A missing entry is not an error.
	Delete(ctx context.Context, article *articles.Article, rec *status.SyncRecord) error
}

// Renderer produces the registry-specific payload of an article.
// A missing mandatory field is reported as *RenderError.
type Renderer interface {
	Render(article *articles.Article) ([]byte, error)
}
