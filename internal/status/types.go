// Package status defines the per-article synchronization state kept for every sync target.
package status

import "time"

// SyncStatus represents where an article stands with respect to one registry
type SyncStatus string

const (
	// StatusUnsubmitted means the article has never been sent to the registry
	StatusUnsubmitted SyncStatus = "unsubmitted"

	// StatusPending means a submission was dispatched and its outcome is not yet known
	StatusPending SyncStatus = "pending"

	// StatusSuccess means the registry accepted the latest submission
	StatusSuccess SyncStatus = "success"

	// StatusError means the latest submission failed and may be retried
	StatusError SyncStatus = "error"

	// StatusModified means the article changed locally after its last submission
	StatusModified SyncStatus = "modified"

	// StatusNotPossible means the article cannot be submitted until someone changes it
	StatusNotPossible SyncStatus = "not_possible"
)

// AllStatuses lists every known status in lifecycle order
var AllStatuses = []SyncStatus{
	StatusUnsubmitted,
	StatusPending,
	StatusSuccess,
	StatusError,
	StatusModified,
	StatusNotPossible,
}

// ParseSyncStatus converts a stored string into a SyncStatus.
// Empty and unknown values map to StatusUnsubmitted.
func ParseSyncStatus(s string) SyncStatus {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st
		}
	}
	return StatusUnsubmitted
}

// SyncRecord is the persisted synchronization state of one article for one registry
type SyncRecord struct {
	// ArticleID identifies the article in the CMS
	ArticleID string `json:"articleId" yaml:"articleId"`

	// Status is the current state machine position
	Status SyncStatus `json:"status" yaml:"status"`

	// ExternalID is the identifier assigned by the registry once accepted
	ExternalID string `json:"externalId,omitempty" yaml:"externalId,omitempty"`

	// SubmitTimestamp is the time of the last submit attempt
	SubmitTimestamp *time.Time `json:"submitTimestamp,omitempty" yaml:"submitTimestamp,omitempty"`

	// IdentifyTimestamp is the time of the last identification attempt
	IdentifyTimestamp *time.Time `json:"identifyTimestamp,omitempty" yaml:"identifyTimestamp,omitempty"`

	// LastError is a human readable description of the last failure
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// NewSyncRecord returns the record of an article that was never evaluated
func NewSyncRecord(articleID string) *SyncRecord {
	return &SyncRecord{
		ArticleID: articleID,
		Status:    StatusUnsubmitted,
	}
}

// Clone returns a deep copy of the record
func (r *SyncRecord) Clone() *SyncRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.SubmitTimestamp = cloneTime(r.SubmitTimestamp)
	c.IdentifyTimestamp = cloneTime(r.IdentifyTimestamp)
	return &c
}

// IsZero reports whether the record carries no information beyond its article id
func (r *SyncRecord) IsZero() bool {
	return (r.Status == "" || r.Status == StatusUnsubmitted) &&
		r.ExternalID == "" &&
		r.SubmitTimestamp == nil &&
		r.IdentifyTimestamp == nil &&
		r.LastError == ""
}

// Reset clears the record, optionally keeping the registry identifier
func (r *SyncRecord) Reset(keepExternalID bool) {
	externalID := r.ExternalID
	*r = SyncRecord{ArticleID: r.ArticleID, Status: StatusUnsubmitted}
	if keepExternalID {
		r.ExternalID = externalID
	}
}

// GlobalState is the per-target synchronization metadata
type GlobalState struct {
	// LastUpdateTime is the start time of the most recent tick
	LastUpdateTime *time.Time `json:"lastUpdateTime,omitempty" yaml:"lastUpdateTime,omitempty"`

	// LastModifiedCheckTime is the high-water mark of modification detection
	LastModifiedCheckTime time.Time `json:"lastModifiedCheckTime" yaml:"lastModifiedCheckTime"`

	// LastGlobalError is the last operator-actionable failure, empty when healthy
	LastGlobalError string `json:"lastGlobalError,omitempty" yaml:"lastGlobalError,omitempty"`
}

// Clone returns a deep copy of the global state
func (g *GlobalState) Clone() *GlobalState {
	if g == nil {
		return nil
	}
	c := *g
	c.LastUpdateTime = cloneTime(g.LastUpdateTime)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
