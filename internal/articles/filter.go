package articles

import (
	"slices"
	"time"

	"github.com/stacklok/biblio-sync/internal/status"
)

// Filter is a predicate over an article and its sync record for one target.
// Zero-valued fields do not constrain the result. All time comparisons are strict.
type Filter struct {
	// Statuses keeps records whose status is one of these
	Statuses []status.SyncStatus

	// ExcludeStatuses drops records whose status is one of these
	ExcludeStatuses []status.SyncStatus

	// SubmittedBefore keeps records submitted strictly before this instant
	SubmittedBefore *time.Time

	// SubmittedAfter keeps records submitted strictly after this instant
	SubmittedAfter *time.Time

	// ModifiedAfter keeps articles modified strictly after this instant
	ModifiedAfter *time.Time

	// Identified keeps records whose identify timestamp is set (true) or unset (false)
	Identified *bool

	// RequireDOI keeps only articles that already carry a DOI
	RequireDOI bool

	// Categories keeps articles belonging to any of these categories
	Categories []string
}

// Matches evaluates the filter. A nil record is treated as unsubmitted.
func (f Filter) Matches(a *Article, rec *status.SyncRecord) bool {
	if rec == nil {
		rec = status.NewSyncRecord(a.ID)
	}

	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, rec.Status) {
		return false
	}
	if slices.Contains(f.ExcludeStatuses, rec.Status) {
		return false
	}
	if f.SubmittedBefore != nil {
		if rec.SubmitTimestamp == nil || !rec.SubmitTimestamp.Before(*f.SubmittedBefore) {
			return false
		}
	}
	if f.SubmittedAfter != nil {
		if rec.SubmitTimestamp == nil || !rec.SubmitTimestamp.After(*f.SubmittedAfter) {
			return false
		}
	}
	if f.ModifiedAfter != nil && !a.ModifiedAt.After(*f.ModifiedAfter) {
		return false
	}
	if f.Identified != nil && (rec.IdentifyTimestamp != nil) != *f.Identified {
		return false
	}
	if f.RequireDOI && a.DOI == "" {
		return false
	}
	if len(f.Categories) > 0 && !a.InCategory(f.Categories) {
		return false
	}
	return true
}
