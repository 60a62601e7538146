package status

import "time"

// RecordUpdate is a partial update of a SyncRecord. Nil fields are left untouched.
// A pointer to the empty string clears ExternalID or LastError, and a pointer to the
// zero time clears a timestamp.
type RecordUpdate struct {
	Status            *SyncStatus
	ExternalID        *string
	SubmitTimestamp   *time.Time
	IdentifyTimestamp *time.Time
	LastError         *string
}

// Update starts an empty RecordUpdate
func Update() RecordUpdate {
	return RecordUpdate{}
}

// WithStatus sets the status
func (u RecordUpdate) WithStatus(s SyncStatus) RecordUpdate {
	u.Status = &s
	return u
}

// WithExternalID sets the registry identifier, the empty string clears it
func (u RecordUpdate) WithExternalID(id string) RecordUpdate {
	u.ExternalID = &id
	return u
}

// WithSubmitTimestamp sets the submit timestamp, the zero time clears it
func (u RecordUpdate) WithSubmitTimestamp(t time.Time) RecordUpdate {
	u.SubmitTimestamp = &t
	return u
}

// WithIdentifyTimestamp sets the identify timestamp, the zero time clears it
func (u RecordUpdate) WithIdentifyTimestamp(t time.Time) RecordUpdate {
	u.IdentifyTimestamp = &t
	return u
}

// WithLastError sets the last error message, the empty string clears it
func (u RecordUpdate) WithLastError(msg string) RecordUpdate {
	u.LastError = &msg
	return u
}

// IsEmpty reports whether the update changes nothing
func (u RecordUpdate) IsEmpty() bool {
	return u.Status == nil && u.ExternalID == nil && u.SubmitTimestamp == nil &&
		u.IdentifyTimestamp == nil && u.LastError == nil
}

// Apply merges the update into rec. Moving to StatusSuccess always clears LastError.
func (u RecordUpdate) Apply(rec *SyncRecord) {
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.ExternalID != nil {
		rec.ExternalID = *u.ExternalID
	}
	if u.SubmitTimestamp != nil {
		rec.SubmitTimestamp = timeOrNil(*u.SubmitTimestamp)
	}
	if u.IdentifyTimestamp != nil {
		rec.IdentifyTimestamp = timeOrNil(*u.IdentifyTimestamp)
	}
	if u.LastError != nil {
		rec.LastError = *u.LastError
	}
	if rec.Status == "" {
		rec.Status = StatusUnsubmitted
	}
	if u.Status != nil && *u.Status == StatusSuccess {
		rec.LastError = ""
	}
}

// GlobalUpdate is a partial update of a GlobalState
type GlobalUpdate struct {
	LastUpdateTime        *time.Time
	LastModifiedCheckTime *time.Time
	LastGlobalError       *string

	// RewindModifiedCheck moves LastModifiedCheckTime back to the Unix epoch.
	// It takes precedence over LastModifiedCheckTime.
	RewindModifiedCheck bool
}

// Apply merges the update into g. LastModifiedCheckTime never moves backwards unless
// RewindModifiedCheck is set.
func (u GlobalUpdate) Apply(g *GlobalState) {
	if u.LastUpdateTime != nil {
		g.LastUpdateTime = timeOrNil(*u.LastUpdateTime)
	}
	if u.LastGlobalError != nil {
		g.LastGlobalError = *u.LastGlobalError
	}
	switch {
	case u.RewindModifiedCheck:
		g.LastModifiedCheckTime = time.Unix(0, 0).UTC()
	case u.LastModifiedCheckTime != nil && u.LastModifiedCheckTime.After(g.LastModifiedCheckTime):
		g.LastModifiedCheckTime = u.LastModifiedCheckTime.UTC()
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
