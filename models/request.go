package models

import validation "github.com/go-ozzo/ozzo-validation/v4"

// SyncRequest is the payload for POST /api/v1/sync.
type SyncRequest struct {
	Credentials

	// LastKnownNoticeAt is the watermark: the timestamp of the newest notice
	// the caller already holds. Accepts the portal format "DD-MM-YYYY HH:MM"
	// or RFC 3339. Empty means every listed notice is new.
	LastKnownNoticeAt string `json:"lastKnownNoticeAt,omitempty"`
}

// Validate validates the embedded credentials.
func (r *SyncRequest) Validate() error {
	return validation.Validate(&r.Credentials)
}
