package model

import "time"

// Draft is a saved-but-unsubmitted form state, owned by the subject who
// created it. Drafts expire; a submitted form's draft is deleted.
type Draft struct {
	ID        string    `json:"id"`
	Entity    string    `json:"entity"`
	SubjectID string    `json:"-"`
	RecordID  string    `json:"record_id,omitempty"`
	Form      FormModel `json:"form"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
