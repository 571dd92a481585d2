package domain

// SyncResult reports one sync call's outcome. Partial failure is normal:
// Errors counts messages that could not be parsed or persisted.
type SyncResult struct {
	Synced  int  `json:"synced"`
	Errors  int  `json:"errors"`
	Pages   int  `json:"pages"`
	HasMore bool `json:"has_more"`
	// ContinuedInBackground is set when a detached continuation was launched.
	ContinuedInBackground bool `json:"continued_in_background,omitempty"`
}

// Add merges a page or chunk outcome into the running totals.
func (r *SyncResult) Add(other SyncResult) {
	r.Synced += other.Synced
	r.Errors += other.Errors
}

// AllUsersResult accumulates fan-out totals across users.
type AllUsersResult struct {
	TotalUsers  int `json:"total_users"`
	TotalSynced int `json:"total_synced"`
	TotalErrors int `json:"total_errors"`
}
