package models

// SyncStatus is the lifecycle state of a locally created inspection record.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
)

// InspectionRecord describes one field inspection captured on a device,
// awaiting transmission to the padron service. The ID is assigned on the
// client and is the sole key correlating the local record with its remote
// submission outcome.
type InspectionRecord struct {
	ID       string     `json:"id"`
	Location string     `json:"location"`
	Date     string     `json:"date"`
	Status   SyncStatus `json:"status"`
}

// SubmissionOutcome reports the result of a single remote submission attempt.
// Failures carry a reason so callers can distinguish outcomes without ever
// receiving a raw error object.
type SubmissionOutcome struct {
	RecordID string `json:"recordId"`
	Success  bool   `json:"success"`
	Reason   string `json:"reason,omitempty"`
}

// SyncSummary aggregates the outcomes of one sync run.
type SyncSummary struct {
	Attempted int                 `json:"attempted"`
	Synced    int                 `json:"synced"`
	Failed    int                 `json:"failed"`
	Outcomes  []SubmissionOutcome `json:"outcomes"`
}
