package enums

import "fmt"

// SyncRunStatus tracks a drift-correction run's lifecycle.
type SyncRunStatus string

const (
	SyncRunStatusProcessing SyncRunStatus = "processing"
	SyncRunStatusCompleted  SyncRunStatus = "completed"
	SyncRunStatusFailed     SyncRunStatus = "failed"
)

var validSyncRunStatuses = []SyncRunStatus{
	SyncRunStatusProcessing,
	SyncRunStatusCompleted,
	SyncRunStatusFailed,
}

// IsValid reports whether the value is known.
func (s SyncRunStatus) IsValid() bool {
	for _, candidate := range validSyncRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncRunStatus converts raw input into SyncRunStatus.
func ParseSyncRunStatus(value string) (SyncRunStatus, error) {
	for _, candidate := range validSyncRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync run status %q", value)
}
