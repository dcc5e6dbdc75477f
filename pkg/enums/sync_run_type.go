package enums

import "fmt"

// SyncRunType names one of the drift-correction jobs.
type SyncRunType string

const (
	SyncRunTypeExpirationCheck    SyncRunType = "expiration_check"
	SyncRunTypeFullReconciliation SyncRunType = "full_reconciliation"
	SyncRunTypeWebhookRecovery    SyncRunType = "webhook_recovery"
)

var validSyncRunTypes = []SyncRunType{
	SyncRunTypeExpirationCheck,
	SyncRunTypeFullReconciliation,
	SyncRunTypeWebhookRecovery,
}

// IsValid reports whether the value is known.
func (t SyncRunType) IsValid() bool {
	for _, candidate := range validSyncRunTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSyncRunType converts raw input into SyncRunType.
func ParseSyncRunType(value string) (SyncRunType, error) {
	for _, candidate := range validSyncRunTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync run type %q", value)
}
