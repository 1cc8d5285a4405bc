package domain

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "IDLE"
	SyncStatusSyncing SyncStatus = "SYNCING"
	SyncStatusError   SyncStatus = "ERROR"
)

// String representation (for logging)
func (s SyncStatus) String() string {
	return string(s)
}
