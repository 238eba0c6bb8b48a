package domain

import "time"

// HistoryEntry records the outcome of a task that reached a terminal state.
type HistoryEntry struct {
	TaskID      string     `json:"task_id"`
	SourceName  string     `json:"source_name"`
	Status      TaskStatus `json:"status"`
	Success     bool       `json:"success"`
	Started     time.Time  `json:"started"`
	Completed   time.Time  `json:"completed"`
	SyncedFiles int        `json:"synced_files"`
	SyncedSize  int64      `json:"synced_size"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the task ran.
func (h HistoryEntry) Duration() time.Duration {
	if h.Started.IsZero() || h.Completed.IsZero() {
		return 0
	}
	return h.Completed.Sub(h.Started)
}
