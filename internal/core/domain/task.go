package domain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskStatus is the lifecycle state of a SyncTask.
type TaskStatus int32

// Task states. Completed, Failed and Cancelled are terminal.
const (
	StatusPending TaskStatus = iota
	StatusRunning
	StatusPaused
	StatusStopping
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = map[TaskStatus]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusPaused:    "paused",
	StatusStopping:  "stopping",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusCancelled: "cancelled",
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// MarshalText encodes the status by name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTaskStatus converts a status name to a TaskStatus.
func ParseTaskStatus(name string) (TaskStatus, error) {
	for status, n := range statusNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown task status %q", ErrInvalidInput, name)
}

// MaxTaskLogs is the size of a task's log ring.
const MaxTaskLogs = 100

// speedSamples is the window used for the throughput estimate.
const (
	speedSamples  = 10
	speedInterval = time.Second
)

// LogEntry is one line of a task log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// PausedPosition records where a task was when it was paused.
// Resume restarts enumeration, so it is informational only.
type PausedPosition struct {
	CurrentFile  string  `json:"current_file"`
	FileProgress float64 `json:"file_progress"`
}

type speedSample struct {
	at    time.Time
	bytes int64
}

// SyncTask is a single execution of a source sync.
//
// Status changes are atomic and may be requested from any goroutine.
// Progress fields are written only by the worker executing the task;
// readers take a Snapshot.
type SyncTask struct {
	ID         string
	SourceName string

	status atomic.Int32

	mu             sync.RWMutex
	totalFiles     int
	syncedFiles    int
	failedFiles    int
	totalSize      int64
	syncedSize     int64
	currentFile    string
	fileProgress   float64
	started        time.Time
	updated        time.Time
	completed      time.Time
	errMsg         string
	logs           []LogEntry
	logStart       int
	pausedPosition *PausedPosition
	samples        []speedSample
}

// NewSyncTask creates a pending task for a source.
func NewSyncTask(id, sourceName string) *SyncTask {
	t := &SyncTask{
		ID:         id,
		SourceName: sourceName,
		updated:    time.Now(),
	}
	t.status.Store(int32(StatusPending))
	return t
}

// Status returns the current status.
func (t *SyncTask) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

// CompareAndSwapStatus moves the task from old to next if it is still in old.
func (t *SyncTask) CompareAndSwapStatus(old, next TaskStatus) bool {
	if !t.status.CompareAndSwap(int32(old), int32(next)) {
		return false
	}
	t.touch()
	return true
}

// TransitionFrom moves the task to next from any of the allowed states.
// It returns the state the task left, or false if the task was in none of them.
func (t *SyncTask) TransitionFrom(next TaskStatus, allowed ...TaskStatus) (TaskStatus, bool) {
	for {
		cur := t.Status()
		permitted := false
		for _, s := range allowed {
			if cur == s {
				permitted = true
				break
			}
		}
		if !permitted {
			return cur, false
		}
		if t.CompareAndSwapStatus(cur, next) {
			return cur, true
		}
	}
}

// Checkpoint reports whether the worker must yield.
// It returns ErrTaskCancelled after a stop request and ErrTaskPaused after a pause request.
func (t *SyncTask) Checkpoint() error {
	switch t.Status() {
	case StatusStopping, StatusCancelled:
		return ErrTaskCancelled
	case StatusPaused:
		return ErrTaskPaused
	default:
		return nil
	}
}

func (t *SyncTask) touch() {
	t.mu.Lock()
	t.updated = time.Now()
	t.mu.Unlock()
}

// MarkStarted records the first start time. Later runs keep it.
func (t *SyncTask) MarkStarted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if t.started.IsZero() {
		t.started = now
	}
	t.updated = now
}

// Begin resets the counters for a fresh enumeration.
func (t *SyncTask) Begin(totalFiles int, totalSize int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = totalFiles
	t.totalSize = totalSize
	t.syncedFiles = 0
	t.failedFiles = 0
	t.syncedSize = 0
	t.currentFile = ""
	t.fileProgress = 0
	t.samples = t.samples[:0]
	t.updated = time.Now()
}

// BeginEntry marks p as the entry being processed.
func (t *SyncTask) BeginEntry(p string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentFile = p
	t.fileProgress = 0
	t.updated = time.Now()
}

// EntrySynced counts a fetched entry. Its bytes were reported through Transferred.
func (t *SyncTask) EntrySynced() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncedFiles++
	t.fileProgress = 100
	t.updated = time.Now()
}

// EntrySkipped counts an entry that was already up to date.
func (t *SyncTask) EntrySkipped(size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncedFiles++
	t.syncedSize += size
	t.fileProgress = 100
	t.updated = time.Now()
}

// EntryFailed counts an entry whose fetch failed without aborting the task.
func (t *SyncTask) EntryFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedFiles++
	t.updated = time.Now()
}

// Transferred records n bytes written for the current entry.
func (t *SyncTask) Transferred(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.syncedSize += n
	t.updated = now
	if len(t.samples) == 0 || now.Sub(t.samples[len(t.samples)-1].at) >= speedInterval {
		if len(t.samples) == speedSamples {
			copy(t.samples, t.samples[1:])
			t.samples = t.samples[:speedSamples-1]
		}
		t.samples = append(t.samples, speedSample{at: now, bytes: t.syncedSize})
	}
}

// FileProgress records done of total bytes for the current entry.
// A non-positive total leaves the percentage untouched.
func (t *SyncTask) FileProgress(done, total int64) {
	if total <= 0 {
		return
	}
	pct := float64(done) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	t.fileProgress = pct
	t.mu.Unlock()
}

// RecordPausePosition stores the current entry and its progress.
func (t *SyncTask) RecordPausePosition() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pausedPosition = &PausedPosition{CurrentFile: t.currentFile, FileProgress: t.fileProgress}
}

// ClearPausePosition drops the stored pause position.
func (t *SyncTask) ClearPausePosition() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pausedPosition = nil
}

// Finish records the completion time and, for failures, the error message.
func (t *SyncTask) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.completed = now
	t.updated = now
	if err != nil {
		t.errMsg = err.Error()
	}
}

// AddLog appends a line to the task log, dropping the oldest beyond MaxTaskLogs.
func (t *SyncTask) AddLog(level, format string, args ...any) {
	entry := LogEntry{Time: time.Now(), Level: level, Message: fmt.Sprintf(format, args...)}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.logs) < MaxTaskLogs {
		t.logs = append(t.logs, entry)
		return
	}
	t.logs[t.logStart] = entry
	t.logStart = (t.logStart + 1) % MaxTaskLogs
}

// Logs returns the task log, oldest first.
func (t *SyncTask) Logs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]LogEntry, 0, len(t.logs))
	out = append(out, t.logs[t.logStart:]...)
	out = append(out, t.logs[:t.logStart]...)
	return out
}

// CompletedAt returns when the task reached a terminal state.
func (t *SyncTask) CompletedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed
}

// TaskSnapshot is a point-in-time copy of a task.
type TaskSnapshot struct {
	ID             string          `json:"task_id"`
	SourceName     string          `json:"source_name"`
	Status         TaskStatus      `json:"status"`
	Progress       float64         `json:"progress"`
	TotalFiles     int             `json:"total_files"`
	SyncedFiles    int             `json:"synced_files"`
	FailedFiles    int             `json:"failed_files"`
	TotalSize      int64           `json:"total_size"`
	SyncedSize     int64           `json:"synced_size"`
	CurrentFile    string          `json:"current_file"`
	FileProgress   float64         `json:"file_progress"`
	Speed          float64         `json:"speed"`
	ETA            float64         `json:"eta"`
	Started        time.Time       `json:"started"`
	Updated        time.Time       `json:"updated"`
	Completed      *time.Time      `json:"completed,omitempty"`
	Error          string          `json:"error,omitempty"`
	LogsCount      int             `json:"logs_count"`
	PausedPosition *PausedPosition `json:"paused_position,omitempty"`
}

// Snapshot returns a consistent copy of the task.
func (t *SyncTask) Snapshot() TaskSnapshot {
	status := t.Status()
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := TaskSnapshot{
		ID:           t.ID,
		SourceName:   t.SourceName,
		Status:       status,
		TotalFiles:   t.totalFiles,
		SyncedFiles:  t.syncedFiles,
		FailedFiles:  t.failedFiles,
		TotalSize:    t.totalSize,
		SyncedSize:   t.syncedSize,
		CurrentFile:  t.currentFile,
		FileProgress: t.fileProgress,
		Started:      t.started,
		Updated:      t.updated,
		Error:        t.errMsg,
		LogsCount:    len(t.logs),
	}
	if t.totalFiles > 0 {
		snap.Progress = float64(t.syncedFiles) / float64(t.totalFiles) * 100
	}
	if !t.completed.IsZero() {
		completed := t.completed
		snap.Completed = &completed
	}
	if t.pausedPosition != nil {
		pos := *t.pausedPosition
		snap.PausedPosition = &pos
	}
	if status == StatusRunning {
		snap.Speed = t.speedLocked(time.Now())
		if snap.Speed > 0 && t.totalSize > t.syncedSize {
			snap.ETA = float64(t.totalSize-t.syncedSize) / snap.Speed
		}
	}
	return snap
}

func (t *SyncTask) speedLocked(now time.Time) float64 {
	if len(t.samples) == 0 {
		return 0
	}
	oldest := t.samples[0]
	elapsed := now.Sub(oldest.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.syncedSize-oldest.bytes) / elapsed
}

// HistoryEntry builds the history record for a terminal task.
func (t *SyncTask) HistoryEntry() HistoryEntry {
	status := t.Status()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return HistoryEntry{
		TaskID:      t.ID,
		SourceName:  t.SourceName,
		Status:      status,
		Success:     status == StatusCompleted,
		Started:     t.started,
		Completed:   t.completed,
		SyncedFiles: t.syncedFiles,
		SyncedSize:  t.syncedSize,
		Error:       t.errMsg,
	}
}
