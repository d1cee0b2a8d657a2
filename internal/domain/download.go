package domain

import "time"

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// DefaultContentType is used when neither the response nor the file name says otherwise.
const DefaultContentType = "application/octet-stream"

// IsTerminal reports whether no further transitions can happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces pending -> downloading -> completed|failed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusDownloading
	case StatusDownloading:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Download is one submitted URL-to-storage transfer and its tracked state.
type Download struct {
	ID             string    `json:"-" db:"id"`
	DownloadID     string    `json:"downloadId" db:"download_id"`
	SourceURL      string    `json:"originalUrl" db:"original_url"`
	FileName       string    `json:"fileName" db:"file_name"`
	FileSize       int64     `json:"fileSize" db:"file_size"`
	ContentType    string    `json:"mimeType" db:"mime_type"`
	StorageKey     string    `json:"storageKey" db:"storage_key"`
	StorageLocator string    `json:"storageUrl" db:"storage_url"`
	Status         Status    `json:"status" db:"status"`
	Progress       int       `json:"progress" db:"progress"`
	Error          string    `json:"error,omitempty" db:"error"`
	DownloadCount  int64     `json:"downloadCount" db:"download_count"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Clone returns a copy safe to hand out to readers.
func (d *Download) Clone() *Download {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// DownloadUpdate is a partial update; nil fields are left untouched.
type DownloadUpdate struct {
	Status         *Status
	Progress       *int
	FileSize       *int64
	ContentType    *string
	StorageLocator *string
	Error          *string
}

// IsEmpty reports whether the update sets nothing.
func (u DownloadUpdate) IsEmpty() bool {
	return u.Status == nil && u.Progress == nil && u.FileSize == nil &&
		u.ContentType == nil && u.StorageLocator == nil && u.Error == nil
}

// Apply writes the set fields onto d.
func (u DownloadUpdate) Apply(d *Download) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.Progress != nil {
		d.Progress = *u.Progress
	}
	if u.FileSize != nil {
		d.FileSize = *u.FileSize
	}
	if u.ContentType != nil {
		d.ContentType = *u.ContentType
	}
	if u.StorageLocator != nil {
		d.StorageLocator = *u.StorageLocator
	}
	if u.Error != nil {
		d.Error = *u.Error
	}
}

// CounterField names a column that may be incremented atomically.
type CounterField string

const CounterDownloadCount CounterField = "download_count"

// Match is the condition a conditional update requires. Empty fields match anything.
type Match struct {
	Status Status
}

// Matches reports whether d satisfies m.
func (m Match) Matches(d *Download) bool {
	if m.Status != "" && d.Status != m.Status {
		return false
	}
	return true
}

// DownloadView is the status response for a single download.
type DownloadView struct {
	DownloadID     string    `json:"downloadId"`
	SourceURL      string    `json:"originalUrl"`
	FileName       string    `json:"fileName"`
	FileSize       int64     `json:"fileSize"`
	ContentType    string    `json:"mimeType"`
	StorageKey     string    `json:"storageKey"`
	StorageLocator string    `json:"storageUrl"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	Error          string    `json:"error,omitempty"`
	DownloadCount  int64     `json:"downloadCount"`
	DownloadURL    *string   `json:"downloadUrl"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewDownloadView builds a view of d with the given signed link (nil when unavailable).
func NewDownloadView(d *Download, downloadURL *string) *DownloadView {
	return &DownloadView{
		DownloadID:     d.DownloadID,
		SourceURL:      d.SourceURL,
		FileName:       d.FileName,
		FileSize:       d.FileSize,
		ContentType:    d.ContentType,
		StorageKey:     d.StorageKey,
		StorageLocator: d.StorageLocator,
		Status:         d.Status,
		Progress:       d.Progress,
		Error:          d.Error,
		DownloadCount:  d.DownloadCount,
		DownloadURL:    downloadURL,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// ConfirmResult is returned when a user is about to download a completed file.
type ConfirmResult struct {
	DownloadURL   string `json:"downloadUrl"`
	DownloadCount int64  `json:"downloadCount"`
}

// StatusPtr, IntPtr etc. keep update literals short.
func StatusPtr(s Status) *Status { return &s }

func IntPtr(v int) *int { return &v }

func Int64Ptr(v int64) *int64 { return &v }

func StringPtr(v string) *string { return &v }
