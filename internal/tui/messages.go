package tui

import "time"

// TickMsg triggers a refresh of the controller snapshot.
type TickMsg time.Time

// UploadDoneMsg carries the outcome of a bulk upload.
type UploadDoneMsg struct {
	Entries  int
	Response string
	Err      error
}

// ClearNoticeMsg clears the transient notice line.
type ClearNoticeMsg struct{}
