package models

import "time"

// RetentionRecord tracks one completed download's scheduled cleanup
// per spec §3.
type RetentionRecord struct {
	TaskID             string
	FileName           string
	FileSize           int64
	DownloadedAt       time.Time
	ScheduledCleanupAt time.Time
	CleanedUp          bool
	CleanedUpAt        *time.Time
	ClientID           string
}
