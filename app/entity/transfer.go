package entity

import "time"

type FileTransfer struct {
	ID         uint64
	StorageKey string
	Name       string
	Size       int64
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether now lies strictly after the expiry timestamp.
func (t *FileTransfer) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
