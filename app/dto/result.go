package dto

import (
	"io"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/entity"
)

type RegisterResult struct {
	User              *entity.User
	VerificationToken string
	VerificationLink  string
}

type LoginResult struct {
	User         *entity.User
	SessionToken string
	Persistent   bool
	ExpiresAt    time.Time
}

type UploadResult struct {
	Code      string
	Filename  string
	Size      int64
	ExpiresAt time.Time
}

// DownloadResult owns Content; the caller must close it.
type DownloadResult struct {
	Name    string
	Size    int64
	Content io.ReadCloser
}
