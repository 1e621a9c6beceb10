package http

import "time"

const isoFormat = "2006-01-02T15:04:05-07:00"
const isoFormatMicro = "2006-01-02T15:04:05.000000-07:00"

type UploadResponse struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Filename  string `json:"filename"`
	ExpiresAt string `json:"expires_at"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewErrorResponse(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}

type UserResponse struct {
	ID            uint64     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	IsActive      bool       `json:"is_active"`
	IsStaff       bool       `json:"is_staff"`
	EmailVerified bool       `json:"email_verified"`
	DateJoined    time.Time  `json:"date_joined"`
	LastLogin     *time.Time `json:"last_login"`
}

type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
}

// ISOTime renders t with an explicit UTC offset. Microseconds are included
// only when non-zero.
func ISOTime(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoFormat)
	}
	return t.Format(isoFormatMicro)
}
