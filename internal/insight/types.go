package insight

import (
	"fmt"
	"time"

	"github.com/imvu-insight/datasync/internal/classify"
)

// Record is the list-friendly view of a stored upload. The server never
// returns file content through list or lookup endpoints.
type Record struct {
	ID          int64             `json:"id"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Type        classify.DataType `json:"type"`
	Filename    string            `json:"filename"`
	Hash        string            `json:"hash"`
	RecordCount int               `json:"record_count"`
	FileSize    int64             `json:"file_size"`
}

// RecordList is one page of upload records.
type RecordList struct {
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Items    []Record `json:"items"`
}

// ImportResult is returned after a successful import submission.
type ImportResult struct {
	ID            int64  `json:"id"`
	Filename      string `json:"filename"`
	ImportedCount *int   `json:"imported_count,omitempty"`
}

// User describes the authenticated account.
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error: status %d", e.StatusCode)
}

type byHashResponse struct {
	Exists bool    `json:"exists"`
	Record *Record `json:"record,omitempty"`
}

type loginRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

type loginResponse struct {
	Success bool       `json:"success"`
	User    *loginUser `json:"user,omitempty"`
}

type loginUser struct {
	User
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}
