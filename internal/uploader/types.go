package uploader

import (
	"fmt"

	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

type Filter string

const (
	FilterAll      Filter = "all"
	FilterReady    Filter = "ready"
	FilterUploaded Filter = "uploaded"
	FilterFailed   Filter = "failed"
)

// ParseFilter accepts the filter names used by the API; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterReady, FilterUploaded, FilterFailed:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

func (f Filter) matches(s Status) bool {
	switch f {
	case FilterReady:
		return s == StatusPending
	case FilterUploaded:
		return s == StatusSuccess
	case FilterFailed:
		return s == StatusError
	default:
		return true
	}
}

// File is a local file offered to the session.
type File struct {
	Name string
	Type string
	Size int64
	// LastModified is in milliseconds since the epoch; it only feeds the
	// fingerprint.
	LastModified int64
	Data         []byte
}

// Item is a snapshot of one file's progress through the session.
type Item struct {
	LocalID       uuid.UUID `json:"local_id"`
	Fingerprint   string    `json:"fingerprint"`
	Name          string    `json:"name"`
	OriginalName  string    `json:"original_name"`
	Status        Status    `json:"status"`
	StatusLabel   string    `json:"status_label"`
	Progress      float64   `json:"progress"`
	BytesUploaded int64     `json:"bytes_uploaded"`
	BytesTotal    int64     `json:"bytes_total"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	Location      string    `json:"location,omitempty"`
	Error         string    `json:"error,omitempty"`
}

type Summary struct {
	TotalBytes     int64  `json:"total_bytes"`
	UploadedBytes  int64  `json:"uploaded_bytes"`
	TotalHuman     string `json:"total_human"`
	UploadedHuman  string `json:"uploaded_human"`
	CompletedFiles int    `json:"completed_files"`
	HasPending     bool   `json:"has_pending"`
	IsUploading    bool   `json:"is_uploading"`
}

// UploadReport counts the outcome of one UploadAll run.
type UploadReport struct {
	Uploaded int `json:"uploaded"`
	Failed   int `json:"failed"`
}
