package uploader

import (
	"fmt"
	"strings"
)

const DefaultMaxFileBytes = 30 * 1024 * 1024

var (
	acceptedMimeTypes  = map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true}
	acceptedExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true}
)

// ValidationError rejects a file before it reaches the preprocessor.
type ValidationError struct {
	Name    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Fingerprint identifies a file across batches without hashing its content.
func Fingerprint(f File) string {
	return fmt.Sprintf("%s__%d__%d__%s", strings.ToLower(f.Name), f.Size, f.LastModified, strings.ToLower(f.Type))
}

// IsTypeAllowed accepts a file by MIME type, or by extension when the type
// is missing or generic.
func IsTypeAllowed(f File) bool {
	if acceptedMimeTypes[strings.ToLower(f.Type)] {
		return true
	}
	ext := f.Name
	if i := strings.LastIndex(f.Name, "."); i >= 0 {
		ext = f.Name[i+1:]
	}
	return acceptedExtensions[strings.ToLower(ext)]
}

func unsupportedType(name string) *ValidationError {
	return &ValidationError{Name: name, Message: fmt.Sprintf("%q is not a supported image type.", name)}
}

func tooLarge(name string, limit int64) *ValidationError {
	return &ValidationError{Name: name, Message: fmt.Sprintf("%q exceeds the %d MB size limit.", name, limit/(1024*1024))}
}

func alreadyUploaded(name, location string) *ValidationError {
	if location == "" {
		return &ValidationError{Name: name, Message: fmt.Sprintf("%q was already uploaded earlier.", name)}
	}
	return &ValidationError{Name: name, Message: fmt.Sprintf("%q was already uploaded earlier (%s).", name, location)}
}

func alreadyQueued(name string) *ValidationError {
	return &ValidationError{Name: name, Message: fmt.Sprintf("%q is already in your current queue.", name)}
}
