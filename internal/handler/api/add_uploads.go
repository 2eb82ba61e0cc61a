package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

const multipartMemory = 32 << 20

type AddUploadsResponse struct {
	Items  []uploader.Item `json:"items"`
	Errors []string        `json:"errors"`
}

// AddUploadsHandler accepts multipart "files" (optionally paired with
// "last_modified" values, in milliseconds) and queues them for preprocessing.
// Files larger than maxFileBytes are not read; validation rejects them.
func AddUploadsHandler(svc UploadSession, maxFileBytes, maxRequestBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
				WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large", err)
				return
			}
			WriteError(w, r, http.StatusBadRequest, "invalid multipart payload", err)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			WriteError(w, r, http.StatusBadRequest, "at least one file is required", nil)
			return
		}
		lastModified := r.MultipartForm.Value["last_modified"]

		files := make([]uploader.File, 0, len(headers))
		for i, fh := range headers {
			f, err := readFile(fh, maxFileBytes)
			if err != nil {
				WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("could not read %q", fh.Filename), err)
				return
			}
			if i < len(lastModified) {
				if ms, err := strconv.ParseInt(lastModified[i], 10, 64); err == nil {
					f.LastModified = ms
				}
			}
			files = append(files, f)
		}

		items, rejected := svc.AddFiles(r.Context(), files)
		resp := AddUploadsResponse{Items: items, Errors: make([]string, 0, len(rejected))}
		if resp.Items == nil {
			resp.Items = []uploader.Item{}
		}
		for _, err := range rejected {
			resp.Errors = append(resp.Errors, err.Error())
		}

		RespondJSON(w, http.StatusOK, resp)
		logger.Infof(r.Context(), "✅  Queued %d file(s), rejected %d", len(items), len(rejected))
	}
}

func readFile(fh *multipart.FileHeader, maxFileBytes int64) (uploader.File, error) {
	f := uploader.File{
		Name: fh.Filename,
		Type: fh.Header.Get("Content-Type"),
		Size: fh.Size,
	}
	if fh.Size > maxFileBytes {
		return f, nil
	}

	src, err := fh.Open()
	if err != nil {
		return f, err
	}
	defer src.Close()

	if f.Data, err = io.ReadAll(src); err != nil {
		return f, err
	}
	return f, nil
}
