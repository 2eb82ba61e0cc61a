package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/fhuszti/picsee-preprocessor/internal/api_context"
	"github.com/fhuszti/picsee-preprocessor/internal/mock"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

type part struct {
	name, ctype string
	data        []byte
}

func multipartBody(t *testing.T, parts []part, lastModified []string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		h.Set("Content-Type", p.ctype)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = w.Write(p.data)
	}
	for _, lm := range lastModified {
		_ = mw.WriteField("last_modified", lm)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func TestAddUploadsHandler(t *testing.T) {
	item := uploader.Item{LocalID: uuid.NewUUID(), Name: "cat.png", Status: uploader.StatusProcessing}
	svc := &mock.UploadSession{
		AddOut:      []uploader.Item{item},
		AddRejected: []error{errors.New(`"big.png" exceeds the 30 MB size limit.`)},
	}
	h := AddUploadsHandler(svc, 8, 1<<20)

	body, ctype := multipartBody(t, []part{
		{name: "cat.png", ctype: "image/png", data: []byte("png")},
		{name: "big.png", ctype: "image/png", data: []byte("0123456789")},
	}, []string{"1700000000000", "oops"})

	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (%s)", rec.Code, rec.Body.String())
	}
	var resp AddUploadsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].LocalID != item.LocalID {
		t.Errorf("items = %+v", resp.Items)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "size limit") {
		t.Errorf("errors = %v", resp.Errors)
	}

	if len(svc.AddedFiles) != 2 {
		t.Fatalf("service got %d files", len(svc.AddedFiles))
	}
	small, big := svc.AddedFiles[0], svc.AddedFiles[1]
	if small.Name != "cat.png" || small.Type != "image/png" || string(small.Data) != "png" || small.LastModified != 1700000000000 {
		t.Errorf("unexpected first file %+v", small)
	}
	if big.Size != 10 || big.Data != nil || big.LastModified != 0 {
		t.Errorf("oversized file should be passed without data: %+v", big)
	}
}

func TestAddUploadsHandler_BadRequests(t *testing.T) {
	svc := &mock.UploadSession{}
	h := AddUploadsHandler(svc, 1<<20, 64)

	t.Run("not multipart", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader("{}")))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
	})

	t.Run("no files", func(t *testing.T) {
		body, ctype := multipartBody(t, nil, []string{"1"})
		req := httptest.NewRequest(http.MethodPost, "/uploads", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "at least one file") {
			t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("body too large", func(t *testing.T) {
		body, ctype := multipartBody(t, []part{{name: "a.png", ctype: "image/png", data: bytes.Repeat([]byte("x"), 512)}}, nil)
		req := httptest.NewRequest(http.MethodPost, "/uploads", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d; want 413", rec.Code)
		}
	})
}

func TestListUploadsHandler(t *testing.T) {
	svc := &mock.UploadSession{
		ItemsOut:   []uploader.Item{{Name: "cat.webp", Status: uploader.StatusPending}},
		CountsOut:  map[uploader.Filter]int{uploader.FilterAll: 1, uploader.FilterReady: 1},
		SummaryOut: uploader.Summary{TotalBytes: 2048, TotalHuman: "2.0 KB", HasPending: true},
	}
	h := ListUploadsHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/uploads?filter=ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.Filter != uploader.FilterReady {
		t.Errorf("filter = %q", svc.Filter)
	}
	var resp ListUploadsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Counts[uploader.FilterReady] != 1 || resp.Summary.TotalHuman != "2.0 KB" {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/uploads?filter=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestDeleteUploadHandler(t *testing.T) {
	validID := uuid.NewUUID()
	tests := []struct {
		name       string
		ctxID      *uuid.UUID
		svcErr     error
		wantStatus int
		wantBody   string
	}{
		{name: "missing id", wantStatus: http.StatusBadRequest, wantBody: "ID is required"},
		{name: "not found", ctxID: &validID, svcErr: uploader.ErrItemNotFound, wantStatus: http.StatusNotFound, wantBody: "Upload not found"},
		{name: "service error", ctxID: &validID, svcErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantBody: "Failed to remove upload"},
		{name: "happy path", ctxID: &validID, wantStatus: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mock.UploadSession{RemoveErr: tc.svcErr}
			h := DeleteUploadHandler(svc)

			req := httptest.NewRequest(http.MethodDelete, "/uploads/"+validID.String(), nil)
			if tc.ctxID != nil {
				req = req.WithContext(api_context.WithID(req.Context(), *tc.ctxID))
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("body = %q; want substring %q", rec.Body.String(), tc.wantBody)
			}
			if tc.wantStatus == http.StatusNoContent && svc.RemovedID != validID {
				t.Errorf("service got ID = %s; want %s", svc.RemovedID, validID)
			}
		})
	}
}

func TestUploadAllHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "ok", wantStatus: http.StatusOK},
		{name: "already running", err: uploader.ErrUploadInProgress, wantStatus: http.StatusConflict},
		{name: "closed", err: uploader.ErrSessionClosed, wantStatus: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mock.UploadSession{UploadErr: tc.err, ReportOut: uploader.UploadReport{Uploaded: 2, Failed: 1}}
			rec := httptest.NewRecorder()
			UploadAllHandler(svc)(rec, httptest.NewRequest(http.MethodPost, "/uploads/upload_all", nil))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", rec.Code, tc.wantStatus)
			}
			if tc.err == nil {
				var resp UploadAllResponse
				_ = json.NewDecoder(rec.Body).Decode(&resp)
				if resp.Report.Uploaded != 2 || resp.Report.Failed != 1 {
					t.Errorf("unexpected report %+v", resp.Report)
				}
			}
		})
	}
}
