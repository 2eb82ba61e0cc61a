// Package uploader keeps one user's batch of images: it validates incoming
// files, runs them through the preprocessor and uploads the results.
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fhuszti/picsee-preprocessor/internal/api_context"
	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

var (
	ErrItemNotFound      = errors.New("upload item not found")
	ErrUploadInProgress  = errors.New("an upload is already running")
	ErrSessionClosed     = errors.New("upload session is closed")
	defaultLocationTTL   = 7 * 24 * time.Hour
	defaultUploadWorkers = 3
)

// Preprocessor is the part of *preprocess.Pool the session relies on.
type Preprocessor interface {
	Submit(in preprocess.Input) *preprocess.Future
	Terminate()
}

type Options struct {
	MaxFileBytes int64
	// LocationTTL is the lifetime of the download link recorded for an
	// uploaded file.
	LocationTTL   time.Duration
	UploadWorkers int
}

// entry is the mutable state behind an Item. Guarded by Session.mu.
type entry struct {
	Item
	output     []byte
	outputType string
}

type Session struct {
	pre   Preprocessor
	store port.Storage
	index port.UploadIndex
	opts  Options

	mu        sync.Mutex
	order     []uuid.UUID
	entries   map[uuid.UUID]*entry
	uploaded  map[string]string
	uploading bool
	closed    bool

	wg sync.WaitGroup
}

func NewSession(pre Preprocessor, store port.Storage, index port.UploadIndex, opts Options) *Session {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.LocationTTL <= 0 {
		opts.LocationTTL = defaultLocationTTL
	}
	if opts.UploadWorkers <= 0 {
		opts.UploadWorkers = defaultUploadWorkers
	}
	return &Session{
		pre:      pre,
		store:    store,
		index:    index,
		opts:     opts,
		entries:  make(map[uuid.UUID]*entry),
		uploaded: make(map[string]string),
	}
}

// AddFiles validates files in order and queues every accepted one for
// preprocessing. Rejections are returned as *ValidationError values.
func (s *Session) AddFiles(ctx context.Context, files []File) ([]Item, []error) {
	var (
		added    []Item
		rejected []error
	)

	for _, f := range files {
		if f.Size == 0 {
			f.Size = int64(len(f.Data))
		}
		if verr := s.validate(ctx, f); verr != nil {
			logger.Infof(ctx, "rejected %q: %s", f.Name, verr.Message)
			rejected = append(rejected, verr)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			rejected = append(rejected, ErrSessionClosed)
			continue
		}
		// Re-check under the lock: another request may have queued it meanwhile.
		fp := Fingerprint(f)
		if s.queuedLocked(fp) {
			s.mu.Unlock()
			rejected = append(rejected, alreadyQueued(f.Name))
			continue
		}
		e := &entry{Item: Item{
			LocalID:      uuid.NewUUID(),
			Fingerprint:  fp,
			Name:         f.Name,
			OriginalName: f.Name,
			Status:       StatusProcessing,
		}}
		s.entries[e.LocalID] = e
		s.order = append(s.order, e.LocalID)
		added = append(added, e.snapshot())
		s.wg.Add(1)
		s.mu.Unlock()

		fut := s.pre.Submit(preprocess.Input{Data: f.Data, Name: f.Name, Type: f.Type})
		logger.Debugf(api_context.WithTaskID(api_context.WithID(ctx, e.LocalID), fut.ID()), "queued %q for preprocessing", f.Name)
		go s.await(e.LocalID, fut)
	}
	return added, rejected
}

func (s *Session) validate(ctx context.Context, f File) *ValidationError {
	if !IsTypeAllowed(f) {
		return unsupportedType(f.Name)
	}
	if f.Size > s.opts.MaxFileBytes {
		return tooLarge(f.Name, s.opts.MaxFileBytes)
	}

	fp := Fingerprint(f)
	s.mu.Lock()
	loc, seen := s.uploaded[fp]
	queued := s.queuedLocked(fp)
	s.mu.Unlock()

	if !seen {
		var err error
		loc, seen, err = s.index.Lookup(ctx, fp)
		if err != nil {
			logger.Warnf(ctx, "upload index lookup failed for %q: %v", f.Name, err)
		}
	}
	if seen {
		return alreadyUploaded(f.Name, loc)
	}
	if queued {
		return alreadyQueued(f.Name)
	}
	return nil
}

func (s *Session) queuedLocked(fp string) bool {
	for _, e := range s.entries {
		if e.Fingerprint == fp {
			return true
		}
	}
	return false
}

// await records the preprocessing outcome. Results for removed items are
// dropped.
func (s *Session) await(id uuid.UUID, fut *preprocess.Future) {
	defer s.wg.Done()

	res, err := fut.Wait(context.Background())
	ctx := api_context.WithTaskID(api_context.WithID(context.Background(), id), fut.ID())

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		logger.Debug(ctx, "discarding preprocessing result of a removed item")
		return
	}
	if err != nil {
		e.Status = StatusError
		e.Error = "Processing error: " + err.Error()
		logger.Warnf(ctx, "preprocessing %q failed: %v", e.OriginalName, err)
		return
	}

	e.Name = res.Name
	e.Status = StatusPending
	e.Error = ""
	e.Width = res.Width
	e.Height = res.Height
	e.BytesUploaded = 0
	e.BytesTotal = res.ProcessedSize
	e.output = res.Data
	e.outputType = res.Type
	logger.Infof(ctx, "%q ready for upload (%dx%d, %s -> %s)", e.Name, res.Width, res.Height, BytesToHuman(res.OriginalSize), BytesToHuman(res.ProcessedSize))
}

// Remove drops an item. Removing an uploaded item also forgets its
// fingerprint so the same file can be added again.
func (s *Session) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return ErrItemNotFound
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	wasUploaded := e.Status == StatusSuccess
	if wasUploaded {
		delete(s.uploaded, e.Fingerprint)
	}
	s.mu.Unlock()

	if wasUploaded {
		if err := s.index.Forget(ctx, e.Fingerprint); err != nil {
			logger.Warnf(ctx, "could not forget %q in upload index: %v", e.Name, err)
		}
	}
	logger.Infof(api_context.WithID(ctx, id), "removed %q", e.Name)
	return nil
}

type uploadJob struct {
	id     uuid.UUID
	key    string
	name   string
	fp     string
	data   []byte
	ctype  string
	length int64
}

// UploadAll sends every item that is ready, or whose previous upload failed,
// to storage. Only one run may be active at a time.
func (s *Session) UploadAll(ctx context.Context) (UploadReport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return UploadReport{}, ErrSessionClosed
	}
	if s.uploading {
		s.mu.Unlock()
		return UploadReport{}, ErrUploadInProgress
	}
	s.uploading = true

	var jobs []uploadJob
	for _, id := range s.order {
		e := s.entries[id]
		if e.output == nil || (e.Status != StatusPending && e.Status != StatusError) {
			continue
		}
		e.Status = StatusUploading
		e.Error = ""
		e.Progress = 0
		e.BytesUploaded = 0
		jobs = append(jobs, uploadJob{
			id:     id,
			key:    fmt.Sprintf("%s/%s", id, e.Name),
			name:   e.Name,
			fp:     e.Fingerprint,
			data:   e.output,
			ctype:  e.outputType,
			length: int64(len(e.output)),
		})
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
	}()

	logger.Infof(ctx, "uploading %d file(s)...", len(jobs))

	var (
		reportMu sync.Mutex
		report   UploadReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.UploadWorkers)
	for _, job := range jobs {
		g.Go(func() error {
			err := s.upload(gctx, job)
			reportMu.Lock()
			if err != nil {
				report.Failed++
			} else {
				report.Uploaded++
			}
			reportMu.Unlock()
			// one failed file must not cancel the others
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

func (s *Session) upload(ctx context.Context, job uploadJob) error {
	ctx = api_context.WithID(ctx, job.id)

	err := s.store.SaveFile(ctx, job.key, bytes.NewReader(job.data), job.length, port.SaveOptions{
		ContentType: job.ctype,
		Progress: func(sent int64) {
			s.progress(job.id, sent, job.length)
		},
	})
	if err != nil {
		logger.Warnf(ctx, "upload of %q failed: %v", job.name, err)
		s.mu.Lock()
		if e, ok := s.entries[job.id]; ok {
			e.Status = StatusError
			e.Error = err.Error()
			if e.Error == "" {
				e.Error = "Upload failed"
			}
		}
		s.mu.Unlock()
		return err
	}

	loc, err := s.store.PresignedDownloadURL(ctx, job.key, s.opts.LocationTTL)
	if err != nil {
		logger.Warnf(ctx, "no download link for %q: %v", job.name, err)
		loc = ""
	}

	s.mu.Lock()
	e, ok := s.entries[job.id]
	if ok {
		e.Status = StatusSuccess
		e.Progress = 100
		e.BytesUploaded = e.BytesTotal
		e.Location = loc
		e.output = nil
		s.uploaded[job.fp] = loc
	}
	s.mu.Unlock()

	if ok {
		if err := s.index.Remember(ctx, job.fp, loc); err != nil {
			logger.Warnf(ctx, "could not record %q in upload index: %v", job.name, err)
		}
	}
	logger.Infof(ctx, "uploaded %q", job.name)
	return nil
}

func (s *Session) progress(id uuid.UUID, sent, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.Status != StatusUploading {
		return
	}
	e.BytesUploaded = sent
	if total > 0 {
		e.BytesTotal = total
		e.Progress = min(float64(sent)/float64(total)*100, 100)
	}
}

// Items returns the items matching filter, in the order they were added.
func (s *Session) Items(filter Filter) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		if filter.matches(e.Status) {
			out = append(out, e.snapshot())
		}
	}
	return out
}

// Item returns a single item.
func (s *Session) Item(id uuid.UUID) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return e.snapshot(), nil
}

// Counts returns how many items each filter would show.
func (s *Session) Counts() map[Filter]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[Filter]int, 4)
	for _, e := range s.entries {
		for _, f := range []Filter{FilterAll, FilterReady, FilterUploaded, FilterFailed} {
			if f.matches(e.Status) {
				counts[f]++
			}
		}
	}
	return counts
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum Summary
	for _, e := range s.entries {
		sum.TotalBytes += e.BytesTotal
		if e.Status == StatusSuccess {
			sum.UploadedBytes += e.BytesTotal
			sum.CompletedFiles++
		} else {
			sum.UploadedBytes += e.BytesUploaded
		}
		if e.Status == StatusPending || e.Status == StatusError {
			sum.HasPending = true
		}
	}
	sum.IsUploading = s.uploading
	sum.TotalHuman = BytesToHuman(sum.TotalBytes)
	sum.UploadedHuman = BytesToHuman(sum.UploadedBytes)
	return sum
}

// Close terminates the preprocessor and waits until every pending result has
// been accounted for. Calling it more than once is harmless.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pre.Terminate()
	s.wg.Wait()
}

func (e *entry) snapshot() Item {
	it := e.Item
	it.StatusLabel = StatusLabel(it.Status)
	return it
}
