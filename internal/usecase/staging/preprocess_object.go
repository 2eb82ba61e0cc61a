package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/fhuszti/picsee-preprocessor/internal/logger"
	"github.com/fhuszti/picsee-preprocessor/internal/port"
	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/storage"
	"github.com/fhuszti/picsee-preprocessor/internal/transform"
)

var ErrObjectNotFound = errors.New("staging: object not found")

// Submitter is the part of *preprocess.Pool used here.
type Submitter interface {
	Submit(in preprocess.Input) *preprocess.Future
}

type Preprocessor interface {
	PreprocessObject(ctx context.Context, in PreprocessObjectInput) (PreprocessObjectOutput, error)
}

type PreprocessObjectInput struct {
	ObjectKey string
}

type PreprocessObjectOutput struct {
	ObjectKey     string
	Width         int
	Height        int
	OriginalSize  int64
	ProcessedSize int64
}

type objectPreprocessorSrv struct {
	pool    Submitter
	staging port.Storage
	uploads port.Storage
}

func NewObjectPreprocessor(pool Submitter, staging, uploads port.Storage) Preprocessor {
	return &objectPreprocessorSrv{pool, staging, uploads}
}

// PreprocessObject reads ObjectKey from the staging bucket, converts it in the
// pool and stores the WebP next to the original path in the upload bucket.
func (s *objectPreprocessorSrv) PreprocessObject(ctx context.Context, in PreprocessObjectInput) (PreprocessObjectOutput, error) {
	info, err := s.staging.StatFile(ctx, in.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return PreprocessObjectOutput{}, ErrObjectNotFound
		}
		return PreprocessObjectOutput{}, err
	}

	rc, err := s.staging.GetFile(ctx, in.ObjectKey)
	if err != nil {
		return PreprocessObjectOutput{}, err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return PreprocessObjectOutput{}, fmt.Errorf("failed reading %q from staging: %w", in.ObjectKey, err)
	}

	res, err := s.pool.Submit(preprocess.Input{
		Data: data,
		Name: path.Base(in.ObjectKey),
		Type: info.ContentType,
	}).Wait(ctx)
	if err != nil {
		return PreprocessObjectOutput{}, err
	}

	outKey := OutputKey(in.ObjectKey)
	if err := s.uploads.SaveFile(
		ctx,
		outKey,
		bytes.NewReader(res.Data),
		int64(len(res.Data)),
		port.SaveOptions{ContentType: res.Type},
	); err != nil {
		return PreprocessObjectOutput{}, fmt.Errorf("failed to save %q: %w", outKey, err)
	}

	logger.Infof(ctx, "converted %q to %q (%d → %d bytes)", in.ObjectKey, outKey, res.OriginalSize, res.ProcessedSize)
	return PreprocessObjectOutput{
		ObjectKey:     outKey,
		Width:         res.Width,
		Height:        res.Height,
		OriginalSize:  res.OriginalSize,
		ProcessedSize: res.ProcessedSize,
	}, nil
}

// OutputKey keeps the directory of key and swaps the file extension for .webp.
func OutputKey(key string) string {
	dir, file := path.Split(key)
	return dir + transform.OutputName(file)
}
