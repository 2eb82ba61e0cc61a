package api

import (
	"context"

	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
	"github.com/fhuszti/picsee-preprocessor/internal/uuid"
)

// UploadSession is the part of *uploader.Session the handlers drive.
type UploadSession interface {
	AddFiles(ctx context.Context, files []uploader.File) ([]uploader.Item, []error)
	Items(filter uploader.Filter) []uploader.Item
	Counts() map[uploader.Filter]int
	Summary() uploader.Summary
	Remove(ctx context.Context, id uuid.UUID) error
	UploadAll(ctx context.Context) (uploader.UploadReport, error)
}

type PoolStats interface {
	Stats() preprocess.Stats
}
