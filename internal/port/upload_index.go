package port

import "context"

// UploadIndex remembers where an already uploaded file (by fingerprint) ended up.
type UploadIndex interface {
	Lookup(ctx context.Context, fingerprint string) (location string, found bool, err error)
	Remember(ctx context.Context, fingerprint, location string) error
	Forget(ctx context.Context, fingerprint string) error
}
