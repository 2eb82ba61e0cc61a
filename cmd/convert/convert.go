package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fhuszti/picsee-preprocessor/internal/preprocess"
	"github.com/fhuszti/picsee-preprocessor/internal/transform"
	"github.com/fhuszti/picsee-preprocessor/internal/uploader"
)

// Submitter is the part of *preprocess.Pool used by convertFiles.
type Submitter interface {
	Submit(in preprocess.Input) *preprocess.Future
	Size() int
}

type summary struct {
	Converted   int
	Failed      int
	InputBytes  int64
	OutputBytes int64
}

// convertFiles converts every path and writes one result line per file to w,
// in input order, followed by a summary line. A failing file never stops the
// others.
func convertFiles(ctx context.Context, pool Submitter, paths []string, outDir string, w io.Writer) summary {
	lines := make([]string, len(paths))
	var (
		mu  sync.Mutex
		sum summary
	)

	var g errgroup.Group
	g.SetLimit(2 * pool.Size())
	for i, p := range paths {
		g.Go(func() error {
			res, outPath, err := convertOne(ctx, pool, p, outDir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				sum.Failed++
				lines[i] = fmt.Sprintf("✗ %s: %v", p, err)
				return nil
			}
			sum.Converted++
			sum.InputBytes += res.OriginalSize
			sum.OutputBytes += res.ProcessedSize
			lines[i] = fmt.Sprintf("✓ %s → %s %dx%d (%s → %s)", p, outPath, res.Width, res.Height,
				uploader.BytesToHuman(res.OriginalSize), uploader.BytesToHuman(res.ProcessedSize))
			return nil
		})
	}
	_ = g.Wait()

	for _, l := range lines {
		_, _ = fmt.Fprintln(w, l)
	}
	_, _ = fmt.Fprintf(w, "converted %d of %d file(s), %s → %s\n", sum.Converted, len(paths),
		uploader.BytesToHuman(sum.InputBytes), uploader.BytesToHuman(sum.OutputBytes))
	return sum
}

func convertOne(ctx context.Context, pool Submitter, path, outDir string) (preprocess.Result, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return preprocess.Result{}, "", err
	}

	name := filepath.Base(path)
	res, err := pool.Submit(preprocess.Input{
		Data: data,
		Name: name,
		Type: mime.TypeByExtension(filepath.Ext(name)),
	}).Wait(ctx)
	if err != nil {
		return preprocess.Result{}, "", err
	}

	outPath := filepath.Join(outDir, transform.OutputName(name))
	if err := os.WriteFile(outPath, res.Data, 0o644); err != nil {
		return preprocess.Result{}, "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return res, outPath, nil
}
