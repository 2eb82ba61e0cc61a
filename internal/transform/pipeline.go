// Package transform implements the decode → resize → WebP encode pipeline run
// inside an execution context.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/fhuszti/picsee-preprocessor/internal/protocol"
	"github.com/fhuszti/picsee-preprocessor/internal/validation"
)

const OutputType = "image/webp"

var ErrInvalidDimensions = errors.New("invalid source image dimensions")

type Pipeline struct {
	dec ImageDecoder
	enc WebPEncoder
}

func NewPipeline(dec ImageDecoder, enc WebPEncoder) *Pipeline {
	return &Pipeline{dec: dec, enc: enc}
}

// NewDefaultPipeline wires the imaging decoder and the chai2010 WebP encoder.
func NewDefaultPipeline() *Pipeline {
	return NewPipeline(NewImageDecoder(), NewWebPEncoder())
}

// Run processes one request and always answers with the request's TaskID.
// Pipeline errors are reported in the response, never returned.
func (p *Pipeline) Run(req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		return protocol.Failure(req.TaskID, invalidRequest(err))
	}

	originalSize := int64(len(req.Data))

	img, err := p.dec.Decode(bytes.NewReader(req.Data))
	if err != nil {
		return protocol.Failure(req.TaskID, fmt.Sprintf("failed to decode image: %v", err))
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return protocol.Failure(req.TaskID, ErrInvalidDimensions.Error())
	}

	width, height := TargetSize(b.Dx(), b.Dy(), req.MaxWidth)
	if width != b.Dx() {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	buf := &bytes.Buffer{}
	if err := p.enc.Encode(img, QualityPercent(req.Quality), buf); err != nil {
		return protocol.Failure(req.TaskID, fmt.Sprintf("failed to encode WebP: %v", err))
	}

	out := img.Bounds()
	return protocol.Response{
		TaskID:        req.TaskID,
		OK:            true,
		Data:          buf.Bytes(),
		OutputName:    OutputName(req.SourceName),
		OutputType:    OutputType,
		Width:         out.Dx(),
		Height:        out.Dy(),
		OriginalSize:  originalSize,
		ProcessedSize: int64(buf.Len()),
	}
}

// TargetSize caps the width at maxWidth and keeps the aspect ratio; the
// height never drops below 1.
func TargetSize(srcWidth, srcHeight, maxWidth int) (int, int) {
	width := min(srcWidth, maxWidth)
	if width == srcWidth {
		return srcWidth, srcHeight
	}
	height := int(math.Round(float64(srcHeight) * float64(width) / float64(srcWidth)))
	return width, max(1, height)
}

// QualityPercent maps a normalized quality onto the encoder's 1..100 scale, clamping out-of-range values.
func QualityPercent(quality float64) int {
	q := int(math.Round(quality * 100))
	return max(1, min(100, q))
}

// OutputName swaps the extension for .webp. Dotfiles keep their full name.
func OutputName(name string) string {
	base := name
	if i := strings.LastIndex(name, "."); i > 0 {
		base = name[:i]
	}
	return base + ".webp"
}

// invalidRequest renders a validation failure as "invalid request: field: tag, ...".
func invalidRequest(err error) string {
	fields := validation.ErrorsToMap(err)
	if len(fields) == 0 {
		return "invalid request: " + err.Error()
	}
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+": "+tag)
	}
	sort.Strings(parts)
	return "invalid request: " + strings.Join(parts, ", ")
}
