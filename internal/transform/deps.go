package transform

import (
	"image"
	"io"
)

type ImageDecoder interface {
	Decode(r io.Reader) (image.Image, error)
}

type WebPEncoder interface {
	Encode(img image.Image, quality int, w io.Writer) error
}
