package transform

import (
	"image"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

type imagingDecoder struct{}

// NewImageDecoder returns a decoder for JPEG, PNG, GIF and WebP input that
// applies the EXIF orientation, like a browser bitmap decode does.
func NewImageDecoder() ImageDecoder {
	return imagingDecoder{}
}

func (imagingDecoder) Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

type webpEncoder struct{}

// NewWebPEncoder returns a lossy WebP encoder.
func NewWebPEncoder() WebPEncoder {
	return webpEncoder{}
}

func (webpEncoder) Encode(img image.Image, quality int, w io.Writer) error {
	return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
}
