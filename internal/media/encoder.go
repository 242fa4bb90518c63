package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// MimeTypeMJPEG labels the samples the built-in encoder produces. The
// session layer registers it on its media engine; swapping in a real codec
// means advertising that codec's own mime type instead.
const MimeTypeMJPEG = "video/jpeg"

// Encoder turns composited frames into track samples. Real deployments plug
// in a VP8/H264 encoder; the MJPEG default keeps the pipeline runnable
// without cgo codec bindings.
type Encoder interface {
	MimeType() string
	Encode(img image.Image) ([]byte, error)
}

type mjpegEncoder struct {
	quality int
}

func NewMJPEGEncoder(quality int) Encoder {
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	return &mjpegEncoder{quality: quality}
}

func (e *mjpegEncoder) MimeType() string {
	return MimeTypeMJPEG
}

func (e *mjpegEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer

	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return buf.Bytes(), nil
}
