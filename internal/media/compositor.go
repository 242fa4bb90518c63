package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/semaphore"

	"github.com/collabrixo/collabrixo/internal/application/config"
	"github.com/collabrixo/collabrixo/internal/application/metric"
)

// ErrCompositor marks blur pipeline failures. The pipeline always recovers
// by falling back to the raw stream.
var ErrCompositor = errors.New("blur compositor failed")

// Compositor approximates a portrait background blur without segmentation:
// the full frame is blurred as the background, then an unblurred copy scaled
// by ScaleFactor is centered on top.
type Compositor struct {
	width  int
	height int
	sigma  float64
	scale  float64

	sp *semaphore.Weighted
}

func NewCompositor(cfg config.VideoConfig) *Compositor {
	return &Compositor{
		width:  cfg.Width,
		height: cfg.Height,
		sigma:  cfg.BlurSigma,
		scale:  cfg.ScaleFactor,
		sp:     semaphore.NewWeighted(2),
	}
}

// Process renders one frame at the fixed output resolution.
func (c *Compositor) Process(frame image.Image) (*image.NRGBA, error) {
	if frame == nil {
		return nil, fmt.Errorf("%w: nil frame", ErrCompositor)
	}

	bounds := frame.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty frame %v", ErrCompositor, bounds)
	}

	_ = c.sp.Acquire(context.Background(), 1)
	defer c.sp.Release(1)

	start := time.Now()

	background := imaging.Resize(frame, c.width, c.height, imaging.Lanczos)
	background = imaging.Blur(background, c.sigma)

	fgWidth := int(float64(c.width) * c.scale)
	fgHeight := int(float64(c.height) * c.scale)
	foreground := imaging.Resize(frame, fgWidth, fgHeight, imaging.Lanczos)

	offset := image.Pt((c.width-fgWidth)/2, (c.height-fgHeight)/2)
	out := imaging.Overlay(background, foreground, offset, 1.0)

	metric.ObserveCompositorFrame(time.Since(start))

	return out, nil
}
