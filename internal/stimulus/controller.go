package stimulus

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"

	"github.com/roach88/stimsync/internal/canon"
	"github.com/roach88/stimsync/internal/config"
)

// Gray levels of the rendered raster.
const (
	BackgroundLevel = 0x80
	BarLevel        = 0xFF
)

// Supported direction labels.
const (
	LeftRight = "LR"
	RightLeft = "RL"
	TopBottom = "TB"
	BottomTop = "BT"
)

var (
	// ErrNotConfigured is returned by New when the configuration has no stimulus section.
	ErrNotConfigured = errors.New("stimulus controller not configured")

	// ErrUnknownDirection is returned for a direction label the controller does not sweep.
	ErrUnknownDirection = errors.New("unknown direction")

	// ErrIndexOutOfRange is returned for a frame index outside the direction.
	ErrIndexOutOfRange = errors.New("frame index out of range")
)

// Frame is one rendered stimulus frame.
type Frame struct {
	Direction string
	Index     int
	Image     *image.Gray
}

// Metadata describes a stimulus frame. CameraFrameIndex is filled in by the
// capture loop when the frame is paired; the controller leaves it zero.
type Metadata struct {
	FrameIndex       int
	CameraFrameIndex uint64
	Direction        string
	Cycle            int
	Baseline         bool
	Angle            Angle
	Complete         bool
	Hash             string
}

// Generator is the contract the capture loop depends on.
type Generator interface {
	Generate(direction string, index int) (Frame, Metadata, error)
	IsDirectionComplete(index int) bool
	FramesPerDirection() int
}

// Controller renders stimulus frames deterministically from configuration.
// It is immutable after New and safe for concurrent use.
type Controller struct {
	geometry       config.Stimulus
	known          map[string]bool
	baseline       int
	framesPerCycle int
	cycles         int
	total          int
}

// New builds a Controller from cfg. It fails with ErrNotConfigured when
// cfg has no stimulus section.
func New(cfg *config.Config) (*Controller, error) {
	if cfg == nil || cfg.Stimulus == nil {
		return nil, ErrNotConfigured
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("stimulus controller: %w", err)
	}
	g := *cfg.Stimulus
	if g.WidthPx <= 0 || g.HeightPx <= 0 || g.BarWidthPx <= 0 {
		return nil, fmt.Errorf("stimulus controller: non-positive geometry %dx%d bar=%d", g.WidthPx, g.HeightPx, g.BarWidthPx)
	}

	known := make(map[string]bool, len(cfg.Directions))
	for _, d := range cfg.Directions {
		switch d {
		case LeftRight, RightLeft, TopBottom, BottomTop:
			known[d] = true
		default:
			return nil, fmt.Errorf("stimulus controller: %w: %q", ErrUnknownDirection, d)
		}
	}

	return &Controller{
		geometry:       g,
		known:          known,
		baseline:       cfg.BaselineFrames,
		framesPerCycle: cfg.FramesPerCycle(),
		cycles:         cfg.Cycles,
		total:          cfg.FramesPerDirection(),
	}, nil
}

// FramesPerDirection returns the number of frames in every direction.
func (c *Controller) FramesPerDirection() int {
	return c.total
}

// IsDirectionComplete reports whether the frame at index is the last of its direction.
func (c *Controller) IsDirectionComplete(index int) bool {
	return index >= c.total-1
}

// Generate renders the frame at index within direction.
func (c *Controller) Generate(direction string, index int) (Frame, Metadata, error) {
	if !c.known[direction] {
		return Frame{}, Metadata{}, fmt.Errorf("generate %q[%d]: %w", direction, index, ErrUnknownDirection)
	}
	if index < 0 || index >= c.total {
		return Frame{}, Metadata{}, fmt.Errorf("generate %q[%d]: %w (frames=%d)", direction, index, ErrIndexOutOfRange, c.total)
	}

	img := image.NewGray(image.Rect(0, 0, c.geometry.WidthPx, c.geometry.HeightPx))
	for i := range img.Pix {
		img.Pix[i] = BackgroundLevel
	}

	meta := Metadata{
		FrameIndex: index,
		Direction:  direction,
		Complete:   c.IsDirectionComplete(index),
	}

	if index < c.baseline {
		meta.Baseline = true
		meta.Angle = NotApplicable()
	} else {
		step := index - c.baseline
		meta.Cycle = step / c.framesPerCycle
		offset := c.barOffset(direction, step%c.framesPerCycle)
		c.drawBar(img, direction, offset)
		meta.Angle = c.angleAt(direction, offset)
	}

	meta.Hash = frameHash(img)

	return Frame{Direction: direction, Index: index, Image: img}, meta, nil
}

// barOffset returns the leading pixel of the bar along the sweep axis.
// Integer arithmetic keeps the raster identical across platforms.
func (c *Controller) barOffset(direction string, step int) int {
	travel := c.axisLength(direction) - c.geometry.BarWidthPx
	offset := 0
	if c.framesPerCycle > 1 {
		offset = step * travel / (c.framesPerCycle - 1)
	}
	if direction == RightLeft || direction == BottomTop {
		offset = travel - offset
	}
	return offset
}

func (c *Controller) axisLength(direction string) int {
	if direction == LeftRight || direction == RightLeft {
		return c.geometry.WidthPx
	}
	return c.geometry.HeightPx
}

func (c *Controller) drawBar(img *image.Gray, direction string, offset int) {
	w, h := c.geometry.WidthPx, c.geometry.HeightPx
	bw := c.geometry.BarWidthPx
	horizontal := direction == LeftRight || direction == RightLeft

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos := y
			if horizontal {
				pos = x
			}
			if pos >= offset && pos < offset+bw {
				img.Pix[y*img.Stride+x] = BarLevel
			}
		}
	}
}

// angleAt maps the bar centre to degrees of visual angle. Screen left is
// -azimuth and screen top is +altitude.
func (c *Controller) angleAt(direction string, offset int) Angle {
	centre := float64(offset) + float64(c.geometry.BarWidthPx)/2
	length := float64(c.axisLength(direction))

	var deg float64
	if direction == LeftRight || direction == RightLeft {
		deg = c.geometry.AzimuthDeg * (2*centre/length - 1)
	} else {
		deg = c.geometry.AltitudeDeg * (1 - 2*centre/length)
	}
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return ErrorAngle("non-finite angle for bar offset " + strconv.Itoa(offset))
	}
	return Present(deg)
}

// frameHash is the content hash of a raster: dimensions then pixels.
func frameHash(img *image.Gray) string {
	b := img.Bounds()
	header := strconv.Itoa(b.Dx()) + "x" + strconv.Itoa(b.Dy()) + ":"
	data := make([]byte, 0, len(header)+len(img.Pix))
	data = append(data, header...)
	data = append(data, img.Pix...)
	return canon.HashWithDomain(canon.DomainStimulusFrame, data)
}

// FrameHash returns the content hash of a rendered frame.
func FrameHash(f Frame) string {
	return frameHash(f.Image)
}
