package render

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/fogleman/gg"

	"github.com/supramm/canvas-connect/internal/canvas"
)

// Options sizes one rasterization. Scale > 1 renders at higher pixel
// density for hi-dpi exports without changing stroke coordinates.
type Options struct {
	Width      int
	Height     int
	Scale      float64
	Background string
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 720
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Background == "" {
		o.Background = "#ffffff"
	}
}

// Snapshot paints a committed state onto a fresh surface. Strokes are
// painted in log order; the eraser paints with the background color, so
// it only hides what was below it at paint time.
func Snapshot(state canvas.State, opts Options) (image.Image, error) {
	return Compose(state, nil, opts)
}

// Compose paints the committed state plus in-progress previews on top.
// Previews are hints and render exactly like committed strokes.
func Compose(state canvas.State, previews []canvas.Stroke, opts Options) (image.Image, error) {
	opts.defaults()

	dc := gg.NewContext(int(float64(opts.Width)*opts.Scale), int(float64(opts.Height)*opts.Scale))
	dc.Scale(opts.Scale, opts.Scale)
	dc.SetHexColor(opts.Background)
	dc.Clear()

	for _, s := range state.Strokes {
		if err := paintStroke(dc, s, opts.Background); err != nil {
			return nil, err
		}
	}
	for _, s := range previews {
		if err := paintStroke(dc, s, opts.Background); err != nil {
			return nil, err
		}
	}
	return dc.Image(), nil
}

func paintStroke(dc *gg.Context, s canvas.Stroke, background string) error {
	if len(s.Points) < 2 {
		return nil
	}
	if s.Width <= 0 {
		return fmt.Errorf("stroke %s: non-positive width", s.ID)
	}

	switch s.Tool {
	case canvas.ToolBrush:
		dc.SetHexColor(s.Color)
	case canvas.ToolEraser:
		dc.SetHexColor(background)
	default:
		return fmt.Errorf("stroke %s: unknown tool %q", s.ID, s.Tool)
	}

	dc.SetLineWidth(s.Width)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	dc.MoveTo(s.Points[0].X, s.Points[0].Y)
	for _, p := range s.Points[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.Stroke()
	return nil
}

// EncodePNG writes an image as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
