package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/supramm/canvas-connect/internal/canvas"
)

// A4 landscape drawing area in millimeters, minus a small margin.
const (
	pageWidth  = 297.0
	pageHeight = 210.0
	margin     = 10.0
)

// PDF writes a committed snapshot as a single-page vector PDF. Stroke
// coordinates are scaled uniformly so the surface fits the page; the
// eraser draws in white, matching the raster export.
func PDF(path string, state canvas.State, surfaceWidth, surfaceHeight float64) error {
	if surfaceWidth <= 0 || surfaceHeight <= 0 {
		return fmt.Errorf("export pdf: non-positive surface %gx%g", surfaceWidth, surfaceHeight)
	}

	scale := (pageWidth - 2*margin) / surfaceWidth
	if vert := (pageHeight - 2*margin) / surfaceHeight; vert < scale {
		scale = vert
	}

	p := gofpdf.New("L", "mm", "A4", "")
	p.AddPage()

	for _, s := range state.Strokes {
		if len(s.Points) < 2 {
			continue
		}
		r, g, b, err := strokeColor(s)
		if err != nil {
			return err
		}
		p.SetDrawColor(r, g, b)
		p.SetLineWidth(s.Width * scale)
		p.SetLineCapStyle("round")
		p.SetLineJoinStyle("round")

		for i := 1; i < len(s.Points); i++ {
			p.Line(
				margin+s.Points[i-1].X*scale, margin+s.Points[i-1].Y*scale,
				margin+s.Points[i].X*scale, margin+s.Points[i].Y*scale,
			)
		}
	}
	return p.OutputFileAndClose(path)
}

func strokeColor(s canvas.Stroke) (r, g, b int, err error) {
	if s.Tool == canvas.ToolEraser {
		return 255, 255, 255, nil
	}
	return parseHex(s.Color)
}

// parseHex accepts #rgb and #rrggbb.
func parseHex(hex string) (r, g, b int, err error) {
	h := strings.TrimPrefix(hex, "#")
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return 0, 0, 0, fmt.Errorf("export pdf: bad color %q", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("export pdf: bad color %q: %w", hex, err)
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}
