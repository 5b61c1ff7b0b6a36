package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/wudi/pdfcapture/units"
)

var (
	gridMinor   = color.RGBA{R: 232, G: 237, B: 245, A: 255}
	gridMajor   = color.RGBA{R: 196, G: 207, B: 224, A: 255}
	borderColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	markerColor = color.RGBA{R: 220, G: 38, B: 38, A: 255}
)

const (
	gridStepMM   = 10
	majorEvery   = 5
	markerRadius = 4
)

func drawPage(w, h int, scale float64, markers []Marker) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(img, img.Bounds(), image.White, image.Point{}, xdraw.Src)

	step := units.MillimetersToPoints(gridStepMM) * scale * units.PixelsPerPoint
	for i := 1; float64(i)*step < float64(w); i++ {
		x := int(math.Round(float64(i) * step))
		fill(img, image.Rect(x, 0, x+1, h), gridColor(i))
	}
	for i := 1; float64(i)*step < float64(h); i++ {
		y := int(math.Round(float64(i) * step))
		fill(img, image.Rect(0, y, w, y+1), gridColor(i))
	}

	fill(img, image.Rect(0, 0, w, 1), borderColor)
	fill(img, image.Rect(0, h-1, w, h), borderColor)
	fill(img, image.Rect(0, 0, 1, h), borderColor)
	fill(img, image.Rect(w-1, 0, w, h), borderColor)

	for _, m := range markers {
		drawMarker(img, m, scale)
	}
	return img
}

func gridColor(i int) color.Color {
	if i%majorEvery == 0 {
		return gridMajor
	}
	return gridMinor
}

func fill(img *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(img, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

// drawMarker paints a dot at the marker position and its label to the right.
func drawMarker(img *image.RGBA, m Marker, scale float64) {
	k := scale * units.PixelsPerPoint
	cx := units.MillimetersToPoints(m.X) * k
	cy := units.MillimetersToPoints(m.Y) * k
	b := img.Bounds()
	if cx < 0 || cy < 0 || cx > float64(b.Dx()) || cy > float64(b.Dy()) {
		return
	}

	z := vector.NewRasterizer(b.Dx(), b.Dy())
	circle(z, float32(cx), float32(cy), markerRadius)
	z.Draw(img, b, image.NewUniform(markerColor), image.Point{})

	if m.Label == "" {
		return
	}
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(markerColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(cx)+markerRadius+3, int(cy)+4),
	}
	d.DrawString(m.Label)
}

// circle approximates a circle with four cubic Bézier arcs.
func circle(z *vector.Rasterizer, cx, cy, r float32) {
	const kappa = 0.5522848
	c := kappa * r
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+c, cx+c, cy+r, cx, cy+r)
	z.CubeTo(cx-c, cy+r, cx-r, cy+c, cx-r, cy)
	z.CubeTo(cx-r, cy-c, cx-c, cy-r, cx, cy-r)
	z.CubeTo(cx+c, cy-r, cx+r, cy-c, cx+r, cy)
	z.ClosePath()
}

// Thumbnail scales the surface down so that neither edge exceeds maxEdge.
// Surfaces already small enough are returned as is.
func Thumbnail(s *Surface, maxEdge int) image.Image {
	if maxEdge <= 0 || (s.Width <= maxEdge && s.Height <= maxEdge) {
		return s.Image
	}
	f := float64(maxEdge) / float64(max(s.Width, s.Height))
	w := max(1, int(math.Round(float64(s.Width)*f)))
	h := max(1, int(math.Round(float64(s.Height)*f)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), s.Image, s.Image.Bounds(), xdraw.Src, nil)
	return dst
}

// EncodePNG writes img as PNG, favoring speed over size.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
