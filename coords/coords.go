package coords

import (
	"errors"
	"math"
)

var ErrSingular = errors.New("matrix singular")

// Matrix is a PDF affine transform [a b c d e f]; points are row vectors, so
// m.Multiply(o) applies m first and then o.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is a PDF rectangle [llx lly urx ury].
type Rect struct {
	LLX, LLY, URX, URY float64
}

// Normalize orders the corners so that LL is lower-left.
func (r Rect) Normalize() Rect {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

func (r Rect) Width() float64  { return math.Abs(r.URX - r.LLX) }
func (r Rect) Height() float64 { return math.Abs(r.URY - r.LLY) }
func (r Rect) Empty() bool     { return r.Width() == 0 || r.Height() == 0 }

// Contains returns true if the point (x, y) is within the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	n := r.Normalize()
	return x >= n.LLX && x <= n.URX && y >= n.LLY && y <= n.URY
}

// Intersect returns the overlap of r and o, or the zero Rect if they are disjoint.
func (r Rect) Intersect(o Rect) Rect {
	a, b := r.Normalize(), o.Normalize()
	out := Rect{
		LLX: math.Max(a.LLX, b.LLX),
		LLY: math.Max(a.LLY, b.LLY),
		URX: math.Min(a.URX, b.URX),
		URY: math.Min(a.URY, b.URY),
	}
	if out.LLX >= out.URX || out.LLY >= out.URY {
		return Rect{}
	}
	return out
}

// NormalizeRotation maps a /Rotate value onto 0, 90, 180 or 270. Values that
// are not multiples of 90 are treated as 0, as viewers do.
func NormalizeRotation(deg int) int {
	if deg%90 != 0 {
		return 0
	}
	return ((deg % 360) + 360) % 360
}

// DisplaySize is the width and height of box once rotated for display.
func DisplaySize(box Rect, rotate int) (w, h float64) {
	switch NormalizeRotation(rotate) {
	case 90, 270:
		return box.Height(), box.Width()
	}
	return box.Width(), box.Height()
}

// DeviceMatrix maps PDF user space inside box onto a device surface whose
// origin is the top-left corner of the displayed page, y growing downwards,
// after applying the page rotation (clockwise, in degrees) and a uniform scale
// in device units per point.
func DeviceMatrix(box Rect, rotate int, scale float64) Matrix {
	box = box.Normalize()
	w, h := box.Width()*scale, box.Height()*scale
	var r Matrix
	switch NormalizeRotation(rotate) {
	case 90:
		r = Matrix{0, scale, scale, 0, 0, 0}
	case 180:
		r = Matrix{-scale, 0, 0, scale, w, 0}
	case 270:
		r = Matrix{0, -scale, -scale, 0, h, w}
	default:
		r = Matrix{scale, 0, 0, -scale, 0, h}
	}
	return Translate(-box.LLX, -box.LLY).Multiply(r)
}

// UserSpace maps a device point back into PDF user space for the same box,
// rotation and scale DeviceMatrix was built from.
func UserSpace(box Rect, rotate int, scale float64, device Point) (Point, error) {
	inv, err := DeviceMatrix(box, rotate, scale).Inverse()
	if err != nil {
		return Point{}, err
	}
	return inv.Transform(device), nil
}
