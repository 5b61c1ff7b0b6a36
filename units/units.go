// Package units converts between the measurement systems a rendered PDF page
// passes through: device pixels, PDF points and physical millimeters.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// PointsPerInch is the PDF user-space resolution: 1pt = 1/72in.
	PointsPerInch = 72.0
	// MillimetersPerInch is the exact inch definition.
	MillimetersPerInch = 25.4
	// MillimetersPerPoint is 25.4/72.
	MillimetersPerPoint = MillimetersPerInch / PointsPerInch

	// PixelsPerPoint is the device resolution a surface is rendered at when the
	// zoom factor is 1.0. Surfaces produced by the render package honor it, so a
	// pixel offset divided by the zoom factor is a point offset.
	PixelsPerPoint = 1.0
)

var ErrInvalidUnit = errors.New("invalid measurement")

// ParseUnit converts a measurement string (e.g., "1in", "72pt", "10mm", "2cm")
// to points. A bare number is taken as points.
func ParseUnit(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidUnit)
	}

	unit := "pt"
	valStr := s
	for _, suffix := range []string{"in", "mm", "cm", "pt"} {
		if strings.HasSuffix(s, suffix) {
			unit = suffix
			valStr = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}

	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
	}

	switch unit {
	case "in":
		return val * PointsPerInch, nil
	case "mm":
		return MillimetersToPoints(val), nil
	case "cm":
		return MillimetersToPoints(val * 10), nil
	}
	return val, nil
}

// PointsToMillimeters converts PDF points to millimeters.
func PointsToMillimeters(pt float64) float64 { return pt * MillimetersPerPoint }

// MillimetersToPoints converts millimeters to PDF points.
func MillimetersToPoints(mm float64) float64 { return mm / MillimetersPerPoint }

// PixelsToPoints undoes the zoom applied to a rendered surface.
func PixelsToPoints(px, scale float64) float64 {
	return px / scale / PixelsPerPoint
}

// PointsToPixels is the inverse of PixelsToPoints.
func PointsToPixels(pt, scale float64) float64 {
	return pt * scale * PixelsPerPoint
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
